package chunker

// WindowChunker splits text into fixed-size character windows with overlap.
type WindowChunker struct {
	size    int
	overlap int
}

func NewWindowChunker(size, overlap int) *WindowChunker {
	if overlap < 0 {
		overlap = 0
	}
	return &WindowChunker{size: size, overlap: overlap}
}

// Chunk returns the ordered windows covering text. The whole text comes back
// as a single chunk when size is non-positive or the text already fits.
func (c *WindowChunker) Chunk(text string) []string {
	return Chunk(text, c.size, c.overlap)
}

// Chunk slides a window of size characters over text. Each subsequent start
// is max(previousEnd-overlap, previousStart+1), so the walk makes forward
// progress even when overlap >= size.
func Chunk(text string, size, overlap int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 || len(text) <= size {
		return []string{text}
	}
	if overlap < 0 {
		overlap = 0
	}
	var chunks []string
	start := 0
	for {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, text[start:])
			return chunks
		}
		chunks = append(chunks, text[start:end])
		next := end - overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
}
