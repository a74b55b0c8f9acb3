package ingest

import (
	"context"
	"log"

	"kbase/internal/chunker"
	"kbase/internal/domain"
	"kbase/internal/embedding"
	"kbase/internal/vectorstore"
)

// Defaults applied when the corresponding Pipeline field is zero.
const (
	DefaultChunkSize         = 800
	DefaultChunkOverlap      = 150
	DefaultMaxRowsPerFile    = 500
	DefaultMaxFilesPerSource = 20
)

// Stats summarizes one ingestion call for observability.
type Stats struct {
	FilesProcessed int
	RowsIndexed    int
}

func (s *Stats) add(other Stats) {
	s.FilesProcessed += other.FilesProcessed
	s.RowsIndexed += other.RowsIndexed
}

// Pipeline converts raw sources into chunks and embeddings and writes them
// to the bound store. Re-ingesting the same source first deletes its prior
// records, so re-runs are idempotent.
type Pipeline struct {
	Store    vectorstore.Store
	Embedder *embedding.Client

	ChunkSize         int
	ChunkOverlap      int
	MaxRowsPerFile    int
	MaxFilesPerSource int
	Extensions        []string
}

func NewPipeline(store vectorstore.Store, embedder *embedding.Client) *Pipeline {
	return &Pipeline{
		Store:             store,
		Embedder:          embedder,
		ChunkSize:         DefaultChunkSize,
		ChunkOverlap:      DefaultChunkOverlap,
		MaxRowsPerFile:    DefaultMaxRowsPerFile,
		MaxFilesPerSource: DefaultMaxFilesPerSource,
		Extensions:        []string{".txt", ".md", ".log", ".csv"},
	}
}

// IngestText chunks free text and stores one record per chunk. Ids follow
// "<source>-<chunkIndex>". Zero size/overlap fall back to pipeline defaults.
func (p *Pipeline) IngestText(ctx context.Context, text, source, agent string, size, overlap int) (Stats, error) {
	if size <= 0 {
		size = p.chunkSize()
	}
	if overlap < 0 {
		overlap = p.chunkOverlap()
	}
	pieces := chunker.Chunk(text, size, overlap)
	chunks := make([]domain.Chunk, 0, len(pieces))
	for i, piece := range pieces {
		chunks = append(chunks, domain.Chunk{
			ID:        chunkID(source, i),
			Text:      piece,
			Source:    source,
			Namespace: agent,
			Agent:     agent,
			Index:     i,
		})
	}
	return p.ingestChunks(ctx, source, chunks)
}

// ingestChunks embeds and writes a batch, deleting existing records for the
// named source (and any source a chunk carries) first. The delete runs even
// when the batch is empty, so re-ingesting a source whose content shrank to
// nothing still clears its stale records. Delete failures are logged and
// treated as "nothing to delete yet".
func (p *Pipeline) ingestChunks(ctx context.Context, source string, chunks []domain.Chunk) (Stats, error) {
	seen := map[string]bool{}
	removeSource := func(src string) {
		if src == "" || seen[src] {
			return
		}
		seen[src] = true
		if _, err := p.Store.RemoveSource(src); err != nil {
			log.Printf("ingest: delete before insert for %s failed: %v", src, err)
		}
	}
	removeSource(source)
	for _, c := range chunks {
		removeSource(c.Source)
	}
	if len(chunks) == 0 {
		if err := p.Store.Save(); err != nil {
			return Stats{}, err
		}
		return Stats{}, nil
	}

	texts := make([]string, len(chunks))
	metas := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
		metas[i] = c.Metadata()
	}
	vectors, err := p.Embedder.Embed(ctx, texts)
	if err != nil {
		return Stats{}, err
	}
	if err := p.Store.AddVectors(vectors, metas); err != nil {
		return Stats{}, err
	}
	if err := p.Store.Save(); err != nil {
		return Stats{}, err
	}
	return Stats{FilesProcessed: 1, RowsIndexed: len(chunks)}, nil
}

func (p *Pipeline) chunkSize() int {
	if p.ChunkSize > 0 {
		return p.ChunkSize
	}
	return DefaultChunkSize
}

func (p *Pipeline) chunkOverlap() int {
	if p.ChunkOverlap > 0 {
		return p.ChunkOverlap
	}
	return DefaultChunkOverlap
}

func (p *Pipeline) maxRows() int {
	if p.MaxRowsPerFile > 0 {
		return p.MaxRowsPerFile
	}
	return DefaultMaxRowsPerFile
}

func (p *Pipeline) maxFiles() int {
	if p.MaxFilesPerSource > 0 {
		return p.MaxFilesPerSource
	}
	return DefaultMaxFilesPerSource
}
