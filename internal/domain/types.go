package domain

// SnippetLimit caps the stored snippet length for any record or hit.
const SnippetLimit = 600

// Chunk is a bounded slice of source text produced during ingestion.
type Chunk struct {
	ID        string
	Text      string
	Source    string
	Namespace string
	Agent     string
	Index     int
	Extra     map[string]any
}

// Metadata flattens the chunk into the map persisted next to its vector.
func (c Chunk) Metadata() map[string]any {
	m := map[string]any{
		"id":          c.ID,
		"text":        c.Text,
		"source":      c.Source,
		"chunk_index": c.Index,
	}
	if c.Namespace != "" {
		m["namespace"] = c.Namespace
	}
	if c.Agent != "" {
		m["agent"] = c.Agent
	}
	for k, v := range c.Extra {
		m[k] = v
	}
	return m
}

// Hit is a single retrieval result.
type Hit struct {
	ID        string
	Title     string
	Score     float64
	Snippet   string
	Source    string
	Namespace string
	Metadata  map[string]any
}

// Snippet truncates text to the snippet limit.
func Snippet(text string) string {
	if len(text) <= SnippetLimit {
		return text
	}
	return text[:SnippetLimit]
}
