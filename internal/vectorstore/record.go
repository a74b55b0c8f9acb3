package vectorstore

import (
	"fmt"

	"kbase/internal/domain"
)

// MetaString extracts a string-valued metadata field, tolerating values
// that arrived through JSON round-trips.
func MetaString(meta map[string]any, key string) string {
	if meta == nil {
		return ""
	}
	switch v := meta[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// MatchesFilter reports whether meta satisfies every key in filter by
// exact stringified comparison.
func MatchesFilter(meta, filter map[string]any) bool {
	for k, want := range filter {
		if MetaString(meta, k) != fmt.Sprintf("%v", want) {
			return false
		}
	}
	return true
}

// HitFromMetadata assembles the caller-facing hit for a scored record.
func HitFromMetadata(meta map[string]any, score float64) domain.Hit {
	return domain.Hit{
		ID:        MetaString(meta, "id"),
		Title:     MetaString(meta, "title"),
		Score:     score,
		Snippet:   domain.Snippet(MetaString(meta, "text")),
		Source:    MetaString(meta, "source"),
		Namespace: MetaString(meta, "namespace"),
		Metadata:  meta,
	}
}
