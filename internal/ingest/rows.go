package ingest

import (
	"context"
	"fmt"
	"log"
	"strings"

	"kbase/internal/domain"
)

func chunkID(source string, index int) string {
	return fmt.Sprintf("%s-%d", source, index)
}

// IngestRows flattens tabular rows into one chunk each. The chunk text is
// "col=value; col=value; ..." over non-empty cells in column order; ids are
// "<source>-<rowIndex>". Rows beyond the per-file cap are dropped.
func (p *Pipeline) IngestRows(ctx context.Context, header []string, rows [][]string, source, agent string) (Stats, error) {
	max := p.maxRows()
	if len(rows) > max {
		log.Printf("ingest: %s has %d rows, capping at %d", source, len(rows), max)
		rows = rows[:max]
	}
	chunks := make([]domain.Chunk, 0, len(rows))
	for i, row := range rows {
		text := FlattenRow(header, row)
		if text == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			ID:        chunkID(source, i),
			Text:      text,
			Source:    source,
			Namespace: agent,
			Agent:     agent,
			Index:     i,
		})
	}
	return p.ingestChunks(ctx, source, chunks)
}

// FlattenRow renders a row as "col=value; ..." skipping empty cells.
func FlattenRow(header []string, row []string) string {
	var b strings.Builder
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		col := fmt.Sprintf("col%d", i)
		if i < len(header) && strings.TrimSpace(header[i]) != "" {
			col = strings.TrimSpace(header[i])
		}
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(col)
		b.WriteString("=")
		b.WriteString(cell)
	}
	return b.String()
}
