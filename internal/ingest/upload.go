package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"kbase/internal/domain"
)

// IngestUpload parses uploaded bytes by filename extension. CSV payloads go
// through the row path (first record is the header); plain-text formats are
// chunked. Unsupported extensions are a validation error.
func (p *Pipeline) IngestUpload(ctx context.Context, payload []byte, filename, agent string) (Stats, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		header, rows, err := parseCSV(payload)
		if err != nil {
			return Stats{}, domain.Validationf("malformed CSV upload %s: %v", filename, err)
		}
		return p.IngestRows(ctx, header, rows, filename, agent)
	case ".txt", ".md", ".log", ".text":
		return p.IngestText(ctx, DecodeText(payload), filename, agent, 0, -1)
	default:
		return Stats{}, domain.Validationf("unsupported upload type %q", filepath.Ext(filename))
	}
}

func parseCSV(payload []byte) (header []string, rows [][]string, err error) {
	r := csv.NewReader(bytes.NewReader(payload))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	return records[0], records[1:], nil
}

// DecodeText interprets payload as UTF-8, falling back to a lossy
// Windows-1252 decode when the bytes are not valid UTF-8.
func DecodeText(payload []byte) string {
	if utf8.Valid(payload) {
		return string(payload)
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(payload)
	if err != nil {
		return strings.ToValidUTF8(string(payload), "�")
	}
	return string(decoded)
}
