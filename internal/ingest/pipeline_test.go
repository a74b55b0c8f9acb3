package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kbase/internal/domain"
	"kbase/internal/embedding"
	"kbase/internal/vectorstore/flat"
)

func newPipeline(t *testing.T) *Pipeline {
	t.Helper()
	store, err := flat.Open(t.TempDir())
	if err != nil {
		t.Fatalf("flat.Open: %v", err)
	}
	return NewPipeline(store, embedding.NewLocalClient(64))
}

func TestFlattenRow(t *testing.T) {
	header := []string{"name", "risk", "notes"}
	got := FlattenRow(header, []string{"Alice", "low", ""})
	if got != "name=Alice; risk=low" {
		t.Errorf("FlattenRow = %q", got)
	}
	// Cells beyond the header fall back to positional names.
	got = FlattenRow([]string{"name"}, []string{"Bob", "high"})
	if got != "name=Bob; col1=high" {
		t.Errorf("FlattenRow = %q", got)
	}
	if FlattenRow(header, []string{"", " ", ""}) != "" {
		t.Errorf("expected empty text for all-empty row")
	}
}

func TestIngestRows(t *testing.T) {
	p := newPipeline(t)
	header := []string{"name", "risk"}
	rows := [][]string{{"Alice", "low"}, {"Bob", "high"}, {"Cara", "low"}}
	stats, err := p.IngestRows(context.Background(), header, rows, "people.csv", "")
	if err != nil {
		t.Fatalf("IngestRows: %v", err)
	}
	if stats.RowsIndexed != 3 || stats.FilesProcessed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if n, _ := p.Store.Count(); n != 3 {
		t.Errorf("store count = %d, want 3", n)
	}
}

func TestIngestRows_CapsRowCount(t *testing.T) {
	p := newPipeline(t)
	p.MaxRowsPerFile = 2
	rows := [][]string{{"a"}, {"b"}, {"c"}, {"d"}}
	stats, err := p.IngestRows(context.Background(), []string{"v"}, rows, "big.csv", "")
	if err != nil {
		t.Fatalf("IngestRows: %v", err)
	}
	if stats.RowsIndexed != 2 {
		t.Errorf("rows indexed = %d, want 2", stats.RowsIndexed)
	}
}

func TestIngestText_ReingestionIsIdempotent(t *testing.T) {
	p := newPipeline(t)
	text := "A cat sat on the mat. A dog ran in the park."
	first, err := p.IngestText(context.Background(), text, "pets.txt", "", 20, 5)
	if err != nil {
		t.Fatalf("IngestText: %v", err)
	}
	if first.RowsIndexed != 3 {
		t.Fatalf("first ingest indexed %d chunks, want 3", first.RowsIndexed)
	}
	second, err := p.IngestText(context.Background(), text, "pets.txt", "", 20, 5)
	if err != nil {
		t.Fatalf("re-ingest: %v", err)
	}
	if second.RowsIndexed != first.RowsIndexed {
		t.Errorf("re-ingest indexed %d, want %d", second.RowsIndexed, first.RowsIndexed)
	}
	if n, _ := p.Store.Count(); n != 3 {
		t.Errorf("count after re-ingest = %d, want 3", n)
	}
}

func TestIngestText_EmptyContentClearsStaleRecords(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	if _, err := p.IngestText(ctx, "original notes about refunds", "notes.txt", "", 0, -1); err != nil {
		t.Fatalf("IngestText: %v", err)
	}
	if n, _ := p.Store.Count(); n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}

	// The source emptied out; re-ingesting must drop its old records.
	stats, err := p.IngestText(ctx, "", "notes.txt", "", 0, -1)
	if err != nil {
		t.Fatalf("re-ingest with empty text: %v", err)
	}
	if stats.RowsIndexed != 0 {
		t.Errorf("stats = %+v, want no rows", stats)
	}
	if n, _ := p.Store.Count(); n != 0 {
		t.Errorf("stale records survived: count = %d, want 0", n)
	}
}

func TestIngestUpload_CSV(t *testing.T) {
	p := newPipeline(t)
	payload := []byte("name,risk\nAlice,low\nBob,high\n")
	stats, err := p.IngestUpload(context.Background(), payload, "upload.csv", "")
	if err != nil {
		t.Fatalf("IngestUpload: %v", err)
	}
	if stats.RowsIndexed != 2 {
		t.Errorf("rows indexed = %d, want 2", stats.RowsIndexed)
	}
}

func TestIngestUpload_UnsupportedExtension(t *testing.T) {
	p := newPipeline(t)
	_, err := p.IngestUpload(context.Background(), []byte{0x1, 0x2}, "image.png", "")
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestDecodeText_LossyFallback(t *testing.T) {
	// 0xE9 is é in Windows-1252 but invalid standalone UTF-8.
	got := DecodeText([]byte{'c', 'a', 'f', 0xE9})
	if got != "café" {
		t.Errorf("DecodeText = %q, want café", got)
	}
	if DecodeText([]byte("plain")) != "plain" {
		t.Errorf("valid UTF-8 should pass through")
	}
}

func TestScanSources(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, age time.Duration) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("content"), 0o644); err != nil {
			t.Fatal(err)
		}
		mt := time.Now().Add(-age)
		if err := os.Chtimes(path, mt, mt); err != nil {
			t.Fatal(err)
		}
		return path
	}
	newest := write("new.txt", 0)
	write("old.txt", time.Hour)
	write("skip.bin", 0)

	// The same root listed twice must not duplicate files; a missing root
	// is skipped silently.
	files := ScanSources([]string{dir, dir, filepath.Join(dir, "missing")}, []string{".txt"}, 10)
	if len(files) != 2 {
		t.Fatalf("ScanSources = %v, want 2 files", files)
	}
	if filepath.Base(files[0]) != filepath.Base(newest) {
		t.Errorf("expected newest file first, got %v", files)
	}

	capped := ScanSources([]string{dir}, []string{".txt"}, 1)
	if len(capped) != 1 {
		t.Errorf("cap not applied: %v", capped)
	}
}

func TestIngestDirs_SkipsBadFilesAndContinues(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "good.txt"), []byte("some readable text"), 0o644); err != nil {
		t.Fatal(err)
	}
	// Malformed CSV: quote error makes parsing fail.
	if err := os.WriteFile(filepath.Join(dir, "bad.csv"), []byte("a,\"b\nc"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := newPipeline(t)
	stats, err := p.IngestDirs(context.Background(), []string{dir}, "")
	if err != nil {
		t.Fatalf("IngestDirs: %v", err)
	}
	if stats.FilesProcessed != 1 {
		t.Errorf("files processed = %d, want 1 (bad file skipped)", stats.FilesProcessed)
	}
}
