package ingest

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"kbase/internal/domain"
)

// ScanSources walks the candidate roots and selects files by extension,
// newest first, capped at maxFiles. Files reachable from several roots are
// de-duplicated by resolved absolute path; nonexistent roots are skipped
// silently.
func ScanSources(roots []string, exts []string, maxFiles int) []string {
	type candidate struct {
		path    string
		modTime time.Time
	}
	allowed := map[string]bool{}
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}
	seen := map[string]bool{}
	var found []candidate
	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil || d.IsDir() {
				return nil
			}
			if len(allowed) > 0 && !allowed[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			resolved := path
			if abs, err := filepath.Abs(path); err == nil {
				resolved = abs
			}
			if real, err := filepath.EvalSymlinks(resolved); err == nil {
				resolved = real
			}
			if seen[resolved] {
				return nil
			}
			seen[resolved] = true
			info, err := d.Info()
			if err != nil {
				return nil
			}
			found = append(found, candidate{path: resolved, modTime: info.ModTime()})
			return nil
		})
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].modTime.After(found[j].modTime) })
	if maxFiles > 0 && len(found) > maxFiles {
		found = found[:maxFiles]
	}
	out := make([]string, len(found))
	for i, c := range found {
		out[i] = c.path
	}
	return out
}

// IngestDirs discovers files under the given roots and ingests each one.
// A file that cannot be read or parsed is logged and skipped; the batch
// continues.
func (p *Pipeline) IngestDirs(ctx context.Context, roots []string, agent string) (Stats, error) {
	files := ScanSources(roots, p.Extensions, p.maxFiles())
	var total Stats
	for _, path := range files {
		stats, err := p.ingestFile(ctx, path, agent)
		if err != nil {
			srcErr := &domain.SourceReadError{Path: path, Err: err}
			log.Printf("ingest: %v (skipped)", srcErr)
			continue
		}
		total.add(stats)
	}
	return total, nil
}

func (p *Pipeline) ingestFile(ctx context.Context, path, agent string) (Stats, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Stats{}, err
	}
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		header, rows, err := parseCSV(payload)
		if err != nil {
			return Stats{}, err
		}
		return p.IngestRows(ctx, header, rows, path, agent)
	}
	return p.IngestText(ctx, DecodeText(payload), path, agent, 0, -1)
}
