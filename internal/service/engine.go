package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"kbase/internal/domain"
	"kbase/internal/embedding"
	"kbase/internal/history"
	"kbase/internal/ingest"
	"kbase/internal/rerank"
	"kbase/internal/retrieve"
	"kbase/internal/vectorstore"
)

// ManifestVersion is bumped when the seeding format changes, forcing a
// reseed on upgrade.
const ManifestVersion = 1

// Manifest records the content hash of the last seeded policy set.
type Manifest struct {
	Hash    string `json:"hash"`
	Version int    `json:"version"`
}

// SeedDoc is one document destined for the boosted namespace.
type SeedDoc struct {
	Name string
	Text string
}

// QueryOptions narrows a single engine query.
type QueryOptions struct {
	TopK      int
	Namespace string
	Context   map[string]string
}

// Citation names one source that contributed to an answer.
type Citation struct {
	Label string
	Score float64
}

// Answer is the retrieval product handed to a caller: ready-to-use context
// text plus the citations behind it. An empty answer is a normal outcome.
type Answer struct {
	Context   string
	Citations []Citation
	BestScore float64
	Namespace string
	Hits      []domain.Hit
}

// Empty reports whether retrieval produced nothing usable.
func (a Answer) Empty() bool { return len(a.Hits) == 0 }

// Engine is the facade tying store, embedder, pipeline, retriever and run
// ledger together. It is the only type the CLI and TUI talk to.
type Engine struct {
	store     vectorstore.Store
	embedder  *embedding.Client
	pipeline  *ingest.Pipeline
	retriever *retrieve.Retriever
	cfg       retrieve.Config

	ledger   *history.Ledger // nil disables run recording
	keepLast int
}

// New wires an engine. The reranker may be nil; the ledger is attached
// separately via WithLedger.
func New(store vectorstore.Store, embedder *embedding.Client, reranker *rerank.Blend, cfg retrieve.Config) *Engine {
	return &Engine{
		store:     store,
		embedder:  embedder,
		pipeline:  ingest.NewPipeline(store, embedder),
		retriever: retrieve.New(store, embedder, reranker, cfg),
		cfg:       cfg,
	}
}

// WithLedger records every ingestion run and trims history beyond keepLast.
func (e *Engine) WithLedger(l *history.Ledger, keepLast int) *Engine {
	e.ledger = l
	e.keepLast = keepLast
	return e
}

// Pipeline exposes the underlying pipeline for tuning chunk sizes and caps.
func (e *Engine) Pipeline() *ingest.Pipeline { return e.pipeline }

// IngestText chunks and indexes free text under the given source.
func (e *Engine) IngestText(ctx context.Context, text, source, agent string, size, overlap int) (ingest.Stats, error) {
	stats, err := e.pipeline.IngestText(ctx, text, source, agent, size, overlap)
	if err == nil {
		e.recordRun(source, stats)
	}
	return stats, err
}

// IngestRows indexes tabular rows, one record per row.
func (e *Engine) IngestRows(ctx context.Context, header []string, rows [][]string, source, agent string) (ingest.Stats, error) {
	stats, err := e.pipeline.IngestRows(ctx, header, rows, source, agent)
	if err == nil {
		e.recordRun(source, stats)
	}
	return stats, err
}

// IngestUpload indexes an uploaded payload routed by filename extension.
func (e *Engine) IngestUpload(ctx context.Context, payload []byte, filename, agent string) (ingest.Stats, error) {
	stats, err := e.pipeline.IngestUpload(ctx, payload, filename, agent)
	if err == nil {
		e.recordRun(filename, stats)
	}
	return stats, err
}

// IngestDirs discovers and indexes files under the given roots.
func (e *Engine) IngestDirs(ctx context.Context, roots []string, agent string) (ingest.Stats, error) {
	stats, err := e.pipeline.IngestDirs(ctx, roots, agent)
	if err == nil {
		e.recordRun(strings.Join(roots, ","), stats)
	}
	return stats, err
}

func (e *Engine) recordRun(source string, stats ingest.Stats) {
	if e.ledger == nil || source == "" {
		return
	}
	run := history.Run{Source: source, Files: stats.FilesProcessed, Rows: stats.RowsIndexed}
	if err := e.ledger.Record(run); err != nil {
		log.Printf("service: recording run for %s failed: %v", source, err)
		return
	}
	if e.keepLast > 0 {
		if _, err := e.ledger.Trim(source, e.keepLast); err != nil {
			log.Printf("service: trimming runs for %s failed: %v", source, err)
		}
	}
}

// Query retrieves grounding for a question and renders it as context text
// with citations. Retrieval failure and an empty store both yield an empty
// answer, never an error.
func (e *Engine) Query(ctx context.Context, question string, opts QueryOptions) (Answer, error) {
	res := e.retriever.Retrieve(ctx, question, retrieve.Options{
		TopK:      opts.TopK,
		Namespace: opts.Namespace,
		Context:   opts.Context,
	})
	if len(res.Hits) == 0 {
		return Answer{Namespace: res.Namespace}, nil
	}

	var b strings.Builder
	citations := make([]Citation, 0, len(res.Hits))
	for i, h := range res.Hits {
		label := hitLabel(h)
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "[%s] %s", label, h.Snippet)
		citations = append(citations, Citation{Label: label, Score: h.Score})
	}
	return Answer{
		Context:   b.String(),
		Citations: citations,
		BestScore: res.BestScore(),
		Namespace: res.Namespace,
		Hits:      res.Hits,
	}, nil
}

func hitLabel(h domain.Hit) string {
	switch {
	case h.Title != "":
		return h.Title
	case h.Source != "":
		return h.Source
	default:
		return h.ID
	}
}

// Status summarizes the engine's persistent state for the status command.
type Status struct {
	Records int
	Sources []string
	Runs    map[string][]history.Run
}

// Status reports the record count and the ledger's recorded runs.
func (e *Engine) Status() (Status, error) {
	count, err := e.store.Count()
	if err != nil {
		return Status{}, err
	}
	st := Status{Records: count, Runs: map[string][]history.Run{}}
	if e.ledger == nil {
		return st, nil
	}
	sources, err := e.ledger.Sources()
	if err != nil {
		return st, err
	}
	sort.Strings(sources)
	st.Sources = sources
	for _, s := range sources {
		runs, err := e.ledger.Runs(s)
		if err != nil {
			return st, err
		}
		st.Runs[s] = runs
	}
	return st, nil
}

// ResetStore wipes the vector store back to empty.
func (e *Engine) ResetStore() error {
	return e.store.Reset()
}

// SeedPolicies reseeds the boosted namespace when the seed content changed.
// The decision is a sha256 hash over the documents compared against the
// manifest beside the store; an unchanged hash with the namespace still
// present is a no-op. Returns whether a reseed happened.
func (e *Engine) SeedPolicies(ctx context.Context, docs []SeedDoc, manifestPath string) (bool, error) {
	ns := e.cfg.BoostNamespace
	if ns == "" {
		return false, errors.New("no boost namespace configured")
	}
	hash := seedHash(docs)

	if m, err := readManifest(manifestPath); err == nil && m.Hash == hash && m.Version == ManifestVersion {
		present, err := e.store.NamespacePresent(ns)
		if err == nil && present {
			return false, nil
		}
	}

	if _, err := e.store.RemoveNamespace(ns); err != nil {
		log.Printf("service: clearing namespace %s before seeding failed: %v", ns, err)
	}
	for _, d := range docs {
		if _, err := e.pipeline.IngestText(ctx, d.Text, d.Name, ns, 0, -1); err != nil {
			return false, fmt.Errorf("seeding %s: %w", d.Name, err)
		}
	}
	if err := writeManifest(manifestPath, Manifest{Hash: hash, Version: ManifestVersion}); err != nil {
		return true, err
	}
	return true, nil
}

// Close flushes and releases the store and the ledger.
func (e *Engine) Close() error {
	var first error
	if e.ledger != nil {
		if err := e.ledger.Close(); err != nil {
			first = err
		}
	}
	if err := e.store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

func seedHash(docs []SeedDoc) string {
	h := sha256.New()
	for _, d := range docs {
		h.Write([]byte(d.Name))
		h.Write([]byte{0})
		h.Write([]byte(d.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func readManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func writeManifest(path string, m Manifest) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
