package cli

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"kbase/internal/config"
	"kbase/internal/embedding"
	"kbase/internal/history"
	"kbase/internal/rerank"
	"kbase/internal/service"
	"kbase/internal/vectorstore"
	"kbase/internal/vectorstore/flat"
	"kbase/internal/vectorstore/sqlite"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "kbase",
	Short:        "kbase — local retrieval-augmented knowledge base",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `kbase ingests text and tabular sources into a local vector store and
answers similarity queries over them, with namespace scoping and a
boosted policy namespace.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default: ./config.yaml, then ~/.config/kbase/config.yaml)")
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

// buildEngine wires store, embedder, reranker and ledger from the config.
// The caller owns the returned engine and must Close it.
func buildEngine(cfg *config.AppConfig) (*service.Engine, error) {
	store, err := openStore(cfg.Store)
	if err != nil {
		return nil, err
	}

	embedder, err := buildEmbedder(cfg.Embedder)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var reranker *rerank.Blend
	if cfg.Rerank.Enabled {
		reranker = rerank.NewLexicalBlend()
		reranker.OriginalWeight = cfg.Rerank.OriginalWeight
		reranker.RerankWeight = cfg.Rerank.RerankWeight
	}

	engine := service.New(store, embedder, reranker, cfg.RetrieveConfig())
	p := engine.Pipeline()
	p.ChunkSize = cfg.Ingest.ChunkSize
	p.ChunkOverlap = cfg.Ingest.ChunkOverlap
	p.MaxRowsPerFile = cfg.Ingest.MaxRowsPerFile
	p.MaxFilesPerSource = cfg.Ingest.MaxFilesPerSource
	p.Extensions = cfg.Ingest.Extensions

	if cfg.History.LedgerPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.History.LedgerPath), 0o755); err != nil {
			log.Printf("cli: cannot create ledger dir: %v", err)
		} else if ledger, err := history.OpenLedger(cfg.History.LedgerPath); err != nil {
			log.Printf("cli: run ledger unavailable: %v", err)
		} else {
			engine.WithLedger(ledger, cfg.History.KeepLast)
		}
	}
	return engine, nil
}

func openStore(cfg config.StoreConfig) (vectorstore.Store, error) {
	switch cfg.Type {
	case "sqlite", "":
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create store dir %s: %w", cfg.Path, err)
		}
		return sqlite.Open(filepath.Join(cfg.Path, "kbase.db"))
	case "flat":
		return flat.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store type %q (want sqlite or flat)", cfg.Type)
	}
}

func buildEmbedder(cfg config.EmbedderConfig) (*embedding.Client, error) {
	switch cfg.Type {
	case "local", "":
		return embedding.NewLocalClient(cfg.Dimension), nil
	case "openai":
		oc := embedding.OpenAIConfig{}
		if cfg.OpenAI != nil {
			oc = embedding.OpenAIConfig{
				BaseURL:   cfg.OpenAI.BaseURL,
				APIKeyEnv: cfg.OpenAI.APIKeyEnv,
				Model:     cfg.OpenAI.Model,
			}
		}
		fallback := embedding.NewLocalProvider(cfg.Dimension)
		return embedding.NewClient(func() (embedding.Provider, error) {
			return embedding.NewOpenAIProvider(oc)
		}, fallback), nil
	default:
		return nil, fmt.Errorf("unknown embedder type %q (want local or openai)", cfg.Type)
	}
}
