package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"kbase/internal/ingest"
	"kbase/internal/rerank"
	"kbase/internal/retrieve"
)

// StoreConfig selects and locates the vector store backend. Path is a
// directory: the sqlite backend keeps kbase.db there, the flat backend
// its vector and record files.
type StoreConfig struct {
	Type string `yaml:"type"`
	Path string `yaml:"path"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension,omitempty"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// RetrieverConfig tunes querying.
type RetrieverConfig struct {
	TopK           int     `yaml:"top_k"`
	MinScore       float64 `yaml:"min_score"`
	BoostNamespace string  `yaml:"boost_namespace"`
	BoostFactor    float64 `yaml:"boost_factor"`
	AutoScope      bool    `yaml:"auto_scope"`
}

// RerankConfig tunes the second-pass relevance blend.
type RerankConfig struct {
	Enabled        bool    `yaml:"enabled"`
	OriginalWeight float64 `yaml:"original_weight"`
	RerankWeight   float64 `yaml:"rerank_weight"`
}

// IngestConfig tunes chunking and source discovery.
type IngestConfig struct {
	ChunkSize         int      `yaml:"chunk_size"`
	ChunkOverlap      int      `yaml:"chunk_overlap"`
	MaxRowsPerFile    int      `yaml:"max_rows_per_file"`
	MaxFilesPerSource int      `yaml:"max_files_per_source"`
	Extensions        []string `yaml:"extensions"`
	ScanRoots         []string `yaml:"scan_roots,omitempty"`
}

// HistoryConfig controls run-history retention.
type HistoryConfig struct {
	LedgerPath string   `yaml:"ledger_path"`
	KeepLast   int      `yaml:"keep_last"`
	PruneRoots []string `yaml:"prune_roots,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Store     StoreConfig     `yaml:"store"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Retriever RetrieverConfig `yaml:"retriever"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Ingest    IngestConfig    `yaml:"ingest"`
	History   HistoryConfig   `yaml:"history"`
}

// RetrieveConfig converts the retriever section into retriever settings.
func (c *AppConfig) RetrieveConfig() retrieve.Config {
	return retrieve.Config{
		TopK:           c.Retriever.TopK,
		BoostNamespace: c.Retriever.BoostNamespace,
		BoostFactor:    c.Retriever.BoostFactor,
		MinScore:       c.Retriever.MinScore,
		AutoScope:      c.Retriever.AutoScope,
	}
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/kbase/config.yaml.
// If neither exists, it writes defaults to ~/.config/kbase/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "kbase", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Store:    StoreConfig{Type: "sqlite", Path: "data"},
		Embedder: EmbedderConfig{Type: "local"},
		Retriever: RetrieverConfig{
			TopK:           5,
			MinScore:       0.25,
			BoostNamespace: "policies",
			BoostFactor:    1.25,
			AutoScope:      true,
		},
		Rerank: RerankConfig{
			Enabled:        true,
			OriginalWeight: rerank.DefaultOriginalWeight,
			RerankWeight:   rerank.DefaultRerankWeight,
		},
		Ingest: IngestConfig{
			ChunkSize:         ingest.DefaultChunkSize,
			ChunkOverlap:      ingest.DefaultChunkOverlap,
			MaxRowsPerFile:    ingest.DefaultMaxRowsPerFile,
			MaxFilesPerSource: ingest.DefaultMaxFilesPerSource,
			Extensions:        []string{".txt", ".md", ".log", ".csv"},
		},
		History: HistoryConfig{
			LedgerPath: filepath.Join("data", "ledger.db"),
			KeepLast:   10,
		},
	}
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	def := defaultConfig()
	if cfg.Store.Type == "" {
		cfg.Store.Type = def.Store.Type
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = def.Store.Path
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = def.Embedder.Type
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
	}
	if cfg.Retriever.TopK == 0 {
		cfg.Retriever.TopK = def.Retriever.TopK
	}
	if cfg.Retriever.MinScore == 0 {
		cfg.Retriever.MinScore = def.Retriever.MinScore
	}
	if cfg.Retriever.BoostFactor == 0 {
		cfg.Retriever.BoostFactor = def.Retriever.BoostFactor
	}
	if cfg.Retriever.BoostNamespace == "" {
		cfg.Retriever.BoostNamespace = def.Retriever.BoostNamespace
	}
	if cfg.Rerank.OriginalWeight == 0 && cfg.Rerank.RerankWeight == 0 {
		cfg.Rerank.OriginalWeight = def.Rerank.OriginalWeight
		cfg.Rerank.RerankWeight = def.Rerank.RerankWeight
	}
	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = def.Ingest.ChunkSize
	}
	if cfg.Ingest.ChunkOverlap == 0 {
		cfg.Ingest.ChunkOverlap = def.Ingest.ChunkOverlap
	}
	if cfg.Ingest.MaxRowsPerFile == 0 {
		cfg.Ingest.MaxRowsPerFile = def.Ingest.MaxRowsPerFile
	}
	if cfg.Ingest.MaxFilesPerSource == 0 {
		cfg.Ingest.MaxFilesPerSource = def.Ingest.MaxFilesPerSource
	}
	if len(cfg.Ingest.Extensions) == 0 {
		cfg.Ingest.Extensions = def.Ingest.Extensions
	}
	if cfg.History.LedgerPath == "" {
		cfg.History.LedgerPath = def.History.LedgerPath
	}
	if cfg.History.KeepLast == 0 {
		cfg.History.KeepLast = def.History.KeepLast
	}
}
