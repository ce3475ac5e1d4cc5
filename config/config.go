package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the question answering service.
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieve  RetrieveConfig  `yaml:"retrieve"`
	Rerank    RerankConfig    `yaml:"rerank"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StoreConfig describes how to reach the vector store.
type StoreConfig struct {
	Provider       string        `yaml:"provider"`   // "auto", "bolt", "pgvector", "memory"
	Path           string        `yaml:"path"`       // local bolt file; relative to the root dir
	URI            string        `yaml:"uri"`        // remote endpoint (postgres DSN)
	TokenEnv       string        `yaml:"token_env"`  // environment variable holding the remote token
	Collection     string        `yaml:"collection"`
	ConnectRetries int           `yaml:"connect_retries"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // "hash", "openai", "ollama", "gemini"
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
	BaseURL   string `yaml:"base_url"`
	Dimension int    `yaml:"dimension"`
	CacheSize int    `yaml:"cache_size"`
}

// LLMConfig holds the scoring/generation model configuration.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // "none", "openai", "ollama", "gemini"
	Model       string        `yaml:"model"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK int `yaml:"top_k"`
}

// RerankConfig holds reranking configuration.
type RerankConfig struct {
	Strategy       string        `yaml:"strategy"` // "similarity" or "model"
	MaxDocChars    int           `yaml:"max_doc_chars"`
	DefaultScore   float64       `yaml:"default_score"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	Timeout        time.Duration `yaml:"timeout"`
}

// IngestConfig holds configuration for loading chunk record files.
type IngestConfig struct {
	Includes  []string `yaml:"includes"`
	Excludes  []string `yaml:"excludes"`
	BatchSize int      `yaml:"batch_size"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Provider:       "auto",
			Path:           filepath.Join(".rag", "vectors.db"),
			TokenEnv:       "STORE_API_TOKEN",
			Collection:     "BoviCareDocuments",
			ConnectRetries: 3,
			ConnectTimeout: 10 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "hash",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 384,
			CacheSize: 1024,
		},
		LLM: LLMConfig{
			Provider:    "none",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0,
			Timeout:     60 * time.Second,
			MaxRetries:  3,
		},
		Retrieve: RetrieveConfig{
			TopK: 5,
		},
		Rerank: RerankConfig{
			Strategy:       "similarity",
			MaxDocChars:    1000,
			DefaultScore:   0.5,
			MaxConcurrency: 8,
			Timeout:        30 * time.Second,
		},
		Ingest: IngestConfig{
			Includes:  []string{"**/*.json", "**/*.jsonl"},
			Excludes:  []string{"**/.rag/**", "**/.git/**", "**/node_modules/**"},
			BatchSize: 100,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for rag.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "rag.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".rag", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides connection settings from the environment. STORE_URI
// selects a remote store; STORE_DATA_DIR relocates the local store file.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if uri := getenv("STORE_URI"); uri != "" {
		c.Store.URI = uri
	}
	if dir := getenv("STORE_DATA_DIR"); dir != "" {
		c.Store.Path = filepath.Join(dir, fmt.Sprintf("vectors_%s.db", c.Store.Collection))
	}
}

// StoreProvider resolves "auto" to a concrete store provider.
func (c *Config) StoreProvider() string {
	if c.Store.Provider == "" || c.Store.Provider == "auto" {
		if c.Store.URI != "" {
			return "pgvector"
		}
		return "bolt"
	}
	return c.Store.Provider
}

// StorePath returns the local store file, resolved against dir when relative.
func (c *Config) StorePath(dir string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(dir, c.Store.Path)
}

// Validate checks value ranges. Provider tags are checked against the
// registries by the container.
func (c *Config) Validate() error {
	var errs []error

	if c.Store.Collection == "" {
		errs = append(errs, errors.New("store.collection must not be empty"))
	}
	if c.Embedding.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding.dimension must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Retrieve.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieve.top_k must be positive, got %d", c.Retrieve.TopK))
	}
	if c.Rerank.DefaultScore < 0 || c.Rerank.DefaultScore > 1 {
		errs = append(errs, fmt.Errorf("rerank.default_score must be within [0,1], got %v", c.Rerank.DefaultScore))
	}
	if c.Rerank.MaxDocChars <= 0 {
		errs = append(errs, fmt.Errorf("rerank.max_doc_chars must be positive, got %d", c.Rerank.MaxDocChars))
	}
	if c.Rerank.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("rerank.max_concurrency must be positive, got %d", c.Rerank.MaxConcurrency))
	}
	if c.Rerank.Strategy == "model" && (c.LLM.Provider == "" || c.LLM.Provider == "none") {
		errs = append(errs, errors.New("rerank.strategy \"model\" requires llm.provider"))
	}
	if c.Ingest.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize))
	}

	return errors.Join(errs...)
}

// RAGDir returns the .rag directory under dir.
func RAGDir(dir string) string {
	return filepath.Join(dir, ".rag")
}

// EnsureRAGDir ensures the .rag directory exists.
func EnsureRAGDir(dir string) error {
	return os.MkdirAll(RAGDir(dir), 0755)
}
