// Package config provides configuration loading and structs for the kotae pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OllamaURLEnv overrides the base URL of both the embedding and the generation service.
const OllamaURLEnv = "KOTAE_OLLAMA_URL"

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// StorageConfig holds the persisted collection location and the upload directory.
type StorageConfig struct {
	CollectionName string `yaml:"collection_name"`
	CollectionPath string `yaml:"collection_path"`
	UploadDir      string `yaml:"upload_dir"`
}

// ChunkingConfig holds recursive splitter settings. Sizes are in characters.
// ChunkOverlap is a pointer so an explicit 0 is kept; nil means a quarter of ChunkSize.
type ChunkingConfig struct {
	ChunkSize    int      `yaml:"chunk_size"`
	ChunkOverlap *int     `yaml:"chunk_overlap"`
	Separators   []string `yaml:"separators"`
}

// Overlap returns the configured overlap, 0 when unset.
func (c ChunkingConfig) Overlap() int {
	if c.ChunkOverlap == nil {
		return 0
	}
	return *c.ChunkOverlap
}

// EmbeddingConfig selects and tunes the embedding service.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // ollama, onnx or mock
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	ModelPath  string        `yaml:"model_path"` // onnx only
	Dimensions int           `yaml:"dimensions"`
	MaxTokens  int           `yaml:"max_tokens"` // onnx only
	BatchSize  int           `yaml:"batch_size"`
	CacheSize  int           `yaml:"cache_size"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LLMConfig selects and tunes the generative model.
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // ollama or mock
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	// ExpansionPrompt and AnswerPrompt override the built-in templates when set.
	ExpansionPrompt string `yaml:"expansion_prompt,omitempty"`
	AnswerPrompt    string `yaml:"answer_prompt,omitempty"`
}

// RetrievalConfig holds multi-query retrieval settings.
type RetrievalConfig struct {
	TopKPerVariant   int    `yaml:"top_k_per_variant"`
	MaxConcurrency   int    `yaml:"max_concurrency"`
	Fusion           string `yaml:"fusion"` // first (default) or rrf
	MaxContextChunks int    `yaml:"max_context_chunks"`
	DisableExpansion bool   `yaml:"disable_expansion"`
}

// WatchConfig holds upload directory watch settings.
type WatchConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Extensions []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed, or if the result is invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	applyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.CollectionPath = expandPath(cfg.Storage.CollectionPath, configDir)
	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports configuration that would make the pipeline degenerate.
func (c *Config) Validate() error {
	var errs []error
	if c.Chunking.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunking.chunk_size must be positive, got %d", c.Chunking.ChunkSize))
	}
	if overlap := c.Chunking.Overlap(); overlap < 0 {
		errs = append(errs, fmt.Errorf("chunking.chunk_overlap must not be negative, got %d", overlap))
	} else if overlap >= c.Chunking.ChunkSize {
		errs = append(errs, fmt.Errorf("chunking.chunk_overlap (%d) must be smaller than chunk_size (%d)",
			overlap, c.Chunking.ChunkSize))
	}
	switch c.Embedding.Provider {
	case "ollama", "onnx", "mock":
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q is not supported", c.Embedding.Provider))
	}
	switch c.LLM.Provider {
	case "ollama", "mock":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported", c.LLM.Provider))
	}
	switch c.Retrieval.Fusion {
	case "first", "rrf":
	default:
		errs = append(errs, fmt.Errorf("retrieval.fusion %q is not supported", c.Retrieval.Fusion))
	}
	if c.Storage.CollectionPath == "" {
		errs = append(errs, errors.New("storage.collection_path is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func applyEnv(cfg *Config) {
	if url := strings.TrimSpace(os.Getenv(OllamaURLEnv)); url != "" {
		cfg.Embedding.BaseURL = url
		cfg.LLM.BaseURL = url
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
