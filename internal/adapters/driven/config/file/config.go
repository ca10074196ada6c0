// Package file loads the Corpora configuration from a TOML file, with
// environment variable overrides for credentials.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config is the full CLI configuration.
type Config struct {
	// DataDir is where the SQLite database lives. Empty means
	// ~/.corpora/data.
	DataDir string `toml:"data_dir"`

	Chunking   ChunkingConfig   `toml:"chunking"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Extraction ExtractionConfig `toml:"extraction"`
}

// ChunkingConfig controls the document chunker.
type ChunkingConfig struct {
	ChunkSize int `toml:"chunk_size" validate:"gt=0"`
	Overlap   int `toml:"overlap" validate:"gte=0,ltfield=ChunkSize"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "openai", "ollama" or "none".
	Provider string `toml:"provider" validate:"oneof=openai ollama none"`

	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url" validate:"omitempty,url"`
	Model   string `toml:"model"`

	// RequestsPerMinute throttles embedding calls during indexing.
	RequestsPerMinute int `toml:"requests_per_minute" validate:"gte=0"`
}

// ExtractionConfig configures the entity extraction collaborator.
type ExtractionConfig struct {
	// Enabled turns the LLM extractor on. Indexing without it still
	// works; profile fields report their defaults.
	Enabled bool `toml:"enabled"`

	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url" validate:"omitempty,url"`
	Model   string `toml:"model"`

	// MaxChars caps how much document text one extraction call sees.
	MaxChars int `toml:"max_chars" validate:"omitempty,gte=500"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Chunking: ChunkingConfig{
			ChunkSize: 1500,
			Overlap:   150,
		},
		Embedding: EmbeddingConfig{
			Provider:          "none",
			RequestsPerMinute: 60,
		},
		Extraction: ExtractionConfig{
			MaxChars: 6000,
		},
	}
}

// DefaultPath returns ~/.corpora/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".corpora", "config.toml"), nil
}

// Load reads the config file at path, applies environment overrides and
// validates the result. A missing file yields the defaults; path "" uses
// DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// No config file yet; env overrides still apply.
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnvOverrides lets credentials and endpoints come from the
// environment so they stay out of the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CORPORA_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CORPORA_EMBEDDING_PROVIDER"); v != "" {
		cfg.Embedding.Provider = v
	}
	if v := os.Getenv("CORPORA_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("CORPORA_EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("CORPORA_EMBEDDING_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
	if v := os.Getenv("CORPORA_EXTRACTION_API_KEY"); v != "" {
		cfg.Extraction.APIKey = v
		cfg.Extraction.Enabled = true
	}
	if v := os.Getenv("CORPORA_EXTRACTION_BASE_URL"); v != "" {
		cfg.Extraction.BaseURL = v
	}
	if v := os.Getenv("CORPORA_EXTRACTION_MODEL"); v != "" {
		cfg.Extraction.Model = v
	}
	if v := os.Getenv("CORPORA_EXTRACTION_MAX_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Extraction.MaxChars = n
		}
	}
	// OPENAI_API_KEY is the common fallback for both collaborators.
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
		if cfg.Extraction.APIKey == "" {
			cfg.Extraction.APIKey = v
		}
	}
}
