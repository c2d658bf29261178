// Package config loads querygraph settings from YAML.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/querygraph/internal/embedding"
	"github.com/roach88/querygraph/internal/validation"
)

// APIKeyEnv overrides embedding.api_key when set.
const APIKeyEnv = "QUERYGRAPH_EMBEDDING_API_KEY"

type Config struct {
	Database string `yaml:"database" validate:"required"`
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	Query     QueryConfig     `yaml:"query"`
	Viewport  ViewportConfig  `yaml:"viewport"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Server    ServerConfig    `yaml:"server"`
}

// QueryConfig holds compile defaults.
type QueryConfig struct {
	Limit    int  `yaml:"limit" validate:"gte=0"`
	Offset   int  `yaml:"offset" validate:"gte=0"`
	Distinct bool `yaml:"distinct"`
}

// ViewportConfig is the target size for history layout rescaling.
type ViewportConfig struct {
	Width  float64 `yaml:"width" validate:"gte=0"`
	Height float64 `yaml:"height" validate:"gte=0"`
}

type EmbeddingConfig struct {
	Provider string        `yaml:"provider" validate:"oneof=none ollama openai"`
	URL      string        `yaml:"url" validate:"omitempty,url"`
	Model    string        `yaml:"model" validate:"required_unless=Provider none"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr" validate:"hostname_port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DefaultConfig returns a working configuration with embeddings disabled.
func DefaultConfig() Config {
	return Config{
		Database: "querygraph.db",
		LogLevel: "info",
		Query: QueryConfig{
			Limit:    50,
			Distinct: true,
		},
		Viewport: ViewportConfig{
			Width:  400,
			Height: 300,
		},
		Embedding: EmbeddingConfig{
			Provider: string(embedding.ProviderNone),
			Model:    "nomic-embed-text",
			Timeout:  embedding.DefaultTimeout,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
	}
}

// LoadConfig reads the YAML configuration file using strict parsing.
// Environment variables in the file are expanded. An empty path returns
// the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader([]byte(os.ExpandEnv(string(data)))))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("YAML syntax error in config: %w", err)
		}
	}

	if key := os.Getenv(APIKeyEnv); key != "" {
		cfg.Embedding.APIKey = key
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	if c.Embedding.Timeout < 0 {
		return validation.Problemf("embedding.timeout must not be negative")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EmbeddingOptions converts the embedding section for embedding.New.
func (c Config) EmbeddingOptions(logger *slog.Logger) embedding.Options {
	return embedding.Options{
		Provider: embedding.Provider(c.Embedding.Provider),
		URL:      c.Embedding.URL,
		Model:    c.Embedding.Model,
		APIKey:   c.Embedding.APIKey,
		Timeout:  c.Embedding.Timeout,
		Logger:   logger,
	}
}
