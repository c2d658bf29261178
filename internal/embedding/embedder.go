// Package embedding turns paraphrase text into similarity vectors through an
// external embedding service.
//
// Calls are made with the caller's context; failures are returned, never
// panicked, so the history tracker can log them and leave an entry without
// an embedding.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Embedder converts text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider names an embedding backend.
type Provider string

const (
	ProviderNone   Provider = "none"
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// DefaultTimeout bounds a single embedding request.
const DefaultTimeout = 60 * time.Second

// Options selects and configures a backend.
type Options struct {
	Provider Provider
	URL      string
	Model    string
	APIKey   string
	Timeout  time.Duration

	// Breaker guards the backend; the zero value uses DefaultBreakerSettings.
	Breaker BreakerSettings

	Logger *slog.Logger
}

// New builds the configured embedder wrapped in a circuit breaker.
// ProviderNone (or "") returns nil, nil: similarity is disabled.
func New(opts Options) (Embedder, error) {
	var inner Embedder
	switch opts.Provider {
	case ProviderNone, "":
		return nil, nil
	case ProviderOllama:
		inner = NewOllamaEmbedder(opts.URL, opts.Model, opts.Timeout)
	case ProviderOpenAI:
		inner = NewOpenAIEmbedder(opts.URL, opts.Model, opts.APIKey, opts.Timeout)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", opts.Provider)
	}
	settings := opts.Breaker
	if settings == (BreakerSettings{}) {
		settings = DefaultBreakerSettings(string(opts.Provider))
	}
	return NewBreaker(inner, settings, opts.Logger), nil
}

func newClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}
