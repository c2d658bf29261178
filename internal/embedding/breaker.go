package embedding

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"github.com/roach88/querygraph/internal/metrics"
)

// BreakerSettings tunes the circuit breaker around an embedder.
type BreakerSettings struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration

	// The breaker trips once MinRequests calls were made in an interval
	// and at least FailureThreshold of them failed.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerSettings returns settings for a named backend.
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{
		Name:             name,
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      3,
	}
}

// Breaker stops calling a failing embedding service for a while instead of
// piling up timed-out requests.
type Breaker struct {
	inner Embedder
	cb    *gobreaker.CircuitBreaker
}

// NewBreaker wraps inner. A nil logger uses slog.Default().
func NewBreaker(inner Embedder, s BreakerSettings, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("embedding circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Breaker{inner: inner, cb: cb}
}

// Embed calls the wrapped embedder unless the breaker is open, in which
// case it fails fast with gobreaker.ErrOpenState.
func (b *Breaker) Embed(ctx context.Context, text string) ([]float32, error) {
	timer := prometheus.NewTimer(metrics.EmbeddingDuration)
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Embed(ctx, text)
	})
	timer.ObserveDuration()
	metrics.EmbeddingRequests.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return out.([]float32), nil
}

// State reports the breaker state ("closed", "half-open", "open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}
