package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"embedding":[0.5,1,-2]}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic-embed-text", time.Second)
	vec, err := e.Embed(context.Background(), "Person works for Org")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.5, 1, -2}, vec)
	assert.Equal(t, "nomic-embed-text", got["model"])
	assert.Equal(t, "Person works for Org", got["prompt"])
}

func TestOllamaEmbedder_EmptyEmbedding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[]}`))
	}))
	defer srv.Close()

	_, err := NewOllamaEmbedder(srv.URL, "m", time.Second).Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,2,3]}]}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(srv.URL, "text-embedding-3-small", "secret", time.Second)
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, []float32{1, 2, 3}, vec)
	assert.Equal(t, "hello", got["input"])
	assert.Equal(t, "text-embedding-3-small", got["model"])
}

func TestOpenAIEmbedder_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewOpenAIEmbedder(srv.URL, "m", "", time.Second).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestOpenAIEmbedder_NoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIEmbedder(srv.URL, "m", "", time.Second).Embed(context.Background(), "x")
	assert.Error(t, err)
}

func TestEmbed_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOllamaEmbedder(srv.URL, "m", time.Second).Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}

type failingEmbedder struct{ calls int }

func (f *failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return nil, errors.New("service down")
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	inner := &failingEmbedder{}
	b := NewBreaker(inner, DefaultBreakerSettings("test"), nil)

	for i := 0; i < 3; i++ {
		_, err := b.Embed(context.Background(), "x")
		require.Error(t, err)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 3, inner.calls)
}

func TestNew(t *testing.T) {
	e, err := New(Options{Provider: ProviderNone})
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = New(Options{Provider: ProviderOllama, Model: "m"})
	require.NoError(t, err)
	assert.IsType(t, &Breaker{}, e)

	_, err = New(Options{Provider: "bogus"})
	assert.Error(t, err)
}
