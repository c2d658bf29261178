package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// DefaultOpenAIURL is the OpenAI embeddings endpoint. Any compatible
// server can be used instead.
const DefaultOpenAIURL = "https://api.openai.com/v1/embeddings"

// OpenAIEmbedder calls an OpenAI-compatible embeddings API.
type OpenAIEmbedder struct {
	URL    string
	Model  string
	APIKey string
	Client *http.Client
}

func NewOpenAIEmbedder(url, model, apiKey string, timeout time.Duration) *OpenAIEmbedder {
	if url == "" {
		url = DefaultOpenAIURL
	}
	return &OpenAIEmbedder{
		URL:    url,
		Model:  model,
		APIKey: apiKey,
		Client: newClient(timeout),
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]any{
		"input": text,
		"model": e.Model,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.URL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("openai returned status: %s", resp.Status)
	}

	// { "data": [ { "embedding": [...] } ] }
	var openAIResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&openAIResp); err != nil {
		return nil, fmt.Errorf("failed to decode openai response: %w", err)
	}
	if len(openAIResp.Data) == 0 {
		return nil, fmt.Errorf("openai returned no data")
	}
	return openAIResp.Data[0].Embedding, nil
}
