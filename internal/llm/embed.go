package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

// HTTPEmbedder implements Embedder against an OpenAI-compatible
// /v1/embeddings endpoint. The Anthropic SDK has no embeddings API, so
// embeddings go through a separate deployment-configured service.
type HTTPEmbedder struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
	retry    RetryConfig
}

// NewHTTPEmbedder creates an embedder from NEEDSCAN_EMBED_* environment
// variables.
func NewHTTPEmbedder() (*HTTPEmbedder, error) {
	endpoint := os.Getenv("NEEDSCAN_EMBED_ENDPOINT")
	if endpoint == "" {
		return nil, fmt.Errorf("NEEDSCAN_EMBED_ENDPOINT environment variable not set")
	}
	model := os.Getenv("NEEDSCAN_EMBED_MODEL")
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &HTTPEmbedder{
		endpoint: endpoint,
		apiKey:   os.Getenv("NEEDSCAN_EMBED_API_KEY"),
		model:    model,
		client:   &http.Client{Timeout: 30 * time.Second},
		retry:    DefaultRetryConfig(),
	}, nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding vector for text, retrying transient failures.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode embedding request: %w", err)
	}

	var vector []float64
	err = retryWithBackoff(ctx, e.retry, "embed", func(attemptCtx context.Context) error {
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, e.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if e.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+e.apiKey)
		}

		resp, err := e.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("embedding service returned %d", resp.StatusCode)
		}

		var decoded embedResponse
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return fmt.Errorf("failed to decode embedding response: %w", err)
		}
		if len(decoded.Data) == 0 || len(decoded.Data[0].Embedding) == 0 {
			return fmt.Errorf("embedding service returned no vector")
		}
		vector = decoded.Data[0].Embedding
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vector, nil
}
