package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/viant/scy/cred/secret"
)

// Client is a minimal OpenAI embeddings HTTP client that satisfies
// embedpipeline.Embedder directly. It is grounded on the teacher's
// genai/embedder/provider/openai client (same endpoint, same Bearer-auth
// JSON POST) and on factory.go's secret-resolution pattern, collapsed out
// of the teacher's base.Client/base.Config mixin and multi-provider
// Factory: this repo keeps one provider, so that indirection has nothing
// left to share across.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
	apiKey     string
}

// New resolves cfg's API key (via apiKeyURL through secrets, falling back
// to OPENAI_API_KEY, matching the teacher's own resolution order) and
// returns a ready-to-use Client. Passing a nil secrets constructs one with
// secret.New(), as the teacher's factory.New does.
func New(ctx context.Context, cfg Config, secrets *secret.Service) (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if cfg.APIKeyURL != "" {
		if secrets == nil {
			secrets = secret.New()
		}
		key, err := secrets.GeyKey(ctx, cfg.APIKeyURL)
		if err != nil {
			return nil, fmt.Errorf("embedder: resolve api key: %w", err)
		}
		apiKey = key.Secret
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
	}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed implements embedpipeline.Embedder: a single input_text -> vector
// call, with no intervening batch/multi-text layer (the pipeline calls it
// once per sub-chunk, paced by its own sliding-window operation budget).
func (c *Client) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	if model == "" {
		model = c.model
	}

	body, err := json.Marshal(embeddingRequest{Model: model, Input: []string{text}})
	if err != nil {
		return nil, fmt.Errorf("embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedder: read response: %w", err)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("embedder: decode response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return nil, &statusError{code: resp.StatusCode, message: msg}
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedder: provider returned no vectors")
	}
	return parsed.Data[0].Embedding, nil
}

// statusError carries the provider's HTTP status so callers can read it
// through StatusCode instead of string-matching the error text.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string { return fmt.Sprintf("embedder: api error (%d): %s", e.code, e.message) }

// StatusCode reports the HTTP status code of a failed Embed call, or 0 if
// err did not come from this client.
func StatusCode(err error) int {
	if se, ok := err.(*statusError); ok {
		return se.code
	}
	return 0
}
