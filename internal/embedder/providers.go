package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider turns a batch of texts into raw vectors for one model. Providers
// know nothing about caching, fallback or quantization; the Engine layers
// those on top.
type Provider interface {
	Embed(ctx context.Context, texts []string, model string) ([][]float32, error)
	Close() error
}

// Retry behavior for HTTP providers.
const (
	retryAttempts  = 3
	retryBaseDelay = 100 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
)

// HTTPProvider calls a remote embeddings endpoint using the common
// OpenAI-compatible wire format. Failed calls are retried with doubling
// delays up to retryAttempts.
type HTTPProvider struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client

	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewHTTPProvider creates a provider for an OpenAI-compatible endpoint.
func NewHTTPProvider(endpoint, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		attempts:  retryAttempts,
		baseDelay: retryBaseDelay,
		maxDelay:  retryMaxDelay,
	}
}

// Embed requests embeddings for texts, backing off between attempts.
func (p *HTTPProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}

	var lastErr error
	delay := p.baseDelay
	for attempt := 0; attempt < p.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay = min(delay*2, p.maxDelay)
		}

		vectors, err := p.callAPI(ctx, texts, model)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrProviderFailed, p.attempts, lastErr)
}

func (p *HTTPProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
		Model string `json:"model"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Data))
	}

	vectors := make([][]float32, len(apiResp.Data))
	for i, data := range apiResp.Data {
		vectors[i] = data.Embedding
	}

	return vectors, nil
}

// Close releases idle connections.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider produces deterministic embeddings derived from the text
// hash. Useful offline and as the last link of a fallback chain: the vectors
// carry no semantic signal but keep the pipeline flowing.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a local deterministic provider.
func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &LocalProvider{dimension: dimension}
}

// Embed derives a deterministic pseudo-embedding for each text.
func (l *LocalProvider) Embed(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if err := ValidateTexts(texts); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = l.vectorFor(text)
	}
	return vectors, nil
}

func (l *LocalProvider) vectorFor(text string) []float32 {
	vector := make([]float32, l.dimension)
	seed := sha256.Sum256([]byte(text))
	block := seed
	for i := 0; i < l.dimension; i++ {
		if i%len(block) == 0 && i > 0 {
			block = sha256.Sum256(block[:])
		}
		vector[i] = float32(block[i%len(block)]) / 255.0
	}
	return vector
}

// Close is a no-op.
func (l *LocalProvider) Close() error {
	return nil
}
