// SPDX-FileCopyrightText: Copyright 2025 Arcfield Labs
// SPDX-License-Identifier: Apache-2.0

// Package embeddings provides clients for turning tool descriptions and
// search queries into dense vectors via an OpenAI-compatible embeddings
// endpoint.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/arcfield/toolgate/pkg/logger"
	"github.com/arcfield/toolgate/pkg/registry/models"
)

// Client produces embedding vectors for text.
type Client interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension reports the vector width this client is configured for.
	Dimension() int

	// Health verifies the backing service is reachable and producing
	// vectors of the configured dimension.
	Health(ctx context.Context) error
}

// Options configures an HTTP embeddings client.
type Options struct {
	// BaseURL is the full URL of the embeddings endpoint, e.g.
	// "http://llm-gateway:8080/v1/embeddings".
	BaseURL string

	// APIKey, when set, is sent as a bearer token.
	APIKey string

	// Model is the model name passed through to the service.
	Model string

	// Dimension is the expected width of returned vectors.
	Dimension int

	// Timeout bounds each HTTP request. Defaults to 30s.
	Timeout time.Duration

	// MaxTries is the total attempt count per request, including the
	// first. Defaults to 3.
	MaxTries int

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

type httpClient struct {
	baseURL   string
	apiKey    string
	model     string
	dimension int
	maxTries  uint
	client    *http.Client
}

// NewHTTPClient returns a Client backed by an OpenAI-compatible
// embeddings endpoint.
func NewHTTPClient(opts Options) (Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("embeddings: base URL is required")
	}
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("embeddings: dimension must be positive, got %d", opts.Dimension)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxTries := opts.MaxTries
	if maxTries <= 0 {
		maxTries = 3
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &httpClient{
		baseURL:   opts.BaseURL,
		apiKey:    opts.APIKey,
		model:     opts.Model,
		dimension: opts.Dimension,
		maxTries:  uint(maxTries),
		client:    client,
	}, nil
}

func (c *httpClient) Dimension() int {
	return c.dimension
}

func (c *httpClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (c *httpClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors, err := c.request(ctx, texts)
	if err == nil {
		return vectors, nil
	}
	if len(texts) == 1 || !isBatchRefusal(err) {
		return nil, err
	}

	// Some gateways reject multi-input requests outright. Fall back to
	// one request per text so a batch-hostile backend still works.
	logger.Warnf("Embedding service refused batch of %d, falling back to sequential requests: %v", len(texts), err)
	vectors = make([][]float32, len(texts))
	for i, text := range texts {
		vec, embErr := c.Embed(ctx, text)
		if embErr != nil {
			return nil, fmt.Errorf("sequential fallback at input %d: %w", i, embErr)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (c *httpClient) Health(ctx context.Context) error {
	_, err := c.Embed(ctx, "healthcheck")
	return err
}

// statusError marks an HTTP failure so callers can distinguish a
// backend refusing batches from a backend that is down.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("embedding service returned %d: %s", e.code, e.body)
}

// isBatchRefusal reports whether the endpoint rejected the request for
// sending multiple inputs at once. A 400/422 alone is not enough; the
// error body has to name the batch or array shape, so that ordinary
// validation failures do not trigger a pointless sequential retry.
func isBatchRefusal(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	if se.code != http.StatusBadRequest && se.code != http.StatusUnprocessableEntity {
		return false
	}
	body := strings.ToLower(se.body)
	return strings.Contains(body, "batch") || strings.Contains(body, "array")
}

func (c *httpClient) request(ctx context.Context, texts []string) ([][]float32, error) {
	payload := map[string]any{"input": texts}
	if c.model != "" {
		payload["model"] = c.model
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling embedding request: %w", err)
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 500 * time.Millisecond
	expBackoff.MaxInterval = 5 * time.Second

	operation := func() ([][]float32, error) {
		vectors, reqErr := c.doOnce(ctx, body, len(texts))
		if reqErr == nil {
			return vectors, nil
		}
		var se *statusError
		if errors.As(reqErr, &se) && se.code >= 400 && se.code < 500 && se.code != http.StatusTooManyRequests {
			return nil, backoff.Permanent(reqErr)
		}
		return nil, reqErr
	}

	vectors, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(c.maxTries),
		backoff.WithNotify(func(err error, duration time.Duration) {
			logger.Debugf("Retrying embedding request after %v: %v", duration, err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

func (c *httpClient) doOnce(ctx context.Context, body []byte, want int) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embedding service: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("reading embedding response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{code: resp.StatusCode, body: truncateBody(data)}
	}

	vectors, err := parseVectors(data)
	if err != nil {
		return nil, err
	}
	if len(vectors) != want {
		return nil, fmt.Errorf("%w: got %d vectors for %d inputs", models.ErrEmbeddingShape, len(vectors), want)
	}
	for i, vec := range vectors {
		if len(vec) != c.dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d",
				models.ErrEmbeddingShape, i, len(vec), c.dimension)
		}
	}
	return vectors, nil
}

func truncateBody(data []byte) string {
	const maxLen = 512
	if len(data) > maxLen {
		return string(data[:maxLen]) + "..."
	}
	return string(data)
}

// parseVectors accepts the three response shapes seen in the wild:
// OpenAI's {"data": [{"embedding": [...], "index": n}, ...]},
// TEI-style {"embeddings": [[...], ...]}, and a bare [[...], ...].
func parseVectors(data []byte) ([][]float32, error) {
	var openai struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &openai); err == nil && len(openai.Data) > 0 {
		sort.SliceStable(openai.Data, func(i, j int) bool {
			return openai.Data[i].Index < openai.Data[j].Index
		})
		vectors := make([][]float32, len(openai.Data))
		for i, item := range openai.Data {
			vectors[i] = item.Embedding
		}
		return vectors, nil
	}

	var wrapped struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Embeddings) > 0 {
		return wrapped.Embeddings, nil
	}

	var bare [][]float32
	if err := json.Unmarshal(data, &bare); err == nil && len(bare) > 0 {
		return bare, nil
	}

	return nil, fmt.Errorf("%w: unrecognized embedding response shape", models.ErrEmbeddingShape)
}
