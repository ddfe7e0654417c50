// Package inference implements ai.Embedder against any service exposing an
// OpenAI-compatible POST /embeddings endpoint, such as the Gemini
// compatibility layer or a self-hosted inference server.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/poiesic/vectorload/ai"
)

// maxErrorBody bounds how much of an error response is kept for logging.
const maxErrorBody = 512

// Embedder calls an OpenAI-compatible embeddings endpoint over HTTP.
type Embedder struct {
	baseURL    string
	model      string
	apiKey     string
	dimensions int
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// Option customizes an Embedder.
type Option func(*Embedder)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Embedder) {
		e.httpClient = c
	}
}

// NewEmbedder creates an embedder for the configured host and model.
func NewEmbedder(config *ai.Config, opts ...Option) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Kind != ai.KindInference {
		return nil, fmt.Errorf("inference: config kind is %q", config.Kind)
	}

	e := &Embedder{
		baseURL:    config.Host,
		model:      config.Model,
		apiKey:     config.APIKey,
		dimensions: config.Dimensions,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     slog.Default().With("component", "inference-embedder"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates embeddings for texts with a single request.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	var parsed embeddingResponse
	req := embeddingRequest{Model: e.model, Input: texts, Dimensions: e.dimensions}
	if err := e.postJSON(ctx, e.baseURL+"/embeddings", req, &parsed); err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, err
	}

	if len(parsed.Data) != len(texts) {
		return nil, ai.Permanent(fmt.Errorf("inference: got %d embeddings for %d texts", len(parsed.Data), len(texts)))
	}

	out := make([][]float32, len(texts))
	for i, d := range parsed.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			idx = i
		}
		out[idx] = d.Embedding
	}
	return out, nil
}

// Dimensions returns the declared vector length.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// postJSON sends body to url and decodes the JSON response into out.
// Errors are classified as transient or permanent.
func (e *Embedder) postJSON(ctx context.Context, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return ai.Permanent(fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return ai.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return ai.Classify(fmt.Errorf("http error: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return ai.ClassifyStatus(resp.StatusCode, string(bytes.TrimSpace(snippet)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ai.Transient(fmt.Errorf("read response: %w", err))
		}
		return ai.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}
