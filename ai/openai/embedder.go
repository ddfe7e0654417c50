package openai

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/poiesic/vectorload/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// localToken is sent to local OpenAI-compatible services that don't require authentication.
const localToken = "none"

// statusPattern extracts the HTTP status from langchaingo client errors.
var statusPattern = regexp.MustCompile(`status code:? (\d{3})`)

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
type Embedder struct {
	embedder   embeddings.Embedder
	dimensions int
	logger     *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Kind != ai.KindOpenAI {
		return nil, fmt.Errorf("openai: config kind is %q", config.Kind)
	}

	token := config.APIKey
	if token == "" {
		token = localToken
	}

	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.Model),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, err
	}

	return &Embedder{
		embedder:   embedder,
		dimensions: config.Dimensions,
		logger:     slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, classify(err)
	}
	if len(vectors) != len(texts) {
		return nil, ai.Permanent(fmt.Errorf("openai: got %d embeddings for %d texts", len(vectors), len(texts)))
	}
	return vectors, nil
}

// Dimensions returns the declared vector length.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// classify maps a langchaingo error to an embedding kind. The client reports
// HTTP failures only as text, so the status code is recovered from the message.
func classify(err error) error {
	if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
		code, _ := strconv.Atoi(m[1])
		return fmt.Errorf("%w: %w", ai.ClassifyStatus(code, ""), err)
	}
	return ai.Classify(err)
}
