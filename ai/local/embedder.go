// Package local implements ai.Embedder in-process, without a network call.
//
// The model is a signed feature-hashing projection over word unigrams, word
// bigrams and character trigrams. It is deterministic, needs no weights
// file, and places texts sharing vocabulary near each other under cosine
// distance. It suits development, tests and air-gapped runs; it is not a
// substitute for a trained model.
package local

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/poiesic/vectorload/ai"
)

const (
	unigramWeight = 1.0
	bigramWeight  = 0.5
	trigramWeight = 0.25
)

// Embedder is an in-process hashing embedder. The zero value is not usable;
// create one with NewEmbedder.
type Embedder struct {
	dimensions int
	seed       uint64

	once      sync.Once
	stopwords map[string]struct{}
	logger    *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder creates a local embedder producing vectors of the configured
// dimensionality. The model itself is built on first use.
func NewEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Embedder{
		dimensions: config.Dimensions,
		seed:       xxhash.Sum64String(config.Model),
		logger:     slog.Default().With("component", "local-embedder"),
	}, nil
}

// load builds the model once for the lifetime of the Embedder.
func (e *Embedder) load() {
	e.once.Do(func() {
		e.stopwords = make(map[string]struct{}, len(stopwordList))
		for _, w := range stopwordList {
			e.stopwords[w] = struct{}{}
		}
		e.logger.Debug("local embedding model ready", "dimensions", e.dimensions)
	})
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.load()
	return e.embed(text), nil
}

// EmbedTexts generates vector embeddings for multiple text strings.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.load()

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = e.embed(text)
	}
	return out, nil
}

// Dimensions returns the vector length.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

func (e *Embedder) embed(text string) []float32 {
	acc := make([]float64, e.dimensions)

	words := e.tokenize(text)
	for i, w := range words {
		e.add(acc, "w:"+w, unigramWeight)
		if i > 0 {
			e.add(acc, "b:"+words[i-1]+" "+w, bigramWeight)
		}
		padded := []rune("^" + w + "$")
		for j := 0; j+3 <= len(padded); j++ {
			e.add(acc, "c:"+string(padded[j:j+3]), trigramWeight)
		}
	}
	if len(words) == 0 {
		// Texts without words still get a stable, non-zero vector.
		e.add(acc, "t:"+strings.TrimSpace(text), unigramWeight)
	}

	var sum float64
	for _, v := range acc {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		acc[0], norm = 1, 1
	}

	vector := make([]float32, e.dimensions)
	for i, v := range acc {
		vector[i] = float32(v / norm)
	}
	return vector
}

// add hashes feature into a bucket with a hash-derived sign.
func (e *Embedder) add(acc []float64, feature string, weight float64) {
	h := xxhash.Sum64String(feature) ^ e.seed
	idx := h % uint64(len(acc))
	if h>>63 == 1 {
		weight = -weight
	}
	acc[idx] += weight
}

func (e *Embedder) tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
	words := fields[:0]
	for _, f := range fields {
		if _, stop := e.stopwords[f]; stop {
			continue
		}
		words = append(words, f)
	}
	return words
}

var stopwordList = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from", "in", "is",
	"it", "of", "on", "or", "that", "the", "to", "with",
}
