package local

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/poiesic/vectorload/ai"
	"github.com/poiesic/vectorload/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEmbedder(t *testing.T, dims int) *Embedder {
	t.Helper()
	e, err := NewEmbedder(ai.NewConfig(ai.WithKind(ai.KindLocal), ai.WithModel("hash-v1"), ai.WithDimensions(dims)))
	require.NoError(t, err)
	return e
}

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestEmbedTexts(t *testing.T) {
	e := newTestEmbedder(t, 384)
	ctx := context.Background()

	texts := []string{
		"Python | pandas | numpy",
		"Data analysis with Python and pandas",
		"Pottery glazing techniques",
		"",
	}
	vectors, err := e.EmbedTexts(ctx, texts)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	for i, v := range vectors {
		require.NoError(t, core.ValidateVector(v, 384), "vector %d", i)

		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5, "vector %d is unit length", i)
	}

	assert.Greater(t, cosine(vectors[0], vectors[1]), cosine(vectors[0], vectors[2]))
}

func TestEmbedText_Deterministic(t *testing.T) {
	a := newTestEmbedder(t, 64)
	b := newTestEmbedder(t, 64)

	va, err := a.EmbedText(context.Background(), "Golang, SQL")
	require.NoError(t, err)
	vb, err := b.EmbedText(context.Background(), "Golang, SQL")
	require.NoError(t, err)

	assert.Equal(t, va, vb)
	assert.Equal(t, 64, a.Dimensions())
}

func TestEmbedTexts_Empty(t *testing.T) {
	vectors, err := newTestEmbedder(t, 8).EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestEmbedTexts_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEmbedder(t, 8).EmbedTexts(ctx, []string{"x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoad_Concurrent(t *testing.T) {
	e := newTestEmbedder(t, 32)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.EmbedText(context.Background(), "the go programming language")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Contains(t, e.stopwords, "the")
}
