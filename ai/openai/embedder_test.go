package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/poiesic/vectorload/ai"
	"github.com/poiesic/vectorload/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"throttled", errors.New("API returned unexpected status code: 429: rate limit reached"), true},
		{"server error", errors.New("API returned unexpected status code: 503"), true},
		{"bad request", errors.New("API returned unexpected status code: 400: invalid input"), false},
		{"unauthorized", errors.New("API returned unexpected status code: 401: invalid api key"), false},
		{"deadline", context.DeadlineExceeded, true},
		{"unknown", errors.New("unexpected end of model output"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			assert.ErrorIs(t, got, tt.err)
			assert.Equal(t, tt.transient, core.IsTransient(got))
			assert.Equal(t, !tt.transient, errors.Is(got, core.ErrEmbeddingPermanent))
		})
	}
}

func TestNewEmbedder(t *testing.T) {
	t.Run("wrong kind", func(t *testing.T) {
		_, err := NewEmbedder(ai.NewConfig(ai.WithKind(ai.KindInference), ai.WithHost("http://x")))
		assert.Error(t, err)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewEmbedder(ai.NewConfig(ai.WithModel("")))
		assert.Error(t, err)
	})
}

func TestEmbedTexts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"m","data":[` +
			`{"object":"embedding","index":0,"embedding":[0.6,0.8]},` +
			`{"object":"embedding","index":1,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	provider, err := NewProvider(ai.NewConfig(ai.WithHost(srv.URL), ai.WithModel("m"), ai.WithDimensions(2)))
	require.NoError(t, err)
	defer provider.Close()

	embedder := provider.Embedder()
	assert.Equal(t, 2, embedder.Dimensions())

	empty, err := embedder.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	vectors, err := embedder.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.6, 0.8}, {1, 0}}, vectors)
}
