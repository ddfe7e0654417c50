// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder and ai.Provider
// for use in unit tests. The mocks allow tests to run without external AI
// service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	embedder := mock.NewMockEmbedder()
//	vectors, err := embedder.EmbedTexts(ctx, []string{"a", "b"})
//
//	// Custom behavior injection
//	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, ai.Transient(errors.New("quota"))
//	}
//
//	// Check calls
//	count := embedder.CallCount()
//	batches := embedder.Batches()
//
// # Default Behavior
//
// MockEmbedder returns deterministic unit vectors derived from a hash of
// each text, with Dims components (384 unless set).
package mock
