package ingestion

import (
	"fmt"
	"math"

	"github.com/poiesic/vectorload/ai"
	"github.com/poiesic/vectorload/core"
)

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sum)

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}

// checkVectors validates a provider response for want texts and returns the
// unit-length vectors. Any mismatch is a permanent embedding failure.
func checkVectors(vectors [][]float32, want, dimensions int) ([]core.Vector, error) {
	if len(vectors) != want {
		return nil, ai.Permanent(fmt.Errorf("provider returned %d vectors for %d texts", len(vectors), want))
	}
	out := make([]core.Vector, len(vectors))
	for i, v := range vectors {
		if err := core.ValidateVector(v, dimensions); err != nil {
			return nil, ai.Permanent(fmt.Errorf("vector %d: %w", i, err))
		}
		out[i] = NormalizeVector(v)
	}
	return out, nil
}
