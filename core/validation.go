// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
	"math"
)

// ValidateVector validates an embedding vector before it is attached to a record.
//
// Validation rules:
//   - Vector must not be empty
//   - Length must equal dimensions when dimensions > 0
//   - Every component must be finite
func ValidateVector(v []float32, dimensions int) error {
	if len(v) == 0 {
		return ErrEmptyVector
	}

	if dimensions > 0 && len(v) != dimensions {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, dimensions, len(v))
	}

	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w at index %d", ErrNonFiniteVector, i)
		}
	}

	return nil
}
