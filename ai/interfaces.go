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

package ai

import "context"

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
//
// Embedders never retry. Failures are returned wrapped in
// core.ErrEmbeddingTransient or core.ErrEmbeddingPermanent so the caller
// can apply its own retry policy.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in one call.
	// The returned slice has the same length and order as texts.
	// An empty input returns an empty result without contacting the model.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the declared vector length, or 0 when the
	// implementation does not know it in advance.
	Dimensions() int
}

// Provider owns an Embedder and the resources behind it.
type Provider interface {
	// Embedder returns the text embedding service.
	// The returned Embedder is safe for concurrent use.
	Embedder() Embedder

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
