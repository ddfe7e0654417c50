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

// Package cache puts a content-addressed embedding cache in front of an
// ai.Embedder. Re-running a stream after a crash re-embeds the last
// in-flight batch; the cache turns that into local reads.
package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/vectorload/ai"
	"github.com/poiesic/vectorload/core"
	"github.com/poiesic/vectorload/storage"
)

// Embedder serves cached vectors and embeds only the misses.
// Cache failures are logged and never fail a call.
type Embedder struct {
	next   ai.Embedder
	repo   storage.VectorRepository
	model  string
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// New wraps next with a cache stored in repo. The model name is part of
// every key so vectors from different models never mix.
func New(next ai.Embedder, repo storage.VectorRepository, model string) *Embedder {
	return &Embedder{
		next:   next,
		repo:   repo,
		model:  model,
		logger: slog.Default().With("component", "embedding-cache"),
	}
}

func (e *Embedder) key(text string) core.ID {
	return core.IDFromContent(e.model + "\x00" + text)
}

// EmbedText returns the cached vector for text or embeds it.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts returns cached vectors and embeds the misses in one call.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	ids := make([]core.ID, len(texts))
	for i, text := range texts {
		ids[i] = e.key(text)
	}

	cached, err := e.repo.GetVectors(ctx, ids)
	if err != nil {
		e.logger.Warn("embedding cache read failed", "err", err)
		cached = nil
	}

	out := make([][]float32, len(texts))
	var (
		missTexts []string
		missIdx   []int
	)
	for i, id := range ids {
		if v, ok := cached[id]; ok && (e.Dimensions() == 0 || len(v) == e.Dimensions()) {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, texts[i])
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		e.logger.Debug("embedding cache hit", "count", len(texts))
		return out, nil
	}

	fresh, err := e.next.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, ai.Permanent(fmt.Errorf("cache: got %d embeddings for %d texts", len(fresh), len(missTexts)))
	}

	toStore := make(map[core.ID][]float32, len(fresh))
	for j, v := range fresh {
		out[missIdx[j]] = v
		toStore[ids[missIdx[j]]] = v
	}
	if err := e.repo.PutVectors(ctx, toStore); err != nil {
		e.logger.Warn("embedding cache write failed", "err", err)
	}
	e.logger.Debug("embedding cache", "hits", len(texts)-len(missTexts), "misses", len(missTexts))
	return out, nil
}

// Dimensions returns the wrapped embedder's dimensionality.
func (e *Embedder) Dimensions() int {
	return e.next.Dimensions()
}
