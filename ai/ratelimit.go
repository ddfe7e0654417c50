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

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an Embedder with a token bucket.
type RateLimited struct {
	next    Embedder
	limiter *rate.Limiter
}

var _ Embedder = (*RateLimited)(nil)

// NewRateLimited wraps next so that at most rps calls per second are made,
// with bursts up to burst. A non-positive rps returns next unchanged.
func NewRateLimited(next Embedder, rps float64, burst int) Embedder {
	if rps <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *RateLimited) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.EmbedText(ctx, text)
}

func (r *RateLimited) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.EmbedTexts(ctx, texts)
}

func (r *RateLimited) Dimensions() int {
	return r.next.Dimensions()
}

// wait blocks for a token. A wait that would outlive the context deadline
// is reported as transient so the caller may retry later.
func (r *RateLimited) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		if ctx.Err() == context.Canceled {
			return ctx.Err()
		}
		return Transient(err)
	}
	return nil
}
