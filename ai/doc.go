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

// Package ai provides the embedding abstraction used by the ingestion engine.
//
// This package defines the Embedder interface together with the error
// classification every implementation applies at its boundary. The core
// depends on these abstractions rather than on a concrete model or service.
//
// # Implementation Packages
//
//   - ai/inference: OpenAI-compatible /embeddings endpoint over plain HTTP
//   - ai/openai: OpenAI-compatible services through langchaingo
//   - ai/local: in-process hashing model, no network
//   - ai/cache: content-addressed cache in front of any Embedder
//   - ai/mock: test doubles for unit testing without external dependencies
//
// # Failure Contract
//
// Embedders do not retry. Every failure is wrapped in either
// core.ErrEmbeddingTransient (timeouts, throttling, connection loss, 5xx)
// or core.ErrEmbeddingPermanent (bad request, auth failure, malformed
// response) using Transient, Permanent, Classify or ClassifyStatus. Retry
// policy belongs to the caller.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithKind(ai.KindInference), ai.WithHost(host), ai.WithModel(model))
//	embedder, err := inference.NewEmbedder(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	embedder = ai.NewRateLimited(embedder, cfg.RequestsPerSecond, cfg.Burst)
//
//	vectors, err := embedder.EmbedTexts(ctx, []string{"Python | Java"})
package ai
