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
	"errors"
	"fmt"
	"strings"
	"time"
)

// Provider kinds understood by the loader.
const (
	KindInference = "inference"
	KindOpenAI    = "openai"
	KindLocal     = "local"
)

// Config holds configuration for embedding providers.
type Config struct {
	// Kind selects the implementation: "inference", "openai" or "local".
	Kind string

	// Host is the base URL of the embedding service.
	// Example: "http://localhost:11434/v1" for a local OpenAI-compatible server
	Host string

	// Model is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small", "gemini-embedding-001"
	Model string

	// APIKey is sent as a bearer token. Local servers usually ignore it.
	APIKey string

	// Dimensions is the vector length every embedding must have.
	// Default: 768
	Dimensions int

	// Timeout bounds a single HTTP request to the service.
	// Default: 30s
	Timeout time.Duration

	// RequestsPerSecond throttles outbound calls when positive.
	RequestsPerSecond float64

	// Burst is the token bucket size used with RequestsPerSecond.
	// Default: 1
	Burst int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithKind sets the provider implementation.
func WithKind(kind string) ConfigOption {
	return func(c *Config) {
		c.Kind = kind
	}
}

// WithHost sets the embedding service host URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithModel sets the embedding model identifier.
func WithModel(model string) ConfigOption {
	return func(c *Config) {
		c.Model = model
	}
}

// WithAPIKey sets the bearer token.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithDimensions sets the declared vector length.
func WithDimensions(dims int) ConfigOption {
	return func(c *Config) {
		c.Dimensions = dims
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithRateLimit throttles outbound requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) ConfigOption {
	return func(c *Config) {
		c.RequestsPerSecond = rps
		c.Burst = burst
	}
}

// DefaultConfig returns a Config with sensible defaults for a local
// OpenAI-compatible service.
func DefaultConfig() *Config {
	return &Config{
		Kind:       KindOpenAI,
		Host:       "http://localhost:11434/v1",
		Model:      "embeddinggemma",
		Dimensions: 768,
		Timeout:    30 * time.Second,
		Burst:      1,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithKind(KindInference),
//	    WithHost("https://generativelanguage.googleapis.com/v1beta/openai"),
//	    WithModel("gemini-embedding-001"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// Trailing slashes are removed from the host. For the openai kind the /v1
// suffix is added if missing, which Ollama, LocalAI and vLLM all require.
func (c *Config) Normalize() {
	c.Kind = strings.ToLower(strings.TrimSpace(c.Kind))
	c.Host = strings.TrimRight(c.Host, "/")
	if c.Kind == KindOpenAI && c.Host != "" && !strings.HasSuffix(c.Host, "/v1") {
		c.Host += "/v1"
	}
	if c.Burst < 1 {
		c.Burst = 1
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Kind {
	case KindInference, KindOpenAI:
		if c.Host == "" {
			return errors.New("ai config: Host is required")
		}
		if c.Model == "" {
			return errors.New("ai config: Model is required")
		}
	case KindLocal:
	default:
		return fmt.Errorf("ai config: unknown provider kind %q", c.Kind)
	}
	if c.Dimensions < 1 {
		return errors.New("ai config: Dimensions must be positive")
	}
	if c.Timeout < 0 {
		return errors.New("ai config: Timeout must not be negative")
	}
	if c.RequestsPerSecond < 0 {
		return errors.New("ai config: RequestsPerSecond must not be negative")
	}
	return nil
}
