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
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/poiesic/vectorload/core"
)

// Transient wraps err as a retryable embedding failure.
func Transient(err error) error {
	if err == nil || errors.Is(err, core.ErrEmbeddingTransient) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrEmbeddingTransient, err)
}

// Permanent wraps err as a non-retryable embedding failure.
func Permanent(err error) error {
	if err == nil || errors.Is(err, core.ErrEmbeddingPermanent) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrEmbeddingPermanent, err)
}

// Classify wraps a transport error with its embedding kind. Timeouts and
// network failures are transient; errors already carrying a kind are kept;
// everything else is permanent. Cancellation is returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrEmbeddingTransient) || errors.Is(err, core.ErrEmbeddingPermanent) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(err)
	}
	return Permanent(err)
}

// StatusError reports a non-2xx response from an embedding service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("embedding service returned http %d", e.StatusCode)
	}
	return fmt.Sprintf("embedding service returned http %d: %s", e.StatusCode, e.Body)
}

// ClassifyStatus wraps a StatusError for code with its embedding kind.
// Throttling, request timeouts and server errors are transient.
func ClassifyStatus(code int, body string) error {
	err := &StatusError{StatusCode: code, Body: body}
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusTooEarly,
		code == http.StatusTooManyRequests,
		code >= 500:
		return Transient(err)
	default:
		return Permanent(err)
	}
}
