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

import "errors"

// Error kinds shared by every stage of an ingestion run.
// Adapters wrap their native errors with one of these so that callers
// can decide between skip, retry and abort with errors.Is.
var (
	// ErrMalformedRecord marks a raw record the normalizer discarded.
	// It is counted and never fatal.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrTransientStorage indicates a storage failure expected to succeed on retry,
	// such as a connection reset or timeout.
	ErrTransientStorage = errors.New("transient storage failure")

	// ErrPermanentStorage indicates a storage failure that will not succeed on retry,
	// such as a constraint violation, bad credentials or a schema mismatch.
	ErrPermanentStorage = errors.New("permanent storage failure")

	// ErrEmbeddingTransient indicates a provider timeout, throttling or network failure.
	ErrEmbeddingTransient = errors.New("transient embedding failure")

	// ErrEmbeddingPermanent indicates a bad request, auth failure or malformed model output.
	ErrEmbeddingPermanent = errors.New("permanent embedding failure")

	// ErrCheckpointIO indicates a checkpoint could not be read or written.
	// It is logged and never escalated.
	ErrCheckpointIO = errors.New("checkpoint io failure")
)

// Validation errors
var (
	// ErrEmptyVector indicates a vector with no components.
	ErrEmptyVector = errors.New("vector is empty")

	// ErrDimensionMismatch indicates a vector whose length differs from the declared dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrNonFiniteVector indicates a vector containing NaN or an infinity.
	ErrNonFiniteVector = errors.New("vector contains non-finite value")
)

// IsTransient reports whether err carries a retryable error kind.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientStorage) || errors.Is(err, ErrEmbeddingTransient)
}

// IsPermanent reports whether err carries a non-retryable storage or embedding kind.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentStorage) || errors.Is(err, ErrEmbeddingPermanent)
}
