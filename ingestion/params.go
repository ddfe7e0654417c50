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

package ingestion

import (
	"fmt"
	"time"

	"github.com/poiesic/vectorload/normalize"
	"github.com/poiesic/vectorload/storage"
)

const (
	DefaultBatchSize  = 50
	DefaultMaxRetries = 4
)

// Stream binds a source stream to its normalizer and target table.
// The stream name is also its checkpoint key.
type Stream struct {
	Name      string
	Normalize normalize.Func
	Table     storage.Table
}

// Validate checks the stream definition.
func (s Stream) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: stream name is required", ErrInvalidParams)
	}
	if s.Normalize == nil {
		return fmt.Errorf("stream %s: %w", s.Name, ErrNormalizerRequired)
	}
	return s.Table.Validate()
}

// Params are the caller's knobs for one run.
type Params struct {
	// BatchSize is the number of input records per batch.
	BatchSize int `json:"batch_size"`

	// MaxRetries bounds retries per stage; attempts = MaxRetries + 1.
	MaxRetries *int `json:"max_retries,omitempty"`

	// Resume starts from the stored checkpoint when Start is unset.
	Resume bool `json:"resume"`

	// Start is an explicit start offset and wins over Resume.
	Start *int `json:"start,omitempty"`

	// Limit caps the records consumed by this run. 0 means no limit.
	Limit int `json:"limit"`
}

// DefaultParams resumes with the default batch size and retry ceiling.
func DefaultParams() Params {
	retries := DefaultMaxRetries
	return Params{BatchSize: DefaultBatchSize, MaxRetries: &retries, Resume: true}
}

// WithDefaults fills unset fields.
func (p Params) WithDefaults() Params {
	if p.BatchSize == 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.MaxRetries == nil {
		retries := DefaultMaxRetries
		p.MaxRetries = &retries
	}
	return p
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	if p.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidParams, p.BatchSize)
	}
	if p.MaxRetries != nil && *p.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative, got %d", ErrInvalidParams, *p.MaxRetries)
	}
	if p.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative, got %d", ErrInvalidParams, p.Limit)
	}
	return nil
}

// Result summarizes a run. On abort it reflects the work committed so far.
type Result struct {
	Stream      string `json:"stream"`
	Total       int    `json:"total"`
	StartOffset int    `json:"start_offset"`

	// EndOffset is the offset after the last committed batch. It equals
	// Total when the run completes without a limit.
	EndOffset int `json:"end_offset"`

	Batches            int `json:"batches"`
	Upserted           int `json:"upserted"`
	Skipped            int `json:"skipped"`
	Duplicates         int `json:"duplicates"`
	Retries            int `json:"retries"`
	CheckpointFailures int `json:"checkpoint_failures"`

	Elapsed time.Duration `json:"-"`

	// ElapsedSeconds mirrors Elapsed for JSON consumers.
	ElapsedSeconds float64 `json:"elapsed"`
}
