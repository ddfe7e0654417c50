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

// Package checkpoint persists one progress offset per ingestion stream.
//
// Every implementation stores the offset as base-10 text with no other
// bytes, so a checkpoint written by one store reads back identically from
// another. Read never fails: an absent, empty, negative or non-numeric
// value means offset 0. Write failures are returned wrapped in
// core.ErrCheckpointIO; callers log them and carry on.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/poiesic/vectorload/core"
)

// Store is durable stream to offset storage.
// Implementations must be safe for concurrent use across distinct streams.
type Store interface {
	// Read returns the stream's offset, or 0 when absent or unreadable.
	Read(ctx context.Context, stream string) int

	// Write replaces the stream's offset.
	Write(ctx context.Context, stream string, offset int) error
}

var (
	// ErrInvalidStream indicates a stream name that cannot be used as a key.
	ErrInvalidStream = errors.New("invalid stream name")

	// ErrNegativeOffset indicates an attempt to store an offset below zero.
	ErrNegativeOffset = errors.New("negative offset")
)

var streamPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)

// ValidateStream checks that name is a lower-case identifier usable as a
// file name, object key and KV key.
func ValidateStream(name string) error {
	if !streamPattern.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidStream, name)
	}
	return nil
}

// Parse decodes a stored offset. Anything but a non-negative base-10
// integer, surrounding whitespace allowed, yields 0 and false.
func Parse(data []byte) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Format encodes an offset for storage.
func Format(offset int) []byte {
	return []byte(strconv.Itoa(offset))
}

func checkWrite(stream string, offset int) error {
	if err := ValidateStream(stream); err != nil {
		return ioError(stream, err)
	}
	if offset < 0 {
		return ioError(stream, fmt.Errorf("%w: %d", ErrNegativeOffset, offset))
	}
	return nil
}

func ioError(stream string, err error) error {
	return fmt.Errorf("%w: stream %s: %w", core.ErrCheckpointIO, stream, err)
}
