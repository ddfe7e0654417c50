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

package badger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/vectorload/storage"
)

// CheckpointRepository implements storage.CheckpointRepository for BadgerDB.
// Offsets are stored as base-10 text.
type CheckpointRepository struct {
	backend *Backend
}

var _ storage.CheckpointRepository = (*CheckpointRepository)(nil)

// NewCheckpointRepository creates a new CheckpointRepository.
func NewCheckpointRepository(backend *Backend) *CheckpointRepository {
	return &CheckpointRepository{
		backend: backend,
	}
}

// SaveCheckpoint persists the offset for a stream.
func (r *CheckpointRepository) SaveCheckpoint(ctx context.Context, stream string, offset int) error {
	return r.backend.WithTransaction(ctx, func(tx *badger.Txn) error {
		return tx.Set(makeCheckpointKey(stream), []byte(strconv.Itoa(offset)))
	})
}

// LoadCheckpoint retrieves the offset for a stream.
// Returns 0, false, nil if no checkpoint exists.
func (r *CheckpointRepository) LoadCheckpoint(ctx context.Context, stream string) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	var (
		offset int
		found  bool
	)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeCheckpointKey(stream))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}

		return item.Value(func(val []byte) error {
			n, err := strconv.Atoi(string(val))
			if err != nil {
				return fmt.Errorf("%w: checkpoint %q: %w", storage.ErrSerializationFailed, stream, err)
			}
			offset, found = n, true
			return nil
		})
	}, false)

	return offset, found, err
}
