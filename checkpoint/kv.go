package checkpoint

import (
	"context"
	"log/slog"

	"github.com/poiesic/vectorload/storage"
)

// KVStore keeps offsets in an embedded key-value repository.
type KVStore struct {
	repo   storage.CheckpointRepository
	logger *slog.Logger
}

var _ Store = (*KVStore)(nil)

// NewKVStore wraps repo, typically a badger.CheckpointRepository.
func NewKVStore(repo storage.CheckpointRepository) *KVStore {
	return &KVStore{
		repo:   repo,
		logger: slog.Default().With("component", "checkpoint", "store", "kv"),
	}
}

// Read returns the stored offset, or 0.
func (s *KVStore) Read(ctx context.Context, stream string) int {
	if err := ValidateStream(stream); err != nil {
		s.logger.Warn("checkpoint read skipped", "stream", stream, "err", err)
		return 0
	}

	offset, found, err := s.repo.LoadCheckpoint(ctx, stream)
	if err != nil {
		s.logger.Warn("checkpoint unreadable, starting from 0", "stream", stream, "err", err)
		return 0
	}
	if !found || offset < 0 {
		return 0
	}
	return offset
}

// Write replaces the stored offset.
func (s *KVStore) Write(ctx context.Context, stream string, offset int) error {
	if err := checkWrite(stream, offset); err != nil {
		return err
	}
	if err := s.repo.SaveCheckpoint(ctx, stream, offset); err != nil {
		return ioError(stream, err)
	}
	return nil
}
