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

package checkpoint

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FileExtension is appended to the stream name to form the file name.
const FileExtension = ".checkpoint"

// FileStore keeps each stream's offset in its own file under a directory.
// Writes go to a temporary file that is renamed into place.
type FileStore struct {
	dir    string
	logger *slog.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store rooted at dir. The directory is created on
// the first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		dir:    dir,
		logger: slog.Default().With("component", "checkpoint", "store", "file"),
	}
}

// Path returns the file holding stream's offset.
func (s *FileStore) Path(stream string) string {
	return filepath.Join(s.dir, stream+FileExtension)
}

// Read returns the stored offset, or 0.
func (s *FileStore) Read(ctx context.Context, stream string) int {
	if err := ValidateStream(stream); err != nil {
		s.logger.Warn("checkpoint read skipped", "stream", stream, "err", err)
		return 0
	}

	data, err := os.ReadFile(s.Path(stream))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("checkpoint unreadable, starting from 0", "stream", stream, "err", err)
		}
		return 0
	}

	offset, ok := Parse(data)
	if !ok && len(data) > 0 {
		s.logger.Warn("checkpoint corrupt, starting from 0", "stream", stream, "content", string(data))
	}
	return offset
}

// Write atomically replaces the stored offset.
func (s *FileStore) Write(ctx context.Context, stream string, offset int) error {
	if err := checkWrite(stream, offset); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return ioError(stream, err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+stream+".*.tmp")
	if err != nil {
		return ioError(stream, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(Format(offset)); err != nil {
		tmp.Close()
		return ioError(stream, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return ioError(stream, err)
	}
	if err := tmp.Close(); err != nil {
		return ioError(stream, err)
	}
	if err := os.Rename(tmpName, s.Path(stream)); err != nil {
		return ioError(stream, err)
	}
	return nil
}
