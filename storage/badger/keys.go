package badger

import (
	"encoding/binary"

	"github.com/poiesic/vectorload/core"
)

// Key prefixes for different data types
const (
	checkpointPrefix = "chkpt"
	vectorPrefix     = "vec"
)

// makeCheckpointKey generates a key for a stream checkpoint.
// Format: prefix:stream
func makeCheckpointKey(stream string) []byte {
	return []byte(checkpointPrefix + ":" + stream)
}

// makeVectorKey generates a key for a cached vector.
// Format: prefix:id
func makeVectorKey(id core.ID) []byte {
	prefix := vectorPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}
