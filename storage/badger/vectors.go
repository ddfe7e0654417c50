package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/vectorload/core"
	"github.com/poiesic/vectorload/storage"
)

// VectorRepository implements storage.VectorRepository for BadgerDB.
// Vectors are stored as little-endian float32 components.
type VectorRepository struct {
	backend *Backend
}

var _ storage.VectorRepository = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository.
func NewVectorRepository(backend *Backend) *VectorRepository {
	return &VectorRepository{backend: backend}
}

// GetVectors returns the stored vectors for ids. Missing ids are skipped.
func (r *VectorRepository) GetVectors(ctx context.Context, ids []core.ID) (map[core.ID][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make(map[core.ID][]float32, len(ids))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			item, err := tx.Get(makeVectorKey(id))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					continue
				}
				return err
			}
			err = item.Value(func(val []byte) error {
				v, err := decodeVector(val)
				if err != nil {
					return err
				}
				out[id] = v
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PutVectors stores vectors by id in a single transaction.
func (r *VectorRepository) PutVectors(ctx context.Context, vectors map[core.ID][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	return r.backend.WithTransaction(ctx, func(tx *badger.Txn) error {
		for id, v := range vectors {
			if err := tx.Set(makeVectorKey(id), encodeVector(v)); err != nil {
				return err
			}
		}
		return nil
	})
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: vector of %d bytes", storage.ErrTruncatedData, len(data))
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}
