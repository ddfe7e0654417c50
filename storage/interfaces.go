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

package storage

import (
	"context"
	"fmt"
	"slices"

	"github.com/poiesic/vectorload/core"
)

// Row is one record's column values keyed by column name.
type Row = map[string]any

// OverwritePolicy decides what an upsert does to enrichment columns of an
// existing row.
type OverwritePolicy int

const (
	// OverwriteAlways replaces every enrichment column with the incoming value,
	// including absent ones.
	OverwriteAlways OverwritePolicy = iota

	// PreserveOnEmpty keeps the stored value when the incoming value is absent.
	PreserveOnEmpty
)

func (p OverwritePolicy) String() string {
	switch p {
	case OverwriteAlways:
		return "always"
	case PreserveOnEmpty:
		return "preserve-on-empty"
	default:
		return fmt.Sprintf("OverwritePolicy(%d)", int(p))
	}
}

// ParseOverwritePolicy parses the String form of a policy. Empty means OverwriteAlways.
func ParseOverwritePolicy(s string) (OverwritePolicy, error) {
	switch s {
	case "", "always":
		return OverwriteAlways, nil
	case "preserve-on-empty":
		return PreserveOnEmpty, nil
	default:
		return OverwriteAlways, fmt.Errorf("unknown overwrite policy %q", s)
	}
}

// ColumnType is the logical type of a column, mapped to SQL per dialect.
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeLongText
	TypeInt
	TypeBigInt
	TypeBool
	TypeJSON
	TypeVector
)

// Table describes the upsert shape of one target table.
type Table struct {
	// Name is the table name.
	Name string

	// KeyColumns form the unique natural key. They are never updated.
	KeyColumns []string

	// EnrichColumns are written on insert and overwritten on conflict.
	// VectorColumn must be one of them.
	EnrichColumns []string

	// VectorColumn holds the embedding.
	VectorColumn string

	// Policy applies to EnrichColumns on conflict.
	Policy OverwritePolicy

	// Types maps columns to logical types for schema creation. Columns
	// listed here but not written by upserts, such as a parent reference,
	// are created nullable and never touched.
	Types map[string]ColumnType
}

// Columns returns the key columns followed by the enrichment columns.
func (t Table) Columns() []string {
	cols := make([]string, 0, len(t.KeyColumns)+len(t.EnrichColumns))
	cols = append(cols, t.KeyColumns...)
	return append(cols, t.EnrichColumns...)
}

// Validate checks the table shape.
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidTable)
	}
	if len(t.KeyColumns) == 0 {
		return fmt.Errorf("%w: %s has no key columns", ErrInvalidTable, t.Name)
	}
	if t.VectorColumn == "" || !slices.Contains(t.EnrichColumns, t.VectorColumn) {
		return fmt.Errorf("%w: %s vector column %q is not an enrichment column", ErrInvalidTable, t.Name, t.VectorColumn)
	}
	for _, k := range t.KeyColumns {
		if slices.Contains(t.EnrichColumns, k) {
			return fmt.Errorf("%w: %s key column %q cannot be enriched", ErrInvalidTable, t.Name, k)
		}
	}
	return nil
}

// Upserter writes batches of rows by natural key.
// Implementations must be thread-safe and support concurrent access.
type Upserter interface {
	// Upsert inserts or updates every row in one all-or-nothing transaction.
	// On a natural-key conflict only the table's enrichment columns change.
	// Rows must carry distinct natural keys.
	//
	// Errors wrap core.ErrTransientStorage or core.ErrPermanentStorage.
	Upsert(ctx context.Context, table Table, rows []Row) error
}

// SkillCatalog loads the stored skills used to build an inference catalog.
type SkillCatalog interface {
	LoadSkills(ctx context.Context) ([]core.Skill, error)
}

// CheckpointRepository stores one integer offset per stream.
type CheckpointRepository interface {
	// LoadCheckpoint returns the stored offset and whether one exists.
	LoadCheckpoint(ctx context.Context, stream string) (int, bool, error)

	// SaveCheckpoint stores offset for stream.
	SaveCheckpoint(ctx context.Context, stream string, offset int) error
}

// VectorRepository stores embeddings by content ID.
type VectorRepository interface {
	// GetVectors returns the stored vectors for ids. Missing ids are absent
	// from the result.
	GetVectors(ctx context.Context, ids []core.ID) (map[core.ID][]float32, error)

	// PutVectors stores vectors by id.
	PutVectors(ctx context.Context, vectors map[core.ID][]float32) error
}
