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

package sql

import (
	"context"
	"fmt"

	"github.com/poiesic/vectorload/storage"
)

// SchemaStatements returns the DDL Migrate runs for tables.
func (s *Store) SchemaStatements(tables []storage.Table, dims int) ([]string, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive, got %d", storage.ErrInvalidTable, dims)
	}
	stmts := append([]string(nil), s.dialect.setup()...)
	for _, t := range tables {
		stmt, err := createTable(s.dialect, t, dims)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	return stmts, nil
}

// Migrate creates the tables when absent. Existing tables are left alone.
func (s *Store) Migrate(ctx context.Context, tables []storage.Table, dims int) error {
	stmts, err := s.SchemaStatements(tables, dims)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := s.db.WithContext(ctx).Exec(stmt).Error; err != nil {
			return Classify(fmt.Errorf("migrate: %w", err))
		}
	}
	s.logger.Info("schema ready", "tables", len(tables), "dimensions", dims)
	return nil
}
