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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"gorm.io/gorm"

	"github.com/poiesic/vectorload/core"
	"github.com/poiesic/vectorload/storage"
)

// DefaultSkillTable is the table LoadSkills reads.
const DefaultSkillTable = "skill_node"

// Store is a gorm-backed storage.Upserter.
type Store struct {
	db         *gorm.DB
	dialect    dialect
	cfg        Config
	skillTable string
	logger     *slog.Logger
	closed     atomic.Bool
}

var (
	_ storage.Upserter     = (*Store)(nil)
	_ storage.SkillCatalog = (*Store)(nil)
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithSkillTable sets the table LoadSkills reads.
func WithSkillTable(name string) Option {
	return func(s *Store) {
		s.skillTable = name
	}
}

// Open connects to the database described by cfg.
// The pool is configured but no connection is held after Open returns.
func Open(cfg Config, opts ...Option) (*Store, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d, err := dialectFor(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}

	s := newStore(nil, d, cfg, opts...)
	db, err := gorm.Open(d.dialector(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         newSlogAdapter(s.logger),
	})
	if err != nil {
		return nil, Classify(fmt.Errorf("connect to %s %s:%d: %w", cfg.Dialect, cfg.Host, cfg.Port, err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, Classify(err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	s.db = db
	s.logger.Info("database opened", "dialect", cfg.Dialect, "host", cfg.Host, "database", cfg.Database)
	return s, nil
}

// New wraps an existing gorm handle. dialectName selects the conflict syntax.
func New(db *gorm.DB, dialectName string, opts ...Option) (*Store, error) {
	d, err := dialectFor(dialectName)
	if err != nil {
		return nil, err
	}
	cfg := Config{Dialect: dialectName}
	cfg.Normalize()
	return newStore(db, d, cfg, opts...), nil
}

func newStore(db *gorm.DB, d dialect, cfg Config, opts ...Option) *Store {
	s := &Store{
		db:         db,
		dialect:    d,
		cfg:        cfg,
		skillTable: DefaultSkillTable,
		logger:     slog.Default().With("component", "sql", "dialect", d.name()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying gorm handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Upsert writes rows in one transaction on a freshly acquired connection.
// Every row must carry all key columns. Missing enrichment columns are NULL.
func (s *Store) Upsert(ctx context.Context, table storage.Table, rows []storage.Row) error {
	if s.closed.Load() {
		return fmt.Errorf("%w: %w", core.ErrPermanentStorage, storage.ErrStorageClosed)
	}
	if len(rows) == 0 {
		return nil
	}
	values, err := prepareRows(table, rows)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrPermanentStorage, err)
	}

	err = s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		for _, stmt := range s.dialect.session(s.cfg.SessionTimeout) {
			if err := conn.Exec(stmt).Error; err != nil {
				return fmt.Errorf("session setup: %w", err)
			}
		}
		return conn.Transaction(func(tx *gorm.DB) error {
			return s.upsertStatement(tx, table, values).Error
		})
	})
	if err != nil {
		return Classify(fmt.Errorf("upsert %d rows into %s: %w", len(values), table.Name, err))
	}
	return nil
}

func (s *Store) upsertStatement(tx *gorm.DB, table storage.Table, values []map[string]any) *gorm.DB {
	return tx.Table(table.Name).Clauses(onConflict(s.dialect, table)).Create(values)
}

// prepareRows validates rows against table and projects them onto its
// columns so every map carries the same keys.
func prepareRows(table storage.Table, rows []storage.Row) ([]map[string]any, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	cols := table.Columns()
	for _, col := range cols {
		if err := validIdent(col); err != nil {
			return nil, err
		}
	}

	values := make([]map[string]any, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for i, row := range rows {
		keyParts := make([]string, len(table.KeyColumns))
		for j, k := range table.KeyColumns {
			v, ok := row[k]
			if !ok || v == nil || fmt.Sprint(v) == "" {
				return nil, fmt.Errorf("%w: row %d has no %s", storage.ErrMissingKey, i, k)
			}
			keyParts[j] = fmt.Sprint(v)
		}
		key := strings.Join(keyParts, "\x00")
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %q", storage.ErrDuplicateKey, key)
		}
		seen[key] = struct{}{}

		value := make(map[string]any, len(cols))
		for _, col := range cols {
			value[col] = row[col]
		}
		values = append(values, value)
	}
	return values, nil
}

// LoadSkills reads every stored skill name and its aliases.
func (s *Store) LoadSkills(ctx context.Context) ([]core.Skill, error) {
	if s.closed.Load() {
		return nil, fmt.Errorf("%w: %w", core.ErrPermanentStorage, storage.ErrStorageClosed)
	}
	if err := validIdent(s.skillTable); err != nil {
		return nil, err
	}

	var rows []struct {
		Name    string
		Aliases *string
	}
	err := s.db.WithContext(ctx).
		Table(s.skillTable).
		Select("name", "aliases").
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, Classify(fmt.Errorf("load skills from %s: %w", s.skillTable, err))
	}

	skills := make([]core.Skill, 0, len(rows))
	for _, row := range rows {
		skill := core.Skill{Name: row.Name}
		if row.Aliases != nil && *row.Aliases != "" {
			if err := json.Unmarshal([]byte(*row.Aliases), &skill.Aliases); err != nil {
				s.logger.Warn("skill aliases unreadable", "skill", row.Name, "err", err)
			}
		}
		skills = append(skills, skill)
	}
	return skills, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return Classify(err)
	}
	return Classify(sqlDB.PingContext(ctx))
}

// Close releases the pool. It is safe to call more than once.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
