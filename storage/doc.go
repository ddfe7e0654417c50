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

// Package storage provides the storage abstraction layer for vectorload.
//
// This package defines the interfaces that decouple the ingestion engine from
// the databases it writes to. It allows for different backends (MySQL/TiDB,
// PostgreSQL, BadgerDB, in-memory fakes) to be used interchangeably.
//
// # Architecture
//
//   - Upserter: idempotent batch upsert by natural key into a relational table
//   - Table: the upsert shape (key columns, enrichment columns, overwrite policy)
//   - SkillCatalog: loads stored skills for skill-target inference
//   - CheckpointRepository: per-stream integer offsets in an embedded store
//   - VectorRepository: content-addressed embedding cache entries
//
// Implementations live in storage/sql (gorm) and storage/badger.
//
// # Error Kinds
//
// Upserter implementations classify driver errors at the boundary. Every
// error returned from Upsert wraps core.ErrTransientStorage or
// core.ErrPermanentStorage; callers inspect only those kinds.
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
//
// # Context Support
//
// All methods accept context.Context for cancellation and timeout support.
package storage
