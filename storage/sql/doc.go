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

// Package sql implements storage.Upserter on a relational database through gorm.
//
// Two dialects are supported: "mysql" for MySQL and TiDB (VECTOR columns), and
// "postgres" for PostgreSQL with the pgvector extension.
//
// Every Upsert acquires its own connection from the pool, applies a session
// timeout so the server does not drop it mid-statement, runs one multi-row
// INSERT ... ON CONFLICT in a transaction and releases the connection. With
// the default MaxIdleConns of 0 the connection is closed on release, so no
// connection is held while the caller computes embeddings.
//
// Driver errors are classified at this boundary into core.ErrTransientStorage
// or core.ErrPermanentStorage.
//
// Basic usage:
//
//	store, err := sql.Open(sql.Config{
//		Dialect:  sql.DialectMySQL,
//		Host:     "gateway01.tidbcloud.com",
//		Port:     4000,
//		User:     "root",
//		Password: os.Getenv("VECTORLOAD_DB_PASSWORD"),
//		Database: "skills",
//		TLSCA:    "/etc/ssl/isrgrootx1.pem",
//	})
//	if err != nil {
//		return err
//	}
//	defer store.Close()
//
//	err = store.Upsert(ctx, table, rows)
package sql
