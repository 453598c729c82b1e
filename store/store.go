// Package store persists all durable mentionwatch state in SQLite.
//
// It is the single writer to the schema: scraped records, mention
// time series, channel targets, market samples, correlation output,
// pipeline run reports, and alert cooldown state. Writes are
// idempotent where the data model demands it, via SQLite native
// ON CONFLICT upserts.
package store

import (
	"database/sql"

	"github.com/mentionwatch/mentionwatch/idgen"
)

// Store wraps a *sql.DB with typed accessors.
type Store struct {
	DB    *sql.DB
	newID idgen.Generator
}

// NewStore creates a Store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db, newID: idgen.New}
}
