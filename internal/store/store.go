// Package store implements SQLite-backed source and destination stores using
// database/sql. The source side covers table discovery, introspection and
// paginated row streaming; the destination side covers schema replication and
// transactional batch upserts.
//
// SQLite does not have a dedicated bulk-load API like Postgres COPY, but
// batched inserts inside a transaction keep performance acceptable for
// multi-gigabyte result databases.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// SQLite driver; replace with your preferred driver if desired.
	_ "modernc.org/sqlite" // alternative: github.com/mattn/go-sqlite3
)

// openDB opens a SQLite connection for the given DSN and fails fast on
// unreachable or invalid databases.
func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("store: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	// One connection per handle keeps the session PRAGMAs below in effect and
	// sidesteps SQLite's single-writer restriction inside a handle. Cross-table
	// concurrency uses one handle per table unit instead.
	db.SetMaxOpenConns(1)

	// Apply a basic ping with context to fail fast on invalid DSNs.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	// Enable foreign keys by default; ignore error if driver doesn't support it.
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON;")

	// Concurrent table units write to the same destination file; wait out the
	// writer lock instead of surfacing SQLITE_BUSY.
	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;")

	return db, nil
}

// Source is a read side handle over the input database.
type Source struct {
	db  *sql.DB
	cat *Catalog
}

// OpenSource opens the input database and returns a Source plus a close
// function for cleanup.
//
// DSN is passed directly to database/sql; for example:
//
//	"file:results.db?mode=ro"
//	"results.db"
func OpenSource(ctx context.Context, dsn string) (*Source, func(), error) {
	db, err := openDB(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	s := &Source{db: db, cat: NewCatalog(db)}
	return s, func() { db.Close() }, nil
}

// Catalog returns the source's table catalog. Descriptors are cached on the
// catalog for the lifetime of the Source; no state outlives it.
func (s *Source) Catalog() *Catalog {
	return s.cat
}

// Dest is a write side handle over the output database. Each concurrent table
// unit should own its own Dest so writes never contend on a shared handle.
type Dest struct {
	db *sql.DB
}

// OpenDest opens (or creates) the output database and returns a Dest plus a
// close function for cleanup.
func OpenDest(ctx context.Context, dsn string) (*Dest, func(), error) {
	db, err := openDB(ctx, dsn)
	if err != nil {
		return nil, nil, err
	}
	d := &Dest{db: db}
	return d, func() { db.Close() }, nil
}

// quoteIdent applies SQLite-style double-quoted identifier quoting.
func quoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// quoteColumns quotes every identifier and joins them with ", ".
func quoteColumns(cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = quoteIdent(c)
	}
	return strings.Join(out, ", ")
}
