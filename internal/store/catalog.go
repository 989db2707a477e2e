package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	"dbanon/internal/schema"
)

// ErrTableNotFound is returned by Catalog.Describe when the named table does
// not exist in the database. Callers should test with errors.Is.
var ErrTableNotFound = errors.New("table not found")

// Catalog discovers tables and builds immutable schema.Table descriptors.
//
// Descriptors are cached per Catalog instance and therefore live exactly as
// long as one pipeline run. The cache is safe for concurrent use; table units
// running in parallel share it.
type Catalog struct {
	db *sql.DB

	mu    sync.Mutex
	cache map[string]*schema.Table
}

// NewCatalog returns a Catalog reading from db.
func NewCatalog(db *sql.DB) *Catalog {
	return &Catalog{db: db, cache: map[string]*schema.Table{}}
}

// Tables lists all user table names in the database, in sqlite_master order.
// SQLite's internal bookkeeping tables (sqlite_sequence and friends, present
// whenever a source table uses AUTOINCREMENT) are excluded: they cannot be
// recreated in the destination, their names are reserved.
func (c *Catalog) Tables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite\_%' ESCAPE '\'`)
	if err != nil {
		return nil, fmt.Errorf("store: list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("store: scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list tables: %w", err)
	}
	return names, nil
}

// Describe returns the descriptor for the named table, introspecting column
// names, declared types, and the primary-key column via PRAGMA table_info and
// taking a row-count snapshot via SELECT COUNT(*).
//
// The descriptor is built on first access and cached; subsequent calls return
// the same immutable value. Describe returns an error wrapping ErrTableNotFound
// when the table does not exist.
func (c *Catalog) Describe(ctx context.Context, table string) (*schema.Table, error) {
	c.mu.Lock()
	if t, ok := c.cache[table]; ok {
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	t, err := c.describe(ctx, table)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// Another worker may have raced us here; keep the first descriptor so every
	// caller observes the same snapshot.
	if cached, ok := c.cache[table]; ok {
		t = cached
	} else {
		c.cache[table] = t
	}
	c.mu.Unlock()

	return t, nil
}

func (c *Catalog) describe(ctx context.Context, table string) (*schema.Table, error) {
	cols, types, pk, err := tableInfo(ctx, c.db, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("store: describe %s: %w", table, ErrTableNotFound)
	}

	var count int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))
	if err := c.db.QueryRowContext(ctx, q).Scan(&count); err != nil {
		return nil, fmt.Errorf("store: count %s: %w", table, err)
	}

	log.Printf("catalog: table=%s columns=%d rows=%d pk=%q", table, len(cols), count, pk)

	return &schema.Table{
		Name:       table,
		Columns:    cols,
		Types:      types,
		RowCount:   count,
		PrimaryKey: pk,
	}, nil
}

// tableInfo runs PRAGMA table_info and returns ordered column names, the
// name->type map, and the primary-key column ("" when none).
func tableInfo(ctx context.Context, db *sql.DB, table string) ([]string, map[string]string, string, error) {
	q := fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table))
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, nil, "", fmt.Errorf("store: table_info %s: %w", table, err)
	}
	defer rows.Close()

	var (
		cols  []string
		types = map[string]string{}
		pk    string
	)
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			isPK    int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &isPK); err != nil {
			return nil, nil, "", fmt.Errorf("store: scan table_info %s: %w", table, err)
		}
		cols = append(cols, name)
		types[name] = typ
		if isPK != 0 && pk == "" {
			pk = name
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, "", fmt.Errorf("store: table_info %s: %w", table, err)
	}
	return cols, types, pk, nil
}
