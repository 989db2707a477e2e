package store

import (
	"context"
	"fmt"
	"strings"

	"dbanon/internal/schema"
)

// SchemaMismatchError reports a row tuple whose width disagrees with the
// destination table's column count at write time. It indicates descriptor
// drift between discovery and write, which must never be silently patched:
// partial corrupt inserts are worse than failing the table.
type SchemaMismatchError struct {
	Table   string
	Row     int // index of the offending row within the batch
	Columns int
	Values  int
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("store: table %s has %d columns but row %d supplied %d values",
		e.Table, e.Columns, e.Row, e.Values)
}

// WriteBatch validates and upserts one batch of rows into the destination
// table inside a single transaction; all rows in the batch commit together.
//
// Every tuple's width is checked against the destination column count before
// any row is inserted; a mismatch returns *SchemaMismatchError and nothing is
// written. When the descriptor carries a primary key the statement is
// INSERT OR REPLACE (idempotent upsert); otherwise a plain INSERT.
//
// It returns the number of rows inserted.
func (d *Dest) WriteBatch(ctx context.Context, tbl *schema.Table, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	cols, err := d.Columns(ctx, tbl.Name)
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		if len(row) != len(cols) {
			return 0, &SchemaMismatchError{
				Table:   tbl.Name,
				Row:     i,
				Columns: len(cols),
				Values:  len(row),
			}
		}
	}

	verb := "INSERT"
	if tbl.PrimaryKey != "" {
		verb = "INSERT OR REPLACE"
	}
	placeholders := make([]string, len(cols))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	stmtSQL := fmt.Sprintf(
		"%s INTO %s (%s) VALUES (%s)",
		verb,
		quoteIdent(tbl.Name),
		quoteColumns(cols),
		strings.Join(placeholders, ", "),
	)

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("store: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("store: insert into %s: %w", tbl.Name, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return inserted, nil
}
