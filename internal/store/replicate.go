package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"dbanon/internal/schema"
)

// BuildCreateTableSQL returns the CREATE TABLE statement that mirrors the
// source descriptor: identical column order, declared types, and PRIMARY KEY
// annotation. The statement has the form:
//
//	CREATE TABLE IF NOT EXISTS "t" ("c1" TYPE PRIMARY KEY, "c2" TYPE, ...)
func BuildCreateTableSQL(tbl *schema.Table) (string, error) {
	if strings.TrimSpace(tbl.Name) == "" {
		return "", fmt.Errorf("store: table name must not be empty")
	}
	if len(tbl.Columns) == 0 {
		return "", fmt.Errorf("store: table %s has no columns", tbl.Name)
	}

	defs := make([]string, 0, len(tbl.Columns))
	for _, name := range tbl.Columns {
		var sb strings.Builder
		sb.WriteString(quoteIdent(name))
		if typ := strings.TrimSpace(tbl.Types[name]); typ != "" {
			sb.WriteByte(' ')
			sb.WriteString(typ)
		}
		if name == tbl.PrimaryKey {
			sb.WriteString(" PRIMARY KEY")
		}
		defs = append(defs, sb.String())
	}

	return fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s)",
		quoteIdent(tbl.Name),
		strings.Join(defs, ", "),
	), nil
}

// EnsureTable creates the destination table mirroring the descriptor if it
// does not exist yet. It is idempotent and safe to invoke once per table per
// run.
//
// After creation the destination schema is re-read and its column count
// compared against the descriptor. A mismatch signals a naming or type-mapping
// defect; it is logged as a structural error but not returned, the writer's
// own width check decides whether the table ultimately fails.
func (d *Dest) EnsureTable(ctx context.Context, tbl *schema.Table) error {
	stmt, err := BuildCreateTableSQL(tbl)
	if err != nil {
		return err
	}

	log.Printf("replicate: table=%s columns=%d ddl=%q", tbl.Name, tbl.Width(), stmt)

	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("store: create %s: %w", tbl.Name, err)
	}

	created, _, _, err := tableInfo(ctx, d.db, tbl.Name)
	if err != nil {
		return fmt.Errorf("store: verify %s: %w", tbl.Name, err)
	}
	if len(created) != tbl.Width() {
		log.Printf("replicate: column count mismatch on %s: want %d (%v) got %d (%v)",
			tbl.Name, tbl.Width(), tbl.Columns, len(created), created)
	}
	return nil
}

// Columns returns the destination table's column names in table order.
func (d *Dest) Columns(ctx context.Context, table string) ([]string, error) {
	cols, _, _, err := tableInfo(ctx, d.db, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("store: columns %s: %w", table, ErrTableNotFound)
	}
	return cols, nil
}

// CopySchema replicates the schema of every source table into the destination
// without copying any data.
func (d *Dest) CopySchema(ctx context.Context, src *Source) error {
	tables, err := src.Catalog().Tables(ctx)
	if err != nil {
		return err
	}
	for _, name := range tables {
		tbl, err := src.Catalog().Describe(ctx, name)
		if err != nil {
			return err
		}
		if err := d.EnsureTable(ctx, tbl); err != nil {
			return err
		}
	}
	return nil
}

// VerifyMirror checks that every source table exists in the destination with
// an identical ordered column list. It reports the first divergence found.
func (d *Dest) VerifyMirror(ctx context.Context, src *Source) error {
	tables, err := src.Catalog().Tables(ctx)
	if err != nil {
		return err
	}
	for _, name := range tables {
		tbl, err := src.Catalog().Describe(ctx, name)
		if err != nil {
			return err
		}
		got, err := d.Columns(ctx, name)
		if err != nil {
			return fmt.Errorf("store: mirror check %s: %w", name, err)
		}
		if len(got) != tbl.Width() {
			return fmt.Errorf("store: mirror check %s: column count %d != %d", name, len(got), tbl.Width())
		}
		for i, c := range tbl.Columns {
			if got[i] != c {
				return fmt.Errorf("store: mirror check %s: column %d is %q, want %q", name, i, got[i], c)
			}
		}
	}
	return nil
}
