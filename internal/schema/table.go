// Package schema defines the table descriptor model shared by the catalog,
// streamer, replicator, writer, and the anonymization dispatcher.
//
// A Table is an immutable snapshot taken at discovery time. Column order is
// load-bearing: every row tuple flowing through the pipeline is positional and
// must have exactly len(Columns) values, in Columns order.
package schema

// Table describes one source table at discovery time.
//
// Values of this type are built once by the catalog and never mutated
// afterwards; they may be read concurrently by multiple goroutines.
type Table struct {
	// Name is the table name as it appears in sqlite_master.
	Name string

	// Columns is the ordered list of column names, in PRAGMA table_info order.
	Columns []string

	// Types maps column name -> declared SQLite type (e.g. "TEXT", "INTEGER").
	Types map[string]string

	// RowCount is a snapshot of SELECT COUNT(*) at discovery time, not a live
	// value.
	RowCount int64

	// PrimaryKey is the primary-key column name, or "" when the table has no
	// single-column primary key.
	PrimaryKey string
}

// Width returns the number of columns. Every row tuple for this table must
// have exactly this many values.
func (t *Table) Width() int {
	return len(t.Columns)
}

// Type returns the declared type for the named column, or "" if the column is
// unknown.
func (t *Table) Type(column string) string {
	return t.Types[column]
}
