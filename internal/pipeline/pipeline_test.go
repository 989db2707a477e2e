package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"dbanon/internal/anonymize"
	"dbanon/internal/anonymize/pattern"
	"dbanon/internal/config"
	"dbanon/internal/schema"
)

// newInputDB creates a two-table source database: users with n rows of
// contact data and orders with 2n keyed rows.
func newInputDB(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, email TEXT)`,
		`CREATE TABLE orders (id INTEGER PRIMARY KEY, item TEXT, total REAL)`,
	}
	for i := 1; i <= n; i++ {
		stmts = append(stmts, fmt.Sprintf(
			`INSERT INTO users VALUES (%d, 'user %d', 'user%d@example.com')`, i, i, i))
	}
	for i := 1; i <= 2*n; i++ {
		stmts = append(stmts, fmt.Sprintf(
			`INSERT INTO orders VALUES (%d, 'item %d', %d.50)`, i, i, i))
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return path
}

func countRows(t *testing.T, path, table string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func runConfig(parallel bool) config.Pipeline {
	p := config.Default()
	p.Runtime.BatchSize = 10
	p.Runtime.Parallel = parallel
	return p
}

/*
TestRunnerCopiesAllTables verifies a sequential passthrough run: every table
is replicated in full, the snapshot reflects totals, and re-running against
the same destination does not duplicate keyed rows.
*/
func TestRunnerCopiesAllTables(t *testing.T) {
	in := newInputDB(t, 25)
	out := filepath.Join(t.TempDir(), "output.db")

	r := NewRunner(runConfig(false), in, out, Passthrough{})
	snap, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if snap.TotalTables != 2 || snap.ProcessedTables != 2 {
		t.Errorf("tables = %d/%d; want 2/2", snap.ProcessedTables, snap.TotalTables)
	}
	if snap.TotalRows != 75 || snap.ProcessedRows != 75 {
		t.Errorf("rows = %d/%d; want 75/75", snap.ProcessedRows, snap.TotalRows)
	}
	if snap.ProgressPercent != 100 {
		t.Errorf("progress = %v; want 100", snap.ProgressPercent)
	}
	if got := countRows(t, out, "users"); got != 25 {
		t.Errorf("users rows = %d; want 25", got)
	}
	if got := countRows(t, out, "orders"); got != 50 {
		t.Errorf("orders rows = %d; want 50", got)
	}

	// Second run into the same destination upserts on the primary keys.
	if _, err := NewRunner(runConfig(false), in, out, Passthrough{}).Run(context.Background()); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if got := countRows(t, out, "users"); got != 25 {
		t.Errorf("users rows after rerun = %d; want 25", got)
	}
}

/*
TestRunnerParallel verifies that a parallel run over the worker pool
produces the same destination as a sequential one.
*/
func TestRunnerParallel(t *testing.T) {
	in := newInputDB(t, 40)
	out := filepath.Join(t.TempDir(), "output.db")

	snap, err := NewRunner(runConfig(true), in, out, Passthrough{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if snap.ProcessedRows != 120 {
		t.Errorf("rows = %d; want 120", snap.ProcessedRows)
	}
	if got := countRows(t, out, "users"); got != 40 {
		t.Errorf("users rows = %d; want 40", got)
	}
	if got := countRows(t, out, "orders"); got != 80 {
		t.Errorf("orders rows = %d; want 80", got)
	}
}

/*
TestRunnerAnonymizes verifies the full path through the dispatcher: email
addresses never reach the destination and the altered-row count lands in the
processing snapshot.
*/
func TestRunnerAnonymizes(t *testing.T) {
	in := newInputDB(t, 12)
	out := filepath.Join(t.TempDir(), "output.db")

	cfg := runConfig(false)
	d := anonymize.NewDispatcher(
		pattern.New(cfg.Anonymize),
		anonymize.NewPolicy(cfg),
		anonymize.NewStats(),
	)

	snap, err := NewRunner(cfg, in, out, d).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if snap.AnonymizedRows != 12 {
		t.Errorf("AnonymizedRows = %d; want 12", snap.AnonymizedRows)
	}

	db, err := sql.Open("sqlite", out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer db.Close()

	rows, err := db.Query(`SELECT email FROM users`)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	defer rows.Close()
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if strings.Contains(email, "@example.com") {
			t.Fatalf("email copied unanonymized: %q", email)
		}
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
}

/*
TestRunnerAutoincrementSource verifies that a source using AUTOINCREMENT
replicates cleanly: sqlite_sequence is bookkeeping, not a table unit, and
must never be scheduled or counted.
*/
func TestRunnerAutoincrementSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	stmts := []string{
		`CREATE TABLE events (id INTEGER PRIMARY KEY AUTOINCREMENT, note TEXT)`,
		`INSERT INTO events (note) VALUES ('first'), ('second'), ('third')`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	db.Close()

	out := filepath.Join(t.TempDir(), "output.db")
	snap, err := NewRunner(runConfig(false), path, out, Passthrough{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if snap.TotalTables != 1 || snap.ProcessedTables != 1 {
		t.Errorf("tables = %d/%d; want 1/1", snap.ProcessedTables, snap.TotalTables)
	}
	if got := countRows(t, out, "events"); got != 3 {
		t.Errorf("events rows = %d; want 3", got)
	}
}

/*
TestRunnerEmptyTable verifies that a table with zero rows is replicated as
an empty table with matching schema and the run completes cleanly.
*/
func TestRunnerEmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE empty (id INTEGER PRIMARY KEY, note TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	db.Close()

	out := filepath.Join(t.TempDir(), "output.db")
	snap, err := NewRunner(runConfig(false), path, out, Passthrough{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if snap.ProcessedTables != 1 || snap.ProcessedRows != 0 {
		t.Errorf("snapshot = %+v; want one table, zero rows", snap)
	}

	outDB, err := sql.Open("sqlite", out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer outDB.Close()
	var cols int
	if err := outDB.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('empty')`).Scan(&cols); err != nil {
		t.Fatalf("table_info: %v", err)
	}
	if cols != 2 {
		t.Errorf("destination columns = %d; want 2", cols)
	}
	if got := countRows(t, out, "empty"); got != 0 {
		t.Errorf("rows = %d; want 0", got)
	}
}

// failOn errors on one table and passes everything else through.
type failOn struct {
	table string
	err   error
}

func (f failOn) TransformBatch(_ context.Context, rows [][]any, tbl *schema.Table) ([][]any, error) {
	if tbl.Name == f.table {
		return nil, f.err
	}
	return rows, nil
}

/*
TestRunnerTableError verifies that a unit failure surfaces as a TableError
naming the table, and that the other table still completed.
*/
func TestRunnerTableError(t *testing.T) {
	in := newInputDB(t, 5)
	out := filepath.Join(t.TempDir(), "output.db")

	boom := errors.New("boom")
	r := NewRunner(runConfig(true), in, out, failOn{table: "users", err: boom})

	_, err := r.Run(context.Background())
	if err == nil {
		t.Fatalf("Run succeeded; want TableError")
	}
	var tErr *TableError
	if !errors.As(err, &tErr) {
		t.Fatalf("Run = %v; want *TableError", err)
	}
	if tErr.Table != "users" {
		t.Errorf("failed table = %q; want users", tErr.Table)
	}
	if !errors.Is(err, boom) {
		t.Errorf("cause not preserved: %v", err)
	}

	// The failing unit does not cancel its sibling.
	if got := countRows(t, out, "orders"); got != 10 {
		t.Errorf("orders rows = %d; want 10", got)
	}
}
