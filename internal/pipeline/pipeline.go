// Package pipeline orchestrates the per-table replication units: discover
// tables, replicate each schema into the destination, stream batches through
// the row transformer, and write them out, either sequentially or across a
// bounded worker pool.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"dbanon/internal/anonymize"
	"dbanon/internal/config"
	"dbanon/internal/metrics"
	"dbanon/internal/store"
)

// TableError wraps an unrecovered failure within one table's pipeline. It
// aborts the overall run; tables already written are not rolled back.
type TableError struct {
	Table string
	Err   error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("pipeline: table %s: %v", e.Table, e.Err)
}

func (e *TableError) Unwrap() error { return e.Err }

// Runner executes one full run: every source table replicated into the
// destination with the transformer applied along the way.
type Runner struct {
	cfg         config.Pipeline
	inputDSN    string
	outputDSN   string
	transformer RowTransformer
	stats       *Stats
}

// NewRunner builds a Runner. The transformer must not be nil; use Passthrough
// to copy without anonymization.
func NewRunner(cfg config.Pipeline, inputDSN, outputDSN string, t RowTransformer) *Runner {
	return &Runner{
		cfg:         cfg,
		inputDSN:    inputDSN,
		outputDSN:   outputDSN,
		transformer: t,
		stats:       NewStats(),
	}
}

// Stats exposes the shared processing counters, e.g. for live progress.
func (r *Runner) Stats() *Stats {
	return r.stats
}

// Run processes every table of the input database and returns the frozen
// statistics snapshot.
//
// With parallel execution enabled and more than one table, units run across a
// worker pool bounded by the configured worker count. The first unit failure
// is returned after Wait; units already started are not cancelled and run to
// their own completion or failure. Without parallel execution, units run
// strictly in table-listing order and the run stops at the first failure.
func (r *Runner) Run(ctx context.Context) (Snapshot, error) {
	src, closeSrc, err := store.OpenSource(ctx, r.inputDSN)
	if err != nil {
		return r.stats.Snapshot(), fmt.Errorf("pipeline: open source: %w", err)
	}
	defer closeSrc()

	tables, err := src.Catalog().Tables(ctx)
	if err != nil {
		return r.stats.Snapshot(), err
	}

	// Discovery pass: snapshot every descriptor up front. This both sizes the
	// run totals and warms the per-run descriptor cache shared by the units.
	var totalRows int64
	for _, name := range tables {
		tbl, err := src.Catalog().Describe(ctx, name)
		if err != nil {
			return r.stats.Snapshot(), &TableError{Table: name, Err: err}
		}
		totalRows += tbl.RowCount
	}
	r.stats.Begin(len(tables), totalRows)

	log.Printf("pipeline: found %d tables with %d total rows", len(tables), totalRows)

	runErr := r.runUnits(ctx, src, tables)

	if ac, ok := r.transformer.(AlterationCounter); ok {
		r.stats.SetAnonymizedRows(ac.RowsAltered())
	}
	if sp, ok := r.transformer.(interface{ Stats() *anonymize.Stats }); ok {
		s := sp.Stats().Snapshot()
		metrics.RecordRows(r.cfg.Job, "anonymized", s.ValuesAnonymized)
		metrics.RecordRows(r.cfg.Job, "transform_errors", s.TransformErrors)
		for category, n := range s.Entities {
			metrics.RecordEntity(r.cfg.Job, category, n)
		}
	}
	r.stats.Finish()

	snap := r.stats.Snapshot()
	log.Printf("pipeline: completed tables=%d/%d rows=%d elapsed=%.2fs rps=%.0f",
		snap.ProcessedTables, snap.TotalTables, snap.ProcessedRows,
		snap.ElapsedSeconds, snap.RowsPerSecond)

	return snap, runErr
}

func (r *Runner) runUnits(ctx context.Context, src *store.Source, tables []string) error {
	if r.cfg.Runtime.Parallel && len(tables) > 1 && r.cfg.Runtime.Workers > 1 {
		// A plain errgroup (no derived context) on purpose: the first failure
		// is reported after Wait, but sibling units keep running. Cancelling
		// mid-table would leave the destination in a harder-to-reason state
		// than letting each unit finish its own work.
		var g errgroup.Group
		g.SetLimit(r.cfg.Runtime.Workers)
		for _, name := range tables {
			g.Go(func() error {
				return r.processTable(ctx, src, name)
			})
		}
		return g.Wait()
	}

	for _, name := range tables {
		if err := r.processTable(ctx, src, name); err != nil {
			return err
		}
	}
	return nil
}

// processTable runs one table unit: describe, replicate schema, then stream,
// transform, and write batch by batch. The unit owns its destination
// connection for the duration of its writes.
func (r *Runner) processTable(ctx context.Context, src *store.Source, name string) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordStep(r.cfg.Job, "table", err, time.Since(start))
		if err != nil {
			err = &TableError{Table: name, Err: err}
		}
	}()

	tbl, err := src.Catalog().Describe(ctx, name)
	if err != nil {
		return err
	}

	dest, closeDest, err := store.OpenDest(ctx, r.outputDSN)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	defer closeDest()

	if err = dest.EnsureTable(ctx, tbl); err != nil {
		return err
	}

	var written int64
	err = src.StreamBatches(ctx, tbl, r.cfg.Runtime.BatchSize, func(rows [][]any) error {
		out, terr := r.transformer.TransformBatch(ctx, rows, tbl)
		if terr != nil {
			return terr
		}
		n, werr := dest.WriteBatch(ctx, tbl, out)
		if werr != nil {
			return werr
		}
		written += n
		r.stats.AddProcessedRows(n)
		metrics.RecordRows(r.cfg.Job, "processed", n)

		// Periodic progress line, roughly every ten batches.
		if batch := written / int64(r.cfg.Runtime.BatchSize); batch > 0 && batch%10 == 0 {
			log.Printf("pipeline: table=%s written=%d/%d", name, written, tbl.RowCount)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.stats.TableDone()
	log.Printf("pipeline: table=%s done rows=%d elapsed=%s",
		name, written, time.Since(start).Truncate(time.Millisecond))
	return nil
}
