package store

import (
	"context"
	"fmt"

	"dbanon/internal/schema"
)

// BatchFunc receives one batch of rows. Tuples are positional and aligned
// with the descriptor's column order. The callback must not retain the slice
// beyond its invocation if it returns an error.
type BatchFunc func(rows [][]any) error

// StreamBatches reads the table in fixed-size batches using LIMIT/OFFSET
// pagination and invokes fn once per non-empty batch, in order.
//
// The column list is spelled out explicitly (never SELECT *) so value order
// within each tuple strictly matches tbl.Columns. The stream ends when a
// fetched batch is shorter than batchSize. Pagination is stateless: a failed
// table can be retried by calling StreamBatches again, independently of any
// other table.
func (s *Source) StreamBatches(ctx context.Context, tbl *schema.Table, batchSize int, fn BatchFunc) error {
	if batchSize <= 0 {
		return fmt.Errorf("store: batchSize must be > 0")
	}
	if fn == nil {
		return fmt.Errorf("store: batch callback must not be nil")
	}

	q := fmt.Sprintf(
		"SELECT %s FROM %s LIMIT ? OFFSET ?",
		quoteColumns(tbl.Columns),
		quoteIdent(tbl.Name),
	)

	width := tbl.Width()
	offset := 0
	for {
		batch, err := s.fetchPage(ctx, q, width, batchSize, offset)
		if err != nil {
			return fmt.Errorf("store: stream %s offset=%d: %w", tbl.Name, offset, err)
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
		offset += batchSize
	}
}

// fetchPage reads one page of rows into freshly allocated tuples.
func (s *Source) fetchPage(ctx context.Context, query string, width, limit, offset int) ([][]any, error) {
	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	batch := make([][]any, 0, limit)
	for rows.Next() {
		tuple := make([]any, width)
		ptrs := make([]any, width)
		for i := range tuple {
			ptrs[i] = &tuple[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		batch = append(batch, tuple)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return batch, nil
}
