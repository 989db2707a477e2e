package pipeline

import (
	"context"

	"dbanon/internal/schema"
)

// RowTransformer is the transformation seam between streaming and writing.
// Implementations receive one batch and the table descriptor and return the
// batch to write; they may mutate tuples in place but must never change tuple
// length or positions. The anonymization dispatcher and Passthrough are two
// interchangeable implementations.
type RowTransformer interface {
	TransformBatch(ctx context.Context, rows [][]any, tbl *schema.Table) ([][]any, error)
}

// AlterationCounter is optionally implemented by transformers that track how
// many rows they changed. The runner folds the count into the processing
// statistics at run end.
type AlterationCounter interface {
	RowsAltered() int64
}

// Passthrough copies rows unchanged. It is the transformer used when
// anonymization is disabled, and the natural test double for the engine.
type Passthrough struct{}

// TransformBatch returns rows as-is.
func (Passthrough) TransformBatch(_ context.Context, rows [][]any, _ *schema.Table) ([][]any, error) {
	return rows, nil
}
