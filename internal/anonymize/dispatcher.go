package anonymize

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"dbanon/internal/schema"
)

// Dispatcher routes eligible values of a batch through the classifier and
// writes replacements back in place, preserving row shape. It satisfies the
// pipeline's row-transformer seam.
//
// Classification failures on single values are soft: the original value is
// kept, the event is logged and counted, and processing continues. Detection
// noise must not halt a multi-gigabyte run.
type Dispatcher struct {
	classifier Classifier
	policy     *Policy
	stats      *Stats
}

// NewDispatcher builds a Dispatcher. stats may be shared with the report
// generator; it must not be nil.
func NewDispatcher(c Classifier, p *Policy, stats *Stats) *Dispatcher {
	return &Dispatcher{classifier: c, policy: p, stats: stats}
}

// columnPlan is the per-column decision computed once per batch.
type columnPlan struct {
	eligible bool
	policy   ColumnPolicy
}

// TransformBatch classifies and anonymizes eligible values in place and
// returns the same batch. Tuple length and value positions are never changed.
func (d *Dispatcher) TransformBatch(ctx context.Context, rows [][]any, tbl *schema.Table) ([][]any, error) {
	if len(rows) == 0 {
		return rows, nil
	}
	start := time.Now()
	defer func() { d.stats.addElapsed(time.Since(start)) }()

	// Eligibility and policy are constant across the batch; resolve them once
	// per column instead of once per value.
	plans := make([]columnPlan, tbl.Width())
	for i, col := range tbl.Columns {
		pol := d.policy.Resolve(tbl.Name, col)
		plans[i] = columnPlan{
			eligible: pol.Enabled && EligibleColumn(col, tbl.Type(col)),
			policy:   pol,
		}
	}

	var processed, anonymized, altered int64
	for _, row := range rows {
		rowAltered := false
		for i, value := range row {
			if i >= len(plans) || !plans[i].eligible {
				continue
			}
			processed++

			replacement, changed := d.anonymizeValue(ctx, value, tbl.Name, tbl.Columns[i], plans[i].policy)
			if changed {
				row[i] = replacement
				anonymized++
				rowAltered = true
			}
		}
		if rowAltered {
			altered++
		}
	}

	d.stats.addValues(processed, anonymized)
	d.stats.addRowsAltered(altered)
	d.stats.addTableRows(tbl.Name, int64(len(rows)))

	return rows, nil
}

// anonymizeValue runs one value through the classifier. It returns the
// replacement and true when the value was altered, or the original value and
// false otherwise (nil values, trivial strings, no retained spans, or a soft
// classification failure).
func (d *Dispatcher) anonymizeValue(ctx context.Context, value any, table, column string, pol ColumnPolicy) (any, bool) {
	if value == nil {
		return value, false
	}
	text := asText(value)
	if len(strings.TrimSpace(text)) < 2 {
		return value, false
	}

	spans, err := d.classifier.Analyze(ctx, text, pol.Language)
	if err != nil {
		log.Printf("anonymize: analyze failed on %s.%s: %v", table, column, err)
		d.stats.addError()
		return value, false
	}

	spans = d.policy.FilterSpans(pol, spans)
	if len(spans) == 0 {
		return value, false
	}

	out, err := d.classifier.Anonymize(text, spans)
	if err != nil {
		log.Printf("anonymize: anonymize failed on %s.%s: %v", table, column, err)
		d.stats.addError()
		return value, false
	}

	for _, s := range spans {
		d.stats.addEntity(s.Category, 1)
	}
	return out, true
}

// RowsAltered returns the number of rows changed so far. The pipeline runner
// picks this up through an interface assertion at run end.
func (d *Dispatcher) RowsAltered() int64 {
	return d.stats.Snapshot().RowsAltered
}

// Stats returns the shared transform statistics.
func (d *Dispatcher) Stats() *Stats {
	return d.stats
}

// asText renders a stored value for classification. database/sql scans SQLite
// TEXT into []byte or string depending on the driver path; numbers stay typed.
func asText(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}
