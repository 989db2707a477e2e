// Package anonymize applies per-value content classification and replacement
// to row batches while preserving row shape.
//
// The classification capability itself is treated as a black box behind the
// Classifier interface; this package decides which (table, column) values are
// eligible, filters detected spans by the resolved column policy, and keeps
// transform statistics. Any category taxonomy or model choice is the
// classifier's concern.
package anonymize

import "context"

// Span is a detected region of text tagged with a category and a confidence
// score. Start and End are byte offsets into the analyzed text, End exclusive.
type Span struct {
	Start      int
	End        int
	Category   string
	Confidence float64
}

// Classifier is the external content-classification capability.
//
// Analyze returns the spans detected in text, ordered by Start. Anonymize
// rewrites text so that every given span is replaced; it must tolerate spans
// produced by a prior Analyze call on the same text.
//
// Implementations must be safe for concurrent use: table units running in
// parallel share one Classifier.
type Classifier interface {
	Analyze(ctx context.Context, text, language string) ([]Span, error)
	Anonymize(text string, spans []Span) (string, error)
}
