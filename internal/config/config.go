// Package config defines the canonical, JSON-serializable configuration model
// for the anonymization pipeline. It is intentionally small and explicit so
// that pipeline files can be loaded from disk and passed through the program
// without additional glue code.
//
// Design goals:
//
//  1. Stability: Changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: Field names in Go mirror the JSON structure used in pipeline
//     files under configs/*.json.
//  3. Minimalism: decoding is performed by the standard library; container
//     parameters come from the environment (see params.go).
//
// Example (trimmed):
//
//	{
//	  "job": "refiner",
//	  "runtime":   { "batch_size": 1000, "parallel": true, "workers": 4 },
//	  "anonymize": {
//	    "enabled": true,
//	    "entities": { "EMAIL_ADDRESS": { "strategy": "mask" } }
//	  },
//	  "tables": {
//	    "users": { "columns": { "ssn": { "entities": ["US_SSN"] } } }
//	  }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Pipeline describes one full anonymization run. It is the top-level object
// decoded from a pipeline file.
type Pipeline struct {
	// Job names the run; it is used for metrics labeling and report output.
	Job string `json:"job"`

	// Runtime controls batching and concurrency.
	Runtime Runtime `json:"runtime"`

	// Anonymize configures the classification/anonymization step.
	Anonymize Anonymize `json:"anonymize"`

	// Tables holds per-table overrides keyed by table name. Absent tables use
	// the default policy (enabled, no filters).
	Tables map[string]TableRule `json:"tables"`
}

// Runtime controls batching and per-table concurrency.
type Runtime struct {
	// BatchSize is the number of rows per pagination step. Default 1000.
	BatchSize int `json:"batch_size"`

	// MaxMemoryMB is an advisory memory ceiling. It is reported in the run
	// artifact but never enforced.
	MaxMemoryMB int `json:"max_memory_mb"`

	// Parallel enables one worker per table across a bounded pool.
	Parallel bool `json:"parallel"`

	// Workers bounds the pool when Parallel is set. Default 4.
	Workers int `json:"workers"`
}

// Anonymize configures the classification capability and its operators.
type Anonymize struct {
	// Enabled toggles anonymization globally; when false rows pass through
	// unchanged.
	Enabled bool `json:"enabled"`

	// DefaultLanguage is the language tag passed to the classifier when a
	// column does not override it. Default "en".
	DefaultLanguage string `json:"default_language"`

	// DefaultReplacement is the token used by the replace strategy when an
	// entity has no replacement of its own. Default "<REDACTED>".
	DefaultReplacement string `json:"default_replacement"`

	// Entities holds per-category settings keyed by category name
	// (e.g. "EMAIL_ADDRESS"). Categories absent from the map are disabled.
	Entities map[string]EntityRule `json:"entities"`
}

// EntityRule configures detection and anonymization for one entity category.
type EntityRule struct {
	// Enabled defaults to true; use false to keep the entry but turn it off.
	Enabled *bool `json:"enabled"`

	// ConfidenceThreshold is the minimum span confidence. Default 0.5.
	ConfidenceThreshold float64 `json:"confidence_threshold"`

	// Strategy selects the anonymization operator: "replace", "mask", or
	// "hash". Default "replace".
	Strategy string `json:"strategy"`

	// Replacement overrides the replace token for this category. When empty
	// the token is "<CATEGORY>".
	Replacement string `json:"replacement"`
}

// On reports whether the entity rule is enabled (default true).
func (e EntityRule) On() bool {
	return e.Enabled == nil || *e.Enabled
}

// TableRule holds per-table policy overrides.
type TableRule struct {
	// Enabled defaults to true; false skips classification for the whole table
	// (rows are still copied).
	Enabled *bool `json:"enabled"`

	// Columns holds per-column overrides keyed by column name.
	Columns map[string]ColumnRule `json:"columns"`
}

// On reports whether the table rule is enabled (default true).
func (t TableRule) On() bool {
	return t.Enabled == nil || *t.Enabled
}

// ColumnRule holds per-column policy overrides. Absence of a rule means the
// default policy: enabled, all categories, default language and thresholds.
type ColumnRule struct {
	// Enabled defaults to true.
	Enabled *bool `json:"enabled"`

	// Entities restricts detection to the listed categories. Empty means all
	// enabled categories.
	Entities []string `json:"entities"`

	// Language overrides the default language tag for this column.
	Language string `json:"language"`

	// ConfidenceThreshold overrides per-entity thresholds when > 0.
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}

// On reports whether the column rule is enabled (default true).
func (c ColumnRule) On() bool {
	return c.Enabled == nil || *c.Enabled
}

// Defaults applied by Normalize.
const (
	DefaultBatchSize   = 1000
	DefaultWorkers     = 4
	DefaultLanguage    = "en"
	DefaultReplacement = "<REDACTED>"
	DefaultThreshold   = 0.5
)

// Normalize fills zero-valued knobs with their documented defaults. It never
// overrides an explicitly configured value.
func (p *Pipeline) Normalize() {
	if p.Job == "" {
		p.Job = "dbanon"
	}
	if p.Runtime.BatchSize <= 0 {
		p.Runtime.BatchSize = DefaultBatchSize
	}
	if p.Runtime.Workers <= 0 {
		p.Runtime.Workers = DefaultWorkers
	}
	if p.Anonymize.DefaultLanguage == "" {
		p.Anonymize.DefaultLanguage = DefaultLanguage
	}
	if p.Anonymize.DefaultReplacement == "" {
		p.Anonymize.DefaultReplacement = DefaultReplacement
	}
}

// Load decodes a pipeline file and applies defaults. Validation is separate;
// see ValidatePipeline.
func Load(path string) (Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return Pipeline{}, fmt.Errorf("config: open: %w", err)
	}
	defer f.Close()

	var p Pipeline
	if err := json.NewDecoder(f).Decode(&p); err != nil {
		return Pipeline{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	p.Normalize()
	return p, nil
}

// Default returns a ready-to-run pipeline with anonymization enabled for the
// built-in pattern recognizer categories.
func Default() Pipeline {
	p := Pipeline{
		Anonymize: Anonymize{
			Enabled: true,
			Entities: map[string]EntityRule{
				"EMAIL_ADDRESS": {},
				"PHONE_NUMBER":  {},
				"US_SSN":        {},
				"CREDIT_CARD":   {},
				"IP_ADDRESS":    {},
			},
		},
	}
	p.Normalize()
	return p
}
