// Package config provides configuration models and helpers for anonymization
// pipelines.
//
// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a decoded Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "runtime.batch_size",
// "anonymize.entities.US_SSN"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue carries SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline. Instead it returns a slice of Issue values.
// Callers may decide whether to treat warnings as fatal or not.
//
// Example:
//
//	p, err := config.Load(path)
//	if err != nil { ... }
//	for _, iss := range config.ValidatePipeline(p) {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if strings.TrimSpace(p.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "job",
			Message:  "job must not be empty; it is used for metrics labeling and identifying runs",
		})
	}

	issues = append(issues, validateRuntime(p.Runtime)...)
	issues = append(issues, validateAnonymize(p.Anonymize)...)
	issues = append(issues, validateTables(p.Tables)...)

	return issues
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue

	if r.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("batch_size=%d; must be positive", r.BatchSize),
		})
	}
	if r.Workers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.workers",
			Message:  "workers must not be negative",
		})
	}
	if r.Parallel && r.Workers == 1 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.workers",
			Message:  "parallel is enabled but workers=1; tables will effectively run sequentially",
		})
	}
	if r.MaxMemoryMB < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.max_memory_mb",
			Message:  "max_memory_mb must not be negative",
		})
	}

	return issues
}

var knownStrategies = map[string]struct{}{
	"":        {}, // default, resolves to replace
	"replace": {},
	"mask":    {},
	"hash":    {},
}

func validateAnonymize(a Anonymize) []Issue {
	var issues []Issue

	if a.Enabled && len(a.Entities) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "anonymize.entities",
			Message:  "anonymization is enabled but no entity categories are configured; nothing will be detected",
		})
	}

	for name, rule := range a.Entities {
		path := fmt.Sprintf("anonymize.entities.%s", name)
		if rule.ConfidenceThreshold < 0 || rule.ConfidenceThreshold > 1 {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".confidence_threshold",
				Message:  fmt.Sprintf("confidence_threshold=%v; must be within [0, 1]", rule.ConfidenceThreshold),
			})
		}
		if _, ok := knownStrategies[rule.Strategy]; !ok {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path + ".strategy",
				Message:  fmt.Sprintf("unknown strategy %q (use replace, mask, or hash)", rule.Strategy),
			})
		}
	}

	return issues
}

func validateTables(tables map[string]TableRule) []Issue {
	var issues []Issue

	for tname, trule := range tables {
		for cname, crule := range trule.Columns {
			path := fmt.Sprintf("tables.%s.columns.%s", tname, cname)
			if crule.ConfidenceThreshold < 0 || crule.ConfidenceThreshold > 1 {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     path + ".confidence_threshold",
					Message:  fmt.Sprintf("confidence_threshold=%v; must be within [0, 1]", crule.ConfidenceThreshold),
				})
			}
			if !trule.On() && crule.On() && crule.Enabled != nil {
				issues = append(issues, Issue{
					Severity: SeverityWarning,
					Path:     path + ".enabled",
					Message:  "column is enabled but its table is disabled; the column setting has no effect",
				})
			}
		}
	}

	return issues
}
