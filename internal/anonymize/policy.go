package anonymize

import (
	"strings"

	"dbanon/internal/config"
)

// ColumnPolicy is the resolved per-(table, column) configuration governing
// whether and how a value is sent to the classifier.
type ColumnPolicy struct {
	// Enabled gates classification for the column.
	Enabled bool

	// Entities restricts detection to the listed categories; empty means all
	// configured categories.
	Entities []string

	// Language is the tag passed to the classifier.
	Language string

	// Threshold overrides per-category confidence thresholds when > 0.
	Threshold float64
}

// Policy resolves column policies and span filters from the pipeline config.
// Values are immutable after construction and safe for concurrent use.
type Policy struct {
	anonymize config.Anonymize
	tables    map[string]config.TableRule
}

// NewPolicy builds a Policy from the pipeline configuration.
func NewPolicy(p config.Pipeline) *Policy {
	return &Policy{
		anonymize: p.Anonymize,
		tables:    p.Tables,
	}
}

// Resolve returns the policy for one (table, column) pair. Absence of any
// configuration entry yields the default policy: enabled, no category filter,
// default language, per-category thresholds.
func (p *Policy) Resolve(table, column string) ColumnPolicy {
	pol := ColumnPolicy{
		Enabled:  true,
		Language: p.anonymize.DefaultLanguage,
	}

	trule, ok := p.tables[table]
	if !ok {
		return pol
	}
	if !trule.On() {
		pol.Enabled = false
		return pol
	}

	crule, ok := trule.Columns[column]
	if !ok {
		return pol
	}
	pol.Enabled = crule.On()
	pol.Entities = crule.Entities
	if crule.Language != "" {
		pol.Language = crule.Language
	}
	if crule.ConfidenceThreshold > 0 {
		pol.Threshold = crule.ConfidenceThreshold
	}
	return pol
}

// FilterSpans drops spans of disabled categories, spans outside the column's
// allow-list, and spans below the applicable confidence threshold. The input
// order is preserved.
func (p *Policy) FilterSpans(pol ColumnPolicy, spans []Span) []Span {
	if len(spans) == 0 {
		return nil
	}
	out := spans[:0]
	for _, s := range spans {
		rule, ok := p.anonymize.Entities[s.Category]
		if !ok || !rule.On() {
			continue
		}
		if len(pol.Entities) > 0 && !containsFold(pol.Entities, s.Category) {
			continue
		}
		threshold := rule.ConfidenceThreshold
		if threshold <= 0 {
			threshold = config.DefaultThreshold
		}
		if pol.Threshold > 0 {
			threshold = pol.Threshold
		}
		if s.Confidence < threshold {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Declared-type categories whose values can carry sensitive content. PII
// shows up in numeric and temporal columns too (SSNs, phone numbers, dates),
// not just text.
var processableTypes = map[string]struct{}{
	"TEXT": {}, "VARCHAR": {}, "CHAR": {}, "STRING": {},
	"INTEGER": {}, "INT": {}, "NUMERIC": {}, "REAL": {}, "FLOAT": {}, "DOUBLE": {}, "NUM": {},
	"DATE": {}, "DATETIME": {}, "TIMESTAMP": {},
}

// Identifier-shaped column names that never reach the classifier, no matter
// what the policy says.
var idColumnNames = map[string]struct{}{
	"id": {}, "uuid": {}, "guid": {}, "key": {}, "pk": {}, "user_id": {},
}

// EligibleColumn reports whether a column's declared type and name make it a
// classification candidate: the type must belong to the textual, numeric, or
// temporal category, and the name must not be identifier-shaped (exact matches
// such as "id" or "uuid", or any name ending in "_id").
func EligibleColumn(column, declaredType string) bool {
	typ := strings.ToUpper(strings.TrimSpace(declaredType))
	// SQLite declared types may carry a size suffix, e.g. VARCHAR(255).
	if i := strings.IndexByte(typ, '('); i >= 0 {
		typ = strings.TrimSpace(typ[:i])
	}
	if _, ok := processableTypes[typ]; !ok {
		return false
	}

	name := strings.ToLower(column)
	if _, ok := idColumnNames[name]; ok {
		return false
	}
	return !strings.HasSuffix(name, "_id")
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
