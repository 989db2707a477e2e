package anonymize

import (
	"testing"

	"dbanon/internal/config"
)

/*
TestEligibleColumn verifies the column eligibility rules: processable
declared types pass, identifier-shaped names and foreign-key suffixes never
do, and size suffixes like VARCHAR(255) are handled.
*/
func TestEligibleColumn(t *testing.T) {
	tests := []struct {
		column string
		typ    string
		want   bool
	}{
		{"email", "TEXT", true},
		{"phone", "VARCHAR(32)", true},
		{"notes", "varchar", true},
		{"created", "DATETIME", true},
		{"ssn", "INTEGER", true},
		{"amount", "REAL", true},

		{"id", "INTEGER", false},
		{"ID", "TEXT", false},
		{"uuid", "TEXT", false},
		{"guid", "TEXT", false},
		{"pk", "INTEGER", false},
		{"user_id", "TEXT", false},
		{"account_id", "VARCHAR(64)", false},
		{"OrderID", "TEXT", true}, // no underscore, not an exact id name

		{"payload", "BLOB", false},
		{"payload", "", false},
	}
	for _, tc := range tests {
		if got := EligibleColumn(tc.column, tc.typ); got != tc.want {
			t.Errorf("EligibleColumn(%q, %q) = %v; want %v", tc.column, tc.typ, got, tc.want)
		}
	}
}

/*
TestPolicyResolve verifies per-(table, column) resolution: unconfigured
pairs get the default policy, a disabled table disables all its columns,
and column rules carry entities, language and threshold through.
*/
func TestPolicyResolve(t *testing.T) {
	off := false
	cfg := config.Default()
	cfg.Tables = map[string]config.TableRule{
		"audit": {Enabled: &off},
		"users": {
			Columns: map[string]config.ColumnRule{
				"email": {
					Entities:            []string{"EMAIL_ADDRESS"},
					Language:            "de",
					ConfidenceThreshold: 0.8,
				},
				"bio": {Enabled: &off},
			},
		},
	}
	p := NewPolicy(cfg)

	def := p.Resolve("unknown", "whatever")
	if !def.Enabled || def.Language != config.DefaultLanguage || len(def.Entities) != 0 {
		t.Fatalf("default policy = %+v", def)
	}

	if pol := p.Resolve("audit", "email"); pol.Enabled {
		t.Fatalf("disabled table yielded enabled policy: %+v", pol)
	}

	if pol := p.Resolve("users", "bio"); pol.Enabled {
		t.Fatalf("disabled column yielded enabled policy: %+v", pol)
	}

	pol := p.Resolve("users", "email")
	if !pol.Enabled {
		t.Fatalf("configured column disabled: %+v", pol)
	}
	if len(pol.Entities) != 1 || pol.Entities[0] != "EMAIL_ADDRESS" {
		t.Errorf("Entities = %v; want [EMAIL_ADDRESS]", pol.Entities)
	}
	if pol.Language != "de" {
		t.Errorf("Language = %q; want de", pol.Language)
	}
	if pol.Threshold != 0.8 {
		t.Errorf("Threshold = %v; want 0.8", pol.Threshold)
	}

	// Unconfigured column of a configured, enabled table.
	if pol := p.Resolve("users", "name"); !pol.Enabled {
		t.Fatalf("unconfigured column of enabled table disabled: %+v", pol)
	}
}

/*
TestFilterSpans verifies that spans of disabled or unknown categories,
spans outside a column allow-list, and spans below the confidence threshold
are dropped, and that a column-level threshold overrides per-category ones.
*/
func TestFilterSpans(t *testing.T) {
	off := false
	cfg := config.Default()
	cfg.Anonymize.Entities["PHONE_NUMBER"] = config.EntityRule{Enabled: &off}
	cfg.Anonymize.Entities["US_SSN"] = config.EntityRule{ConfidenceThreshold: 0.9}
	p := NewPolicy(cfg)

	spans := []Span{
		{Start: 0, End: 5, Category: "EMAIL_ADDRESS", Confidence: 0.9},
		{Start: 6, End: 10, Category: "PHONE_NUMBER", Confidence: 0.9},  // disabled
		{Start: 11, End: 15, Category: "US_SSN", Confidence: 0.85},      // below 0.9
		{Start: 16, End: 20, Category: "CREDIT_CARD", Confidence: 0.3},  // below default 0.5
		{Start: 21, End: 25, Category: "LICENSE_PLATE", Confidence: 1},  // unknown
		{Start: 26, End: 30, Category: "IP_ADDRESS", Confidence: 0.8},
	}

	got := p.FilterSpans(ColumnPolicy{Enabled: true}, append([]Span(nil), spans...))
	if len(got) != 2 || got[0].Category != "EMAIL_ADDRESS" || got[1].Category != "IP_ADDRESS" {
		t.Fatalf("FilterSpans = %+v; want EMAIL_ADDRESS and IP_ADDRESS", got)
	}

	// Allow-list restricts further.
	got = p.FilterSpans(
		ColumnPolicy{Enabled: true, Entities: []string{"ip_address"}},
		append([]Span(nil), spans...),
	)
	if len(got) != 1 || got[0].Category != "IP_ADDRESS" {
		t.Fatalf("FilterSpans with allow-list = %+v; want only IP_ADDRESS", got)
	}

	// Column threshold overrides category thresholds in both directions.
	got = p.FilterSpans(
		ColumnPolicy{Enabled: true, Threshold: 0.84},
		append([]Span(nil), spans...),
	)
	for _, s := range got {
		if s.Category == "US_SSN" {
			return // 0.85 >= 0.84, retained as expected
		}
	}
	t.Fatalf("FilterSpans with column threshold = %+v; want US_SSN retained", got)
}
