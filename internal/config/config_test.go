// Package config tests cover the pipeline file model with its defaults, the
// lint-style validator, and container parameter parsing.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

/*
TestNormalizeDefaults verifies that Normalize fills every zero-valued knob
and never overrides explicit settings.
*/
func TestNormalizeDefaults(t *testing.T) {
	var p Pipeline
	p.Normalize()

	if p.Job == "" {
		t.Errorf("Job left empty")
	}
	if p.Runtime.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d; want %d", p.Runtime.BatchSize, DefaultBatchSize)
	}
	if p.Runtime.Workers != DefaultWorkers {
		t.Errorf("Workers = %d; want %d", p.Runtime.Workers, DefaultWorkers)
	}
	if p.Anonymize.DefaultLanguage != DefaultLanguage {
		t.Errorf("DefaultLanguage = %q; want %q", p.Anonymize.DefaultLanguage, DefaultLanguage)
	}
	if p.Anonymize.DefaultReplacement != DefaultReplacement {
		t.Errorf("DefaultReplacement = %q; want %q", p.Anonymize.DefaultReplacement, DefaultReplacement)
	}

	p = Pipeline{Job: "custom", Runtime: Runtime{BatchSize: 50, Workers: 2}}
	p.Normalize()
	if p.Job != "custom" || p.Runtime.BatchSize != 50 || p.Runtime.Workers != 2 {
		t.Errorf("Normalize overrode explicit values: %+v", p)
	}
}

/*
TestLoad verifies decoding a pipeline file from disk with defaults applied,
and the error paths for missing and malformed files.
*/
func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipeline.json")
	doc := `{
	  "job": "refiner",
	  "runtime": { "parallel": true, "workers": 8 },
	  "anonymize": {
	    "enabled": true,
	    "entities": { "EMAIL_ADDRESS": { "strategy": "mask" } }
	  },
	  "tables": {
	    "users": { "columns": { "ssn": { "entities": ["US_SSN"] } } }
	  }
	}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if p.Job != "refiner" {
		t.Errorf("Job = %q; want refiner", p.Job)
	}
	if !p.Runtime.Parallel || p.Runtime.Workers != 8 {
		t.Errorf("Runtime = %+v", p.Runtime)
	}
	if p.Runtime.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d; want default %d", p.Runtime.BatchSize, DefaultBatchSize)
	}
	if p.Anonymize.Entities["EMAIL_ADDRESS"].Strategy != "mask" {
		t.Errorf("entity strategy = %+v", p.Anonymize.Entities)
	}
	if got := p.Tables["users"].Columns["ssn"].Entities; len(got) != 1 || got[0] != "US_SSN" {
		t.Errorf("column entities = %v", got)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Errorf("Load(missing) succeeded")
	}

	bad := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Errorf("Load(bad json) succeeded")
	}
}

/*
TestValidatePipeline verifies the lint findings for a selection of broken
and merely questionable configurations.
*/
func TestValidatePipeline(t *testing.T) {
	off := false

	tests := []struct {
		name     string
		mutate   func(*Pipeline)
		wantPath string
		severity IssueSeverity
	}{
		{
			name:     "empty job",
			mutate:   func(p *Pipeline) { p.Job = "" },
			wantPath: "job",
			severity: SeverityError,
		},
		{
			name:     "bad batch size",
			mutate:   func(p *Pipeline) { p.Runtime.BatchSize = 0 },
			wantPath: "runtime.batch_size",
			severity: SeverityError,
		},
		{
			name:     "negative workers",
			mutate:   func(p *Pipeline) { p.Runtime.Workers = -1 },
			wantPath: "runtime.workers",
			severity: SeverityError,
		},
		{
			name: "parallel with one worker",
			mutate: func(p *Pipeline) {
				p.Runtime.Parallel = true
				p.Runtime.Workers = 1
			},
			wantPath: "runtime.workers",
			severity: SeverityWarning,
		},
		{
			name: "enabled without entities",
			mutate: func(p *Pipeline) {
				p.Anonymize.Entities = nil
			},
			wantPath: "anonymize.entities",
			severity: SeverityWarning,
		},
		{
			name: "threshold out of range",
			mutate: func(p *Pipeline) {
				p.Anonymize.Entities["US_SSN"] = EntityRule{ConfidenceThreshold: 1.5}
			},
			wantPath: "anonymize.entities.US_SSN.confidence_threshold",
			severity: SeverityError,
		},
		{
			name: "unknown strategy",
			mutate: func(p *Pipeline) {
				p.Anonymize.Entities["US_SSN"] = EntityRule{Strategy: "rot13"}
			},
			wantPath: "anonymize.entities.US_SSN.strategy",
			severity: SeverityError,
		},
		{
			name: "column enabled under disabled table",
			mutate: func(p *Pipeline) {
				on := true
				p.Tables = map[string]TableRule{
					"users": {
						Enabled: &off,
						Columns: map[string]ColumnRule{"email": {Enabled: &on}},
					},
				}
			},
			wantPath: "tables.users.columns.email.enabled",
			severity: SeverityWarning,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := Default()
			tc.mutate(&p)

			issues := ValidatePipeline(p)
			for _, iss := range issues {
				if iss.Path == tc.wantPath && iss.Severity == tc.severity {
					if iss.Error() == "" {
						t.Errorf("issue has empty error text")
					}
					return
				}
			}
			t.Fatalf("no %s issue at %q in %v", tc.severity, tc.wantPath, issues)
		})
	}
}

/*
TestValidatePipelineClean verifies that the built-in default configuration
lints clean.
*/
func TestValidatePipelineClean(t *testing.T) {
	if issues := ValidatePipeline(Default()); HasErrors(issues) {
		t.Fatalf("default config has errors: %v", issues)
	}
}

/*
TestParamsFromEnv verifies parameter parsing for dev mode, production mode
with query details, and the malformed-value error paths.
*/
func TestParamsFromEnv(t *testing.T) {
	t.Setenv("INPUT_PATH", "/data/in")
	t.Setenv("OUTPUT_PATH", "/data/out")
	t.Setenv("DEV_MODE", "true")

	p, err := ParamsFromEnv()
	if err != nil {
		t.Fatalf("ParamsFromEnv: %v", err)
	}
	if !p.DevMode {
		t.Errorf("DevMode = false; want true")
	}
	if p.DBPath() != filepath.Join("/data/in", "query_results.db") {
		t.Errorf("DBPath = %q", p.DBPath())
	}
	if p.OutputDBPath() != filepath.Join("/data/out", "query_results.db") {
		t.Errorf("OutputDBPath = %q", p.OutputDBPath())
	}
	if p.StatsPath() != filepath.Join("/data/out", "stats.json") {
		t.Errorf("StatsPath = %q", p.StatsPath())
	}

	t.Setenv("DEV_MODE", "")
	t.Setenv("QUERY", "SELECT * FROM users")
	t.Setenv("QUERY_SIGNATURE", "sig")
	t.Setenv("QUERY_PARAMS", `["a", 2]`)
	t.Setenv("COMPUTE_JOB_ID", "42")
	t.Setenv("DATA_REFINER_ID", "7")

	p, err = ParamsFromEnv()
	if err != nil {
		t.Fatalf("ParamsFromEnv: %v", err)
	}
	if p.Query == "" || p.QuerySignature != "sig" {
		t.Errorf("query fields = %+v", p)
	}
	if len(p.QueryParams) != 2 {
		t.Errorf("QueryParams = %v; want 2 values", p.QueryParams)
	}
	if p.ComputeJobID != 42 || p.DataRefinerID != 7 {
		t.Errorf("ids = %d/%d; want 42/7", p.ComputeJobID, p.DataRefinerID)
	}
	if err := p.ValidateProduction(); err != nil {
		t.Errorf("ValidateProduction: %v", err)
	}

	t.Setenv("QUERY_PARAMS", "not json")
	if _, err := ParamsFromEnv(); err == nil {
		t.Errorf("bad QUERY_PARAMS accepted")
	} else {
		var pErr *ParamsError
		if !errors.As(err, &pErr) || pErr.Name != "QUERY_PARAMS" {
			t.Errorf("error = %v; want ParamsError for QUERY_PARAMS", err)
		}
	}

	t.Setenv("QUERY_PARAMS", "")
	t.Setenv("COMPUTE_JOB_ID", "nope")
	if _, err := ParamsFromEnv(); err == nil {
		t.Errorf("bad COMPUTE_JOB_ID accepted")
	}
}

/*
TestValidateProduction verifies that missing production fields fail with a
ParamsError whose message points to dev mode.
*/
func TestValidateProduction(t *testing.T) {
	var p Params
	err := p.ValidateProduction()
	if err == nil {
		t.Fatalf("empty params validated")
	}
	if !strings.Contains(err.Error(), "DEV_MODE") {
		t.Errorf("error %q does not mention the dev-mode escape hatch", err)
	}

	p.Query = "SELECT 1"
	p.QuerySignature = "sig"
	if err := p.ValidateProduction(); err == nil {
		t.Errorf("missing job ids validated")
	}

	p.ComputeJobID = 1
	p.DataRefinerID = 2
	if err := p.ValidateProduction(); err != nil {
		t.Errorf("ValidateProduction: %v", err)
	}
}
