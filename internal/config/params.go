package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Params are the container parameters exchanged between the host and the job
// container via environment variables. They locate the input/output mounts and
// carry the query-engine job details required in production mode.
type Params struct {
	InputPath  string
	OutputPath string
	DevMode    bool

	// Required in production mode.
	Query          string
	QuerySignature string
	QueryParams    []any
	ComputeJobID   int64
	DataRefinerID  int64
}

// ParamsError reports malformed or missing container parameters. It is a
// startup-time configuration failure, surfaced before any table is touched.
type ParamsError struct {
	Name string
	Err  error
}

func (e *ParamsError) Error() string {
	return fmt.Sprintf("config: parameter %s: %v", e.Name, e.Err)
}

func (e *ParamsError) Unwrap() error { return e.Err }

// ParamsFromEnv builds Params from the process environment. A .env file in
// the working directory, when present, is loaded first; explicit environment
// variables take precedence over it.
//
// In dev mode only the mount paths matter; production fields are parsed but
// validated separately via ValidateProduction.
func ParamsFromEnv() (Params, error) {
	// Best effort; a missing .env file is the normal case in production.
	_ = godotenv.Load()

	p := Params{
		InputPath:  getenvDefault("INPUT_PATH", "/mnt/input"),
		OutputPath: getenvDefault("OUTPUT_PATH", "/mnt/output"),
		DevMode:    truthy(os.Getenv("DEV_MODE")),
	}
	if p.DevMode {
		return p, nil
	}

	p.Query = os.Getenv("QUERY")
	p.QuerySignature = os.Getenv("QUERY_SIGNATURE")

	if raw := os.Getenv("QUERY_PARAMS"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &p.QueryParams); err != nil {
			return Params{}, &ParamsError{Name: "QUERY_PARAMS", Err: fmt.Errorf("not valid JSON: %w", err)}
		}
	}

	jobID := os.Getenv("COMPUTE_JOB_ID")
	refinerID := os.Getenv("DATA_REFINER_ID")
	if jobID != "" && refinerID != "" {
		var err error
		if p.ComputeJobID, err = strconv.ParseInt(jobID, 10, 64); err != nil {
			return Params{}, &ParamsError{Name: "COMPUTE_JOB_ID", Err: fmt.Errorf("not an integer: %q", jobID)}
		}
		if p.DataRefinerID, err = strconv.ParseInt(refinerID, 10, 64); err != nil {
			return Params{}, &ParamsError{Name: "DATA_REFINER_ID", Err: fmt.Errorf("not an integer: %q", refinerID)}
		}
	}

	return p, nil
}

// ValidateProduction checks the fields required when DevMode is off.
func (p Params) ValidateProduction() error {
	if p.Query == "" || p.QuerySignature == "" {
		return &ParamsError{
			Name: "QUERY",
			Err:  fmt.Errorf("QUERY and QUERY_SIGNATURE are required in production mode (set DEV_MODE=1 to use a local database file)"),
		}
	}
	if p.ComputeJobID == 0 || p.DataRefinerID == 0 {
		return &ParamsError{
			Name: "COMPUTE_JOB_ID",
			Err:  fmt.Errorf("COMPUTE_JOB_ID and DATA_REFINER_ID are required in production mode"),
		}
	}
	return nil
}

// DBPath is the full path to the SQLite database inside the input mount.
func (p Params) DBPath() string {
	return filepath.Join(p.InputPath, "query_results.db")
}

// OutputDBPath is the full path of the anonymized database inside the output
// mount.
func (p Params) OutputDBPath() string {
	return filepath.Join(p.OutputPath, "query_results.db")
}

// StatsPath is the full path of the run report inside the output mount.
func (p Params) StatsPath() string {
	return filepath.Join(p.OutputPath, "stats.json")
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
