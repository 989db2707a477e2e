package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"dbanon/internal/anonymize"
	"dbanon/internal/config"
)

// Report is the persisted run artifact: configuration snapshot plus frozen
// processing and anonymization statistics.
type Report struct {
	RunID         string                  `json:"run_id"`
	GeneratedAt   time.Time               `json:"generated_at"`
	Config        ConfigSnapshot          `json:"pipeline_config"`
	Processing    Snapshot                `json:"processing_stats"`
	Anonymization anonymize.StatsSnapshot `json:"anonymization_stats"`
}

// ConfigSnapshot records the knobs the run was executed with. MaxMemoryMB is
// advisory and only reported, never enforced.
type ConfigSnapshot struct {
	Job             string   `json:"job"`
	Enabled         bool     `json:"enabled"`
	BatchSize       int      `json:"batch_size"`
	MaxMemoryMB     int      `json:"max_memory_mb"`
	Parallel        bool     `json:"parallel_processing"`
	Workers         int      `json:"num_workers"`
	EnabledEntities []string `json:"enabled_entities"`
}

// NewReport assembles the artifact, stamping a fresh run ID.
func NewReport(cfg config.Pipeline, proc Snapshot, anon anonymize.StatsSnapshot) Report {
	var entities []string
	for name, rule := range cfg.Anonymize.Entities {
		if rule.On() {
			entities = append(entities, name)
		}
	}
	sort.Strings(entities)

	return Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Config: ConfigSnapshot{
			Job:             cfg.Job,
			Enabled:         cfg.Anonymize.Enabled,
			BatchSize:       cfg.Runtime.BatchSize,
			MaxMemoryMB:     cfg.Runtime.MaxMemoryMB,
			Parallel:        cfg.Runtime.Parallel,
			Workers:         cfg.Runtime.Workers,
			EnabledEntities: entities,
		},
		Processing:    proc,
		Anonymization: anon,
	}
}

// Save writes the report as indented JSON, creating parent directories as
// needed.
func (r Report) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("pipeline: report dir: %w", err)
	}
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: marshal report: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("pipeline: write report: %w", err)
	}
	return nil
}
