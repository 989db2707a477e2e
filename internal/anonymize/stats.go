package anonymize

import (
	"sync"
	"time"
)

// Stats accumulates transform-level counters. All fields are updated through
// the mutex; table units running in parallel share one Stats value.
type Stats struct {
	mu               sync.Mutex
	valuesProcessed  int64
	valuesAnonymized int64
	rowsAltered      int64
	transformErrors  int64
	entities         map[string]int64
	tableRows        map[string]int64
	elapsed          time.Duration
}

// NewStats returns an empty Stats.
func NewStats() *Stats {
	return &Stats{
		entities:  map[string]int64{},
		tableRows: map[string]int64{},
	}
}

func (s *Stats) addValues(processed, anonymized int64) {
	s.mu.Lock()
	s.valuesProcessed += processed
	s.valuesAnonymized += anonymized
	s.mu.Unlock()
}

func (s *Stats) addEntity(category string, n int64) {
	s.mu.Lock()
	s.entities[category] += n
	s.mu.Unlock()
}

func (s *Stats) addTableRows(table string, n int64) {
	s.mu.Lock()
	s.tableRows[table] += n
	s.mu.Unlock()
}

func (s *Stats) addRowsAltered(n int64) {
	s.mu.Lock()
	s.rowsAltered += n
	s.mu.Unlock()
}

func (s *Stats) addError() {
	s.mu.Lock()
	s.transformErrors++
	s.mu.Unlock()
}

func (s *Stats) addElapsed(d time.Duration) {
	s.mu.Lock()
	s.elapsed += d
	s.mu.Unlock()
}

// StatsSnapshot is an immutable copy of the counters, for reporting.
type StatsSnapshot struct {
	ValuesProcessed   int64            `json:"total_values_processed"`
	ValuesAnonymized  int64            `json:"total_values_anonymized"`
	AnonymizationRate float64          `json:"anonymization_rate"`
	RowsAltered       int64            `json:"rows_altered"`
	TransformErrors   int64            `json:"transform_errors"`
	Entities          map[string]int64 `json:"entities_found"`
	TableRows         map[string]int64 `json:"tables_processed"`
	ProcessingSeconds float64          `json:"processing_time"`
}

// Snapshot copies the current counters. The maps in the result are owned by
// the caller.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := StatsSnapshot{
		ValuesProcessed:   s.valuesProcessed,
		ValuesAnonymized:  s.valuesAnonymized,
		RowsAltered:       s.rowsAltered,
		TransformErrors:   s.transformErrors,
		Entities:          make(map[string]int64, len(s.entities)),
		TableRows:         make(map[string]int64, len(s.tableRows)),
		ProcessingSeconds: s.elapsed.Seconds(),
	}
	for k, v := range s.entities {
		snap.Entities[k] = v
	}
	for k, v := range s.tableRows {
		snap.TableRows[k] = v
	}
	if snap.ValuesProcessed > 0 {
		snap.AnonymizationRate = float64(snap.ValuesAnonymized) / float64(snap.ValuesProcessed) * 100
	}
	return snap
}
