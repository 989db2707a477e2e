package pipeline

import (
	"sync"
	"time"
)

// Stats tracks run-level processing counters. Table units running in
// parallel increment it concurrently; every mutation goes through the mutex.
type Stats struct {
	mu              sync.Mutex
	totalTables     int
	processedTables int
	totalRows       int64
	processedRows   int64
	anonymizedRows  int64
	start           time.Time
	end             time.Time
}

// NewStats returns an empty Stats.
func NewStats() *Stats {
	return &Stats{}
}

// Begin records the discovery totals and the run start time.
func (s *Stats) Begin(tables int, rows int64) {
	s.mu.Lock()
	s.totalTables = tables
	s.totalRows = rows
	s.start = time.Now()
	s.mu.Unlock()
}

// AddProcessedRows adds n rows read and written for one batch.
func (s *Stats) AddProcessedRows(n int64) {
	s.mu.Lock()
	s.processedRows += n
	s.mu.Unlock()
}

// TableDone marks one table unit as completed.
func (s *Stats) TableDone() {
	s.mu.Lock()
	s.processedTables++
	s.mu.Unlock()
}

// SetAnonymizedRows records the number of rows the transformer altered.
func (s *Stats) SetAnonymizedRows(n int64) {
	s.mu.Lock()
	s.anonymizedRows = n
	s.mu.Unlock()
}

// Finish freezes the end time. Snapshots taken afterwards report a stable
// elapsed duration.
func (s *Stats) Finish() {
	s.mu.Lock()
	s.end = time.Now()
	s.mu.Unlock()
}

// Snapshot is an immutable copy of the processing counters with derived
// elapsed time and throughput.
type Snapshot struct {
	TotalTables     int     `json:"total_tables"`
	ProcessedTables int     `json:"processed_tables"`
	TotalRows       int64   `json:"total_rows"`
	ProcessedRows   int64   `json:"processed_rows"`
	AnonymizedRows  int64   `json:"anonymized_rows"`
	ElapsedSeconds  float64 `json:"elapsed_time"`
	RowsPerSecond   float64 `json:"rows_per_second"`
	ProgressPercent float64 `json:"progress_percent"`
}

// Snapshot copies the current counters. Before Finish the elapsed time runs
// against the wall clock, so it can be used for live progress reporting.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TotalTables:     s.totalTables,
		ProcessedTables: s.processedTables,
		TotalRows:       s.totalRows,
		ProcessedRows:   s.processedRows,
		AnonymizedRows:  s.anonymizedRows,
	}

	if !s.start.IsZero() {
		end := s.end
		if end.IsZero() {
			end = time.Now()
		}
		snap.ElapsedSeconds = end.Sub(s.start).Seconds()
	}
	if snap.ElapsedSeconds > 0 {
		snap.RowsPerSecond = float64(snap.ProcessedRows) / snap.ElapsedSeconds
	}
	if snap.TotalRows > 0 {
		snap.ProgressPercent = float64(snap.ProcessedRows) / float64(snap.TotalRows) * 100
	}
	return snap
}
