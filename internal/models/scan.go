package models

import "time"

// ScanError reports a non-fatal failure for a single habit during a scan
// pass.
type ScanError struct {
	HabitID int64  `json:"habit_id"`
	Error   string `json:"error"`
}

// ScanSummary is the result of one compliance scan pass.
type ScanSummary struct {
	RunID           string      `json:"run_id"`
	StartedAt       time.Time   `json:"started_at"`
	HabitsScanned   int         `json:"habits_scanned"`
	RecordsCreated  int         `json:"records_created"`
	RecordsFailed   int         `json:"records_failed"`
	CascadesApplied int         `json:"cascades_applied"`
	Errors          []ScanError `json:"errors,omitempty"`
}
