package models

import "time"

// CheckIn is a single recorded performance of a habit. Immutable once
// created except for the verification flag. Backfilled check-ins are
// created by retroactive grace-period resolution and dated inside the
// missed period they resolve.
type CheckIn struct {
	ID          int64     `json:"id"`
	HabitID     int64     `json:"habit_id"`
	CompletedAt time.Time `json:"completed_at"`
	Success     bool      `json:"success"`
	ProofURL    *string   `json:"proof_url,omitempty"`
	Verified    bool      `json:"verified"`
	Backfilled  bool      `json:"backfilled"`
	CreatedAt   time.Time `json:"created_at"`
}
