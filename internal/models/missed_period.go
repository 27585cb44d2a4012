package models

import "time"

// RecordStatus is the state of a missed-period record.
type RecordStatus string

const (
	RecordPending          RecordStatus = "pending"
	RecordResolvedComplete RecordStatus = "resolved_complete"
	RecordFailed           RecordStatus = "failed"
)

var recordTransitions = map[RecordStatus][]RecordStatus{
	RecordPending: {RecordResolvedComplete, RecordFailed},
}

// CanTransitionTo reports whether moving to next is legal from s.
func (s RecordStatus) CanTransitionTo(next RecordStatus) bool {
	for _, t := range recordTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a terminal record state.
func (s RecordStatus) Terminal() bool {
	return len(recordTransitions[s]) == 0
}

// MissedPeriodRecord marks a quota shortfall for one compliance period of a
// habit and carries the grace deadline before which the user may resolve it.
// At most one record exists per (habit, period start, period end); the
// database enforces this with a unique constraint.
type MissedPeriodRecord struct {
	ID               int64        `json:"id"`
	HabitID          int64        `json:"habit_id"`
	PeriodStart      time.Time    `json:"period_start"`
	PeriodEnd        time.Time    `json:"period_end"`
	RequiredCheckins int          `json:"required_checkins"`
	ActualCheckins   int          `json:"actual_checkins"`
	Status           RecordStatus `json:"status"`
	GraceDeadline    time.Time    `json:"grace_deadline"`
	ResolvedAt       *time.Time   `json:"resolved_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// MissingCheckins is the number of check-ins the user still owes for the
// period.
func (r *MissedPeriodRecord) MissingCheckins() int {
	missing := r.RequiredCheckins - r.ActualCheckins
	if missing < 0 {
		return 0
	}
	return missing
}
