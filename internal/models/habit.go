package models

import "time"

// FrequencyUnit is the calendar unit a habit's quota is measured against.
type FrequencyUnit string

const (
	FrequencyDay   FrequencyUnit = "day"
	FrequencyWeek  FrequencyUnit = "week"
	FrequencyMonth FrequencyUnit = "month"
)

// Valid reports whether the unit is one of the supported calendar units.
func (u FrequencyUnit) Valid() bool {
	switch u {
	case FrequencyDay, FrequencyWeek, FrequencyMonth:
		return true
	}
	return false
}

// HabitStatus is the lifecycle state of a habit.
type HabitStatus string

const (
	HabitActive    HabitStatus = "active"
	HabitCompleted HabitStatus = "completed"
	HabitFailed    HabitStatus = "failed"
	HabitArchived  HabitStatus = "archived"
)

// habitTransitions is the legal-transition table; states absent from the map
// are terminal.
var habitTransitions = map[HabitStatus][]HabitStatus{
	HabitActive: {HabitCompleted, HabitFailed, HabitArchived},
}

// CanTransitionTo reports whether moving to next is legal from s.
func (s HabitStatus) CanTransitionTo(next HabitStatus) bool {
	for _, t := range habitTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are legal from s.
func (s HabitStatus) Terminal() bool {
	return len(habitTransitions[s]) == 0
}

// Habit represents a recurring commitment backed by an optional stake
type Habit struct {
	ID             int64         `json:"id"`
	UserID         int64         `json:"user_id"`
	Title          string        `json:"title"`
	FrequencyUnit  FrequencyUnit `json:"frequency_unit"`
	FrequencyValue int           `json:"frequency_value"`
	StartDate      time.Time     `json:"start_date"`
	EndDate        *time.Time    `json:"end_date,omitempty"`
	Status         HabitStatus   `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}
