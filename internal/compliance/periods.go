package compliance

import (
	"fmt"
	"time"

	"github.com/Pavel2201/habit-stake/internal/models"
)

// Period is a half-open compliance window [Start, End). A check-in stamped
// exactly at End belongs to the next period.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// PeriodsToEvaluate returns, oldest first, every calendar-aligned period of
// the habit's frequency unit that has fully elapsed by now. The first period
// starts at the earliest aligned boundary at or after the habit's start date;
// a period is only emitted if its end is strictly before now. Habits that
// have not started yet, or whose end date has already passed, contribute no
// periods. Deterministic: same inputs always produce the same output.
func PeriodsToEvaluate(unit models.FrequencyUnit, value int, start time.Time, end *time.Time, now time.Time, weekStart time.Weekday) ([]Period, error) {
	if !unit.Valid() {
		return nil, fmt.Errorf("invalid frequency unit: %q", unit)
	}
	if value <= 0 {
		return nil, fmt.Errorf("invalid frequency value: %d", value)
	}
	if start.After(now) {
		return nil, nil
	}
	if end != nil && end.Before(now) {
		return nil, nil
	}

	var periods []Period
	for cur := firstBoundary(unit, startOfDay(start), weekStart); ; cur = nextBoundary(unit, cur) {
		p := Period{Start: cur, End: nextBoundary(unit, cur)}
		if !p.End.Before(now) {
			break
		}
		if end != nil && p.Start.After(*end) {
			break
		}
		periods = append(periods, p)
	}
	return periods, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// firstBoundary returns the earliest period boundary at or after day, which
// must already be aligned to midnight.
func firstBoundary(unit models.FrequencyUnit, day time.Time, weekStart time.Weekday) time.Time {
	switch unit {
	case models.FrequencyWeek:
		for day.Weekday() != weekStart {
			day = day.AddDate(0, 0, 1)
		}
		return day
	case models.FrequencyMonth:
		if day.Day() == 1 {
			return day
		}
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location()).AddDate(0, 1, 0)
	default:
		return day
	}
}

func nextBoundary(unit models.FrequencyUnit, boundary time.Time) time.Time {
	switch unit {
	case models.FrequencyWeek:
		return boundary.AddDate(0, 0, 7)
	case models.FrequencyMonth:
		return boundary.AddDate(0, 1, 0)
	default:
		return boundary.AddDate(0, 0, 1)
	}
}
