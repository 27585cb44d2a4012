package service

import (
	"context"
	"time"

	"github.com/Pavel2201/habit-stake/internal/models"
)

// ResolveAsComplete is the user's "complete retroactively" entry point.
// Legal only while the record is pending: the owed check-ins are backfilled,
// dated strictly inside the missed period, and the record moves to
// resolved_complete. The habit stays active; no forfeiture is triggered.
// A record already resolved, by the user or by the timeout sweep, returns
// ErrAlreadyResolved.
func (s *Service) ResolveAsComplete(ctx context.Context, recordID int64, now time.Time) (*models.MissedPeriodRecord, error) {
	rec, err := s.ownedRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return rec, models.ErrAlreadyResolved
	}

	backfill := backfillTimes(rec.PeriodStart, rec.PeriodEnd, rec.MissingCheckins())
	applied, err := s.store.ResolveRecordComplete(rec, backfill, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the race against another resolution or the timeout sweep.
		current, err := s.store.GetMissedPeriod(recordID)
		if err != nil {
			return nil, err
		}
		return current, models.ErrAlreadyResolved
	}

	s.log.Infof("Record %d resolved complete: %d check-ins backfilled for habit %d",
		rec.ID, len(backfill), rec.HabitID)
	return s.store.GetMissedPeriod(recordID)
}

// ResolveAsFailed is the user's "admit failure" entry point. Legal only
// while the record is pending: the record moves to failed and the
// forfeiture cascade runs immediately, without waiting for the grace
// deadline.
func (s *Service) ResolveAsFailed(ctx context.Context, recordID int64, now time.Time) (*models.MissedPeriodRecord, error) {
	rec, err := s.ownedRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Status.Terminal() {
		return rec, models.ErrAlreadyResolved
	}

	applied, err := s.store.FailRecordAndCascade(rec.ID, rec.HabitID, now)
	if err != nil {
		return nil, err
	}
	if !applied {
		current, err := s.store.GetMissedPeriod(recordID)
		if err != nil {
			return nil, err
		}
		return current, models.ErrAlreadyResolved
	}

	s.log.Infof("Record %d resolved as failed by user: habit %d forfeited", rec.ID, rec.HabitID)
	s.notifyForfeiture(rec.HabitID)
	return s.store.GetMissedPeriod(recordID)
}

// ownedRecord loads a record and verifies it belongs to the authenticated
// user.
func (s *Service) ownedRecord(ctx context.Context, recordID int64) (*models.MissedPeriodRecord, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetMissedPeriod(recordID)
	if err != nil {
		return nil, err
	}
	habit, err := s.store.GetHabit(rec.HabitID)
	if err != nil {
		return nil, err
	}
	if habit.UserID != userID {
		return nil, models.ErrForbidden
	}
	return rec, nil
}

// backfillTimes spreads n instants evenly across (start, end), never on the
// boundaries, so backfilled check-ins always fall inside the missed period.
func backfillTimes(start, end time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	step := end.Sub(start) / time.Duration(n+1)
	times := make([]time.Time, n)
	for i := 0; i < n; i++ {
		times[i] = start.Add(step * time.Duration(i+1))
	}
	return times
}
