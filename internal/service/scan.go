package service

import (
	"context"
	"time"

	"github.com/Pavel2201/habit-stake/internal/compliance"
	"github.com/Pavel2201/habit-stake/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunScan executes one compliance pass: for every active habit it computes
// the elapsed periods, records a pending missed-period record for each
// unrecorded quota shortfall, and then sweeps expired pending records into
// failure cascades. Safe to re-run and to overlap with itself: record
// creation is guarded by the (habit, period start, period end) unique key
// and every transition is conditional on the current status.
func (s *Service) RunScan(ctx context.Context, now time.Time) (*models.ScanSummary, error) {
	summary := &models.ScanSummary{
		RunID:     uuid.NewString(),
		StartedAt: now,
	}
	log := s.log.WithFields(logrus.Fields{"run_id": summary.RunID})
	log.Info("Compliance scan started")

	habits, err := s.store.ListActiveHabits()
	if err != nil {
		return nil, err
	}

	for i := range habits {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		habit := &habits[i]
		summary.HabitsScanned++
		created, err := s.scanHabit(habit, now)
		summary.RecordsCreated += created
		if err != nil {
			// One habit's failure must not abort the batch.
			log.Errorf("Failed to scan habit %d: %v", habit.ID, err)
			summary.Errors = append(summary.Errors, models.ScanError{HabitID: habit.ID, Error: err.Error()})
		}
	}

	if err := s.sweepExpired(log, summary, now); err != nil {
		return summary, err
	}

	log.Infof("Compliance scan finished: %d habits, %d records created, %d records failed, %d cascades",
		summary.HabitsScanned, summary.RecordsCreated, summary.RecordsFailed, summary.CascadesApplied)
	return summary, nil
}

// scanHabit evaluates one habit's elapsed periods and records shortfalls.
// Returns the number of missed-period records created.
func (s *Service) scanHabit(habit *models.Habit, now time.Time) (int, error) {
	periods, err := compliance.PeriodsToEvaluate(habit.FrequencyUnit, habit.FrequencyValue,
		habit.StartDate, habit.EndDate, now, s.config.WeekStart)
	if err != nil {
		return 0, err
	}
	if len(periods) == 0 {
		return 0, nil
	}

	// One candidate list per habit: drop periods already recorded. The
	// unique constraint below remains the real idempotency guard; this
	// check just avoids pointless evaluation.
	candidates := periods[:0]
	for _, p := range periods {
		exists, err := s.store.MissedPeriodExists(habit.ID, p.Start, p.End)
		if err != nil {
			return 0, err
		}
		if !exists {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	// Load the habit's check-ins once for the covering window.
	checkins, err := s.store.ListCheckIns(habit.ID, candidates[0].Start, candidates[len(candidates)-1].End)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, p := range candidates {
		verdict := compliance.Evaluate(habit.FrequencyValue, p, checkins)
		if verdict.Compliant {
			continue
		}
		rec := &models.MissedPeriodRecord{
			HabitID:          habit.ID,
			PeriodStart:      p.Start,
			PeriodEnd:        p.End,
			RequiredCheckins: verdict.Required,
			ActualCheckins:   verdict.Actual,
			Status:           models.RecordPending,
			GraceDeadline:    now.Add(s.config.GraceWindow),
		}
		inserted, err := s.store.CreateMissedPeriod(rec)
		if err != nil {
			return created, err
		}
		if inserted {
			created++
			s.log.Infof("Missed period recorded for habit %d: %s to %s (%d/%d check-ins)",
				habit.ID, p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"),
				verdict.Actual, verdict.Required)
		}
	}
	return created, nil
}

// sweepExpired fails every pending record whose grace deadline has passed
// and applies the forfeiture cascade. A record resolved concurrently by the
// user loses nothing: the guarded transition makes the sweep a no-op for it.
func (s *Service) sweepExpired(log *logrus.Entry, summary *models.ScanSummary, now time.Time) error {
	expired, err := s.store.ListExpiredPending(now)
	if err != nil {
		return err
	}

	notified := make(map[int64]bool)
	for i := range expired {
		rec := &expired[i]
		applied, err := s.store.FailRecordAndCascade(rec.ID, rec.HabitID, now)
		if err != nil {
			log.Errorf("Failed to cascade record %d: %v", rec.ID, err)
			summary.Errors = append(summary.Errors, models.ScanError{HabitID: rec.HabitID, Error: err.Error()})
			continue
		}
		if !applied {
			// Already resolved by a concurrent caller.
			continue
		}
		summary.RecordsFailed++
		summary.CascadesApplied++
		log.Infof("Grace period expired for record %d: habit %d failed", rec.ID, rec.HabitID)
		if !notified[rec.HabitID] {
			notified[rec.HabitID] = true
			s.notifyForfeiture(rec.HabitID)
		}
	}
	return nil
}

// notifyForfeiture sends the forfeiture notice, best-effort.
func (s *Service) notifyForfeiture(habitID int64) {
	if s.notifier == nil {
		return
	}
	habit, err := s.store.GetHabit(habitID)
	if err != nil {
		s.log.Errorf("Failed to load habit %d for forfeiture notice: %v", habitID, err)
		return
	}
	user, err := s.store.GetUser(habit.UserID)
	if err != nil {
		s.log.Errorf("Failed to load user %d for forfeiture notice: %v", habit.UserID, err)
		return
	}
	amount := 0.0
	if stake, err := s.store.GetStakeByHabit(habitID); err == nil && stake.Status == models.StakeForfeited {
		amount = stake.Amount
	}
	if err := s.notifier.SendForfeitureNotice(user.Email, user.Username, habit.Title, amount); err != nil {
		s.log.Errorf("Failed to send forfeiture notice to %s: %v", user.Email, err)
	}
}
