package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/Pavel2201/habit-stake/internal/config"
	"github.com/Pavel2201/habit-stake/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(store Store) (*Service, *fakeNotifier) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cfg := &config.Config{
		JWTSecret:    "secret",
		GraceWindow:  24 * time.Hour,
		WeekStart:    time.Monday,
		ScanSchedule: "0 * * * *",
	}
	notifier := &fakeNotifier{}
	return NewService(store, logger, cfg, notifier), notifier
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func userCtx(id string) context.Context {
	return context.WithValue(context.Background(), "userID", id)
}

// seedHabit creates a user, an active habit and optionally a pending stake
// directly in the fake store.
func seedHabit(t *testing.T, f *fakeStore, unit models.FrequencyUnit, value int, start time.Time, stakeAmount float64) *models.Habit {
	t.Helper()
	user := &models.User{Username: "ivan", Email: "ivan@example.com", PasswordHash: "x"}
	require.NoError(t, f.CreateUser(user))

	habit := &models.Habit{
		UserID:         user.ID,
		Title:          "morning run",
		FrequencyUnit:  unit,
		FrequencyValue: value,
		StartDate:      start,
		Status:         models.HabitActive,
	}
	require.NoError(t, f.CreateHabit(habit))

	if stakeAmount > 0 {
		stake := &models.Stake{
			HabitID:       habit.ID,
			Amount:        stakeAmount,
			Status:        models.StakePending,
			PaymentStatus: models.PaymentPending,
		}
		require.NoError(t, f.CreateStake(stake))
	}
	return habit
}

func TestRunScan_PeriodCompleteness(t *testing.T) {
	f := newFakeStore()
	svc, _ := newTestService(f)
	habit := seedHabit(t, f, models.FrequencyDay, 1, date(2025, 3, 1), 0)

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	summary, err := svc.RunScan(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.HabitsScanned)
	assert.Equal(t, 9, summary.RecordsCreated)
	assert.Empty(t, summary.Errors)

	records, err := f.ListMissedPeriodsByHabit(habit.ID)
	require.NoError(t, err)
	require.Len(t, records, 9)
	for _, rec := range records {
		assert.Equal(t, models.RecordPending, rec.Status)
		assert.Equal(t, 1, rec.RequiredCheckins)
		assert.Equal(t, 0, rec.ActualCheckins)
		assert.Equal(t, now.Add(24*time.Hour), rec.GraceDeadline)
	}
}

func TestRunScan_Idempotent(t *testing.T) {
	f := newFakeStore()
	svc, notifier := newTestService(f)
	habit := seedHabit(t, f, models.FrequencyDay, 1, date(2025, 3, 1), 0)

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	first, err := svc.RunScan(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 9, first.RecordsCreated)

	second, err := svc.RunScan(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, second.RecordsCreated)
	assert.Equal(t, 0, second.CascadesApplied)

	records, err := f.ListMissedPeriodsByHabit(habit.ID)
	require.NoError(t, err)
	assert.Len(t, records, 9)
	assert.Equal(t, 0, notifier.count())
}

func TestRunScan_CompliantPeriodsProduceNoRecords(t *testing.T) {
	f := newFakeStore()
	svc, _ := newTestService(f)
	habit := seedHabit(t, f, models.FrequencyWeek, 3, date(2025, 1, 6), 0)

	// Three successful check-ins in the first week, two in the second.
	for _, at := range []time.Time{
		date(2025, 1, 6).Add(9 * time.Hour),
		date(2025, 1, 8).Add(9 * time.Hour),
		date(2025, 1, 11).Add(9 * time.Hour),
		date(2025, 1, 14).Add(9 * time.Hour),
		date(2025, 1, 16).Add(9 * time.Hour),
	} {
		require.NoError(t, f.CreateCheckIn(&models.CheckIn{HabitID: habit.ID, CompletedAt: at, Success: true}))
	}

	now := time.Date(2025, 1, 21, 6, 0, 0, 0, time.UTC)
	summary, err := svc.RunScan(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.RecordsCreated)

	records, err := f.ListMissedPeriodsByHabit(habit.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, date(2025, 1, 13), records[0].PeriodStart)
	assert.Equal(t, 3, records[0].RequiredCheckins)
	assert.Equal(t, 2, records[0].ActualCheckins)
}

func TestRunScan_OneHabitErrorDoesNotAbortBatch(t *testing.T) {
	f := newFakeStore()
	svc, _ := newTestService(f)

	// Malformed frequency configuration seeded directly.
	broken := seedHabit(t, f, models.FrequencyDay, 1, date(2025, 3, 1), 0)
	f.mu.Lock()
	f.habits[broken.ID].FrequencyValue = 0
	f.mu.Unlock()

	good := seedHabit(t, f, models.FrequencyDay, 1, date(2025, 3, 8), 0)

	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	summary, err := svc.RunScan(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.HabitsScanned)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, broken.ID, summary.Errors[0].HabitID)

	records, err := f.ListMissedPeriodsByHabit(good.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRunScan_EndToEndForfeiture(t *testing.T) {
	f := newFakeStore()
	svc, notifier := newTestService(f)

	// Daily habit, started 5 days ago, zero check-ins, $20 stake.
	habit := seedHabit(t, f, models.FrequencyDay, 1, date(2025, 6, 2), 20)

	now := time.Date(2025, 6, 6, 12, 0, 0, 0, time.UTC)
	first, err := svc.RunScan(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 4, first.RecordsCreated)
	assert.Equal(t, 0, first.CascadesApplied)

	// All grace periods lapse.
	later := now.Add(26 * time.Hour)
	second, err := svc.RunScan(context.Background(), later)
	require.NoError(t, err)
	assert.Equal(t, 1, second.RecordsCreated) // June 6 elapsed in the meantime
	assert.Equal(t, 4, second.RecordsFailed)
	assert.Equal(t, 4, second.CascadesApplied)

	gotHabit, err := f.GetHabit(habit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HabitFailed, gotHabit.Status)

	stake, err := f.GetStakeByHabit(habit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StakeForfeited, stake.Status)
	assert.Equal(t, models.PaymentPending, stake.PaymentStatus)
	require.NotNil(t, stake.TransactionDate)

	obligations := f.obligationsFor(habit.ID)
	require.Len(t, obligations, 1)
	assert.Equal(t, 20.0, obligations[0].Amount)
	assert.Equal(t, models.PaymentPending, obligations[0].PaymentStatus)

	// One notice per habit per pass.
	assert.Equal(t, 1, notifier.count())

	// A third pass is a no-op: the habit is no longer active and no
	// pending record has expired.
	third, err := svc.RunScan(context.Background(), later.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, third.RecordsCreated)
	assert.Equal(t, 0, third.CascadesApplied)
	assert.Len(t, f.obligationsFor(habit.ID), 1)

	// Even after the leftover record's grace period lapses, the cascade
	// re-application changes nothing that is already terminal.
	fourth, err := svc.RunScan(context.Background(), later.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, fourth.CascadesApplied)
	assert.Len(t, f.obligationsFor(habit.ID), 1)
	assert.Equal(t, 20.0, f.obligationsFor(habit.ID)[0].Amount)
}

func TestRunScan_CancelledStakeIsNotCharged(t *testing.T) {
	f := newFakeStore()
	svc, _ := newTestService(f)
	habit := seedHabit(t, f, models.FrequencyDay, 1, date(2025, 6, 2), 20)

	// The billing collaborator cancelled the stake before the shortfall
	// was swept.
	f.mu.Lock()
	for _, s := range f.stakes {
		if s.HabitID == habit.ID {
			s.Status = models.StakeCancelled
		}
	}
	f.mu.Unlock()

	now := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	_, err := svc.RunScan(context.Background(), now)
	require.NoError(t, err)
	_, err = svc.RunScan(context.Background(), now.Add(25*time.Hour))
	require.NoError(t, err)

	// The habit still fails, but a stake no longer at risk keeps its
	// terminal status and never produces a payment obligation.
	gotHabit, err := f.GetHabit(habit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HabitFailed, gotHabit.Status)

	stake, err := f.GetStakeByHabit(habit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StakeCancelled, stake.Status)
	assert.Nil(t, stake.TransactionDate)
	assert.Empty(t, f.obligationsFor(habit.ID))
}

func TestRunScan_SweepPreservesTerminalHabitStatus(t *testing.T) {
	f := newFakeStore()
	svc, _ := newTestService(f)
	habit := seedHabit(t, f, models.FrequencyDay, 1, date(2025, 6, 2), 0)
	rec := seedRecord(t, f, habit.ID, date(2025, 6, 2), date(2025, 6, 3), 1, 0, date(2025, 6, 4))

	// The habit reached completed before the leftover record expired.
	f.mu.Lock()
	f.habits[habit.ID].Status = models.HabitCompleted
	f.mu.Unlock()

	_, err := svc.RunScan(context.Background(), date(2025, 6, 5))
	require.NoError(t, err)

	// Only active habits may move to failed.
	gotHabit, err := f.GetHabit(habit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HabitCompleted, gotHabit.Status)

	final, err := f.GetMissedPeriod(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RecordFailed, final.Status)
}

func TestRunScan_NoStakeHabitStillFails(t *testing.T) {
	f := newFakeStore()
	svc, _ := newTestService(f)
	habit := seedHabit(t, f, models.FrequencyDay, 1, date(2025, 6, 2), 0)

	now := time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC)
	_, err := svc.RunScan(context.Background(), now)
	require.NoError(t, err)

	_, err = svc.RunScan(context.Background(), now.Add(25*time.Hour))
	require.NoError(t, err)

	gotHabit, err := f.GetHabit(habit.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HabitFailed, gotHabit.Status)
	assert.Empty(t, f.obligationsFor(habit.ID))
}
