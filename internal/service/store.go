package service

import (
	"time"

	"github.com/Pavel2201/habit-stake/internal/models"
)

// Store is the persistence surface the service depends on. Implemented by
// repository.Repository; tests substitute an in-memory implementation.
//
// Transition methods (ResolveRecordComplete, FailRecordAndCascade,
// AdvanceObligationPayment) are conditional: they apply only when the entity
// is still in the expected current state and report applied = false
// otherwise, without error. That contract is what makes concurrent scan
// passes and user resolutions safe.
type Store interface {
	// Users
	CreateUser(*models.User) error
	FindUserByEmail(email string) (*models.User, error)
	GetUser(id int64) (*models.User, error)

	// Habits
	CreateHabit(*models.Habit) error
	GetHabit(id int64) (*models.Habit, error)
	ListActiveHabits() ([]models.Habit, error)

	// Stakes
	CreateStake(*models.Stake) error
	GetStakeByHabit(habitID int64) (*models.Stake, error)

	// Check-ins
	CreateCheckIn(*models.CheckIn) error
	ListCheckIns(habitID int64, from, to time.Time) ([]models.CheckIn, error)

	// Missed periods
	MissedPeriodExists(habitID int64, start, end time.Time) (bool, error)
	CreateMissedPeriod(*models.MissedPeriodRecord) (bool, error)
	GetMissedPeriod(id int64) (*models.MissedPeriodRecord, error)
	ListMissedPeriodsByHabit(habitID int64) ([]models.MissedPeriodRecord, error)
	ListExpiredPending(now time.Time) ([]models.MissedPeriodRecord, error)
	ResolveRecordComplete(rec *models.MissedPeriodRecord, backfill []time.Time, now time.Time) (bool, error)
	FailRecordAndCascade(recordID, habitID int64, now time.Time) (bool, error)

	// Payment obligations
	GetObligation(id int64) (*models.PaymentObligation, error)
	AdvanceObligationPayment(id int64, from, to models.PaymentStatus) (bool, error)
}

// Notifier sends user-facing notices about forfeiture outcomes. The send is
// best-effort: a failure is logged and never fails the cascade.
type Notifier interface {
	SendForfeitureNotice(to, username, habitTitle string, amount float64) error
}
