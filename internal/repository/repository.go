package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Pavel2201/habit-stake/internal/models"
)

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser creates a new user in the database
func (r *Repository) CreateUser(user *models.User) error {
	query := `
		INSERT INTO habit.users (username, email, password_hash, created_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRow(query, user.Username, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByEmail retrieves a user by email
func (r *Repository) FindUserByEmail(email string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, username, email, password_hash, created_at
		FROM habit.users
		WHERE email = $1`
	err := r.db.QueryRow(query, email).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user by ID
func (r *Repository) GetUser(id int64) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, username, email, password_hash, created_at
		FROM habit.users
		WHERE id = $1`
	err := r.db.QueryRow(query, id).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// CreateHabit creates a new habit in the database
func (r *Repository) CreateHabit(habit *models.Habit) error {
	query := `
		INSERT INTO habit.habits (user_id, title, frequency_unit, frequency_value, start_date, end_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(query, habit.UserID, habit.Title, habit.FrequencyUnit, habit.FrequencyValue,
		habit.StartDate, habit.EndDate, habit.Status).
		Scan(&habit.ID, &habit.CreatedAt, &habit.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create habit: %w", err)
	}
	return nil
}

// GetHabit retrieves a habit by ID
func (r *Repository) GetHabit(id int64) (*models.Habit, error) {
	habit := &models.Habit{}
	query := `
		SELECT id, user_id, title, frequency_unit, frequency_value, start_date, end_date, status, created_at, updated_at
		FROM habit.habits
		WHERE id = $1`
	err := r.db.QueryRow(query, id).
		Scan(&habit.ID, &habit.UserID, &habit.Title, &habit.FrequencyUnit, &habit.FrequencyValue,
			&habit.StartDate, &habit.EndDate, &habit.Status, &habit.CreatedAt, &habit.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get habit: %w", err)
	}
	return habit, nil
}

// ListActiveHabits retrieves all habits eligible for compliance evaluation
func (r *Repository) ListActiveHabits() ([]models.Habit, error) {
	query := `
		SELECT id, user_id, title, frequency_unit, frequency_value, start_date, end_date, status, created_at, updated_at
		FROM habit.habits
		WHERE status = $1
		ORDER BY id`
	rows, err := r.db.Query(query, models.HabitActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list active habits: %w", err)
	}
	defer rows.Close()

	var habits []models.Habit
	for rows.Next() {
		var h models.Habit
		if err := rows.Scan(&h.ID, &h.UserID, &h.Title, &h.FrequencyUnit, &h.FrequencyValue,
			&h.StartDate, &h.EndDate, &h.Status, &h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan habit: %w", err)
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate habits: %w", err)
	}
	return habits, nil
}

// CreateStake creates a new stake for a habit
func (r *Repository) CreateStake(stake *models.Stake) error {
	query := `
		INSERT INTO habit.stakes (habit_id, amount, status, payment_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(query, stake.HabitID, stake.Amount, stake.Status, stake.PaymentStatus).
		Scan(&stake.ID, &stake.CreatedAt, &stake.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create stake: %w", err)
	}
	return nil
}

// GetStakeByHabit retrieves the stake bound to a habit, if any
func (r *Repository) GetStakeByHabit(habitID int64) (*models.Stake, error) {
	stake := &models.Stake{}
	query := `
		SELECT id, habit_id, amount, status, payment_status, transaction_date, created_at, updated_at
		FROM habit.stakes
		WHERE habit_id = $1`
	err := r.db.QueryRow(query, habitID).
		Scan(&stake.ID, &stake.HabitID, &stake.Amount, &stake.Status, &stake.PaymentStatus,
			&stake.TransactionDate, &stake.CreatedAt, &stake.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stake: %w", err)
	}
	return stake, nil
}

// CreateCheckIn creates a new check-in for a habit
func (r *Repository) CreateCheckIn(checkin *models.CheckIn) error {
	query := `
		INSERT INTO habit.checkins (habit_id, completed_at, success, proof_url, verified, backfilled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, CURRENT_TIMESTAMP)
		RETURNING id, created_at`
	err := r.db.QueryRow(query, checkin.HabitID, checkin.CompletedAt, checkin.Success,
		checkin.ProofURL, checkin.Verified, checkin.Backfilled).
		Scan(&checkin.ID, &checkin.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create check-in: %w", err)
	}
	return nil
}

// ListCheckIns retrieves a habit's check-ins with completed_at in [from, to)
func (r *Repository) ListCheckIns(habitID int64, from, to time.Time) ([]models.CheckIn, error) {
	query := `
		SELECT id, habit_id, completed_at, success, proof_url, verified, backfilled, created_at
		FROM habit.checkins
		WHERE habit_id = $1 AND completed_at >= $2 AND completed_at < $3
		ORDER BY completed_at`
	rows, err := r.db.Query(query, habitID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	defer rows.Close()

	var checkins []models.CheckIn
	for rows.Next() {
		var c models.CheckIn
		if err := rows.Scan(&c.ID, &c.HabitID, &c.CompletedAt, &c.Success,
			&c.ProofURL, &c.Verified, &c.Backfilled, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		checkins = append(checkins, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate check-ins: %w", err)
	}
	return checkins, nil
}

// MissedPeriodExists reports whether a missed-period record already exists
// for the given (habit, period start, period end) key. This is an
// optimization: the unique constraint enforced in CreateMissedPeriod remains
// the correctness mechanism.
func (r *Repository) MissedPeriodExists(habitID int64, start, end time.Time) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM habit.missed_periods
			WHERE habit_id = $1 AND period_start = $2 AND period_end = $3
		)`
	if err := r.db.QueryRow(query, habitID, start, end).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check missed period: %w", err)
	}
	return exists, nil
}

// CreateMissedPeriod inserts a missed-period record. A conflict on the
// (habit_id, period_start, period_end) unique key is a successful no-op and
// returns created = false.
func (r *Repository) CreateMissedPeriod(rec *models.MissedPeriodRecord) (bool, error) {
	query := `
		INSERT INTO habit.missed_periods
			(habit_id, period_start, period_end, required_checkins, actual_checkins, status, grace_deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (habit_id, period_start, period_end) DO NOTHING
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(query, rec.HabitID, rec.PeriodStart, rec.PeriodEnd,
		rec.RequiredCheckins, rec.ActualCheckins, rec.Status, rec.GraceDeadline).
		Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create missed period: %w", err)
	}
	return true, nil
}

// GetMissedPeriod retrieves a missed-period record by ID
func (r *Repository) GetMissedPeriod(id int64) (*models.MissedPeriodRecord, error) {
	rec := &models.MissedPeriodRecord{}
	query := `
		SELECT id, habit_id, period_start, period_end, required_checkins, actual_checkins, status, grace_deadline, resolved_at, created_at, updated_at
		FROM habit.missed_periods
		WHERE id = $1`
	err := r.db.QueryRow(query, id).
		Scan(&rec.ID, &rec.HabitID, &rec.PeriodStart, &rec.PeriodEnd, &rec.RequiredCheckins,
			&rec.ActualCheckins, &rec.Status, &rec.GraceDeadline, &rec.ResolvedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get missed period: %w", err)
	}
	return rec, nil
}

// ListMissedPeriodsByHabit retrieves all missed-period records for a habit
func (r *Repository) ListMissedPeriodsByHabit(habitID int64) ([]models.MissedPeriodRecord, error) {
	query := `
		SELECT id, habit_id, period_start, period_end, required_checkins, actual_checkins, status, grace_deadline, resolved_at, created_at, updated_at
		FROM habit.missed_periods
		WHERE habit_id = $1
		ORDER BY period_start`
	return r.queryMissedPeriods(query, habitID)
}

// ListExpiredPending retrieves pending records whose grace deadline has
// passed
func (r *Repository) ListExpiredPending(now time.Time) ([]models.MissedPeriodRecord, error) {
	query := `
		SELECT id, habit_id, period_start, period_end, required_checkins, actual_checkins, status, grace_deadline, resolved_at, created_at, updated_at
		FROM habit.missed_periods
		WHERE status = 'pending' AND grace_deadline < $1
		ORDER BY id`
	return r.queryMissedPeriods(query, now)
}

func (r *Repository) queryMissedPeriods(query string, args ...interface{}) ([]models.MissedPeriodRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list missed periods: %w", err)
	}
	defer rows.Close()

	var records []models.MissedPeriodRecord
	for rows.Next() {
		var rec models.MissedPeriodRecord
		if err := rows.Scan(&rec.ID, &rec.HabitID, &rec.PeriodStart, &rec.PeriodEnd,
			&rec.RequiredCheckins, &rec.ActualCheckins, &rec.Status, &rec.GraceDeadline,
			&rec.ResolvedAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan missed period: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate missed periods: %w", err)
	}
	return records, nil
}

// ResolveRecordComplete transitions a pending record to resolved_complete
// and backfills the owed check-ins, all in one transaction. Returns
// applied = false without error when the record is no longer pending.
func (r *Repository) ResolveRecordComplete(rec *models.MissedPeriodRecord, backfill []time.Time, now time.Time) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE habit.missed_periods
		SET status = $2, resolved_at = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = $3`,
		rec.ID, models.RecordResolvedComplete, models.RecordPending, now)
	if err != nil {
		return false, fmt.Errorf("failed to resolve missed period: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	for _, at := range backfill {
		if _, err := tx.Exec(`
			INSERT INTO habit.checkins (habit_id, completed_at, success, verified, backfilled, created_at)
			VALUES ($1, $2, TRUE, FALSE, TRUE, CURRENT_TIMESTAMP)`,
			rec.HabitID, at); err != nil {
			return false, fmt.Errorf("failed to backfill check-in: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit resolution: %w", err)
	}
	return true, nil
}

// FailRecordAndCascade transitions a pending record to failed and applies
// the forfeiture cascade in the same transaction: habit -> failed, stake ->
// forfeited with a pending payment, and a payment obligation upserted with
// the stake's amount read at this instant. The guarded record update is the
// gate: if a concurrent caller already resolved the record, nothing is
// written and applied = false is returned. A mid-cascade failure rolls the
// record back to pending so the next pass retries the whole cascade.
func (r *Repository) FailRecordAndCascade(recordID, habitID int64, now time.Time) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE habit.missed_periods
		SET status = $2, resolved_at = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND status = $3`,
		recordID, models.RecordFailed, models.RecordPending, now)
	if err != nil {
		return false, fmt.Errorf("failed to fail missed period: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	// Only an active habit may move to failed; a habit already completed or
	// archived keeps its terminal status.
	var habitStatus models.HabitStatus
	if err := tx.QueryRow(`SELECT status FROM habit.habits WHERE id = $1`, habitID).
		Scan(&habitStatus); err != nil {
		return false, fmt.Errorf("failed to load habit status: %w", err)
	}
	if habitStatus.CanTransitionTo(models.HabitFailed) {
		if _, err := tx.Exec(`
			UPDATE habit.habits
			SET status = $2, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1 AND status = $3`,
			habitID, models.HabitFailed, habitStatus); err != nil {
			return false, fmt.Errorf("failed to mark habit failed: %w", err)
		}
	}

	var stakeID int64
	var amount float64
	var stakeStatus models.StakeStatus
	err = tx.QueryRow(`SELECT id, amount, status FROM habit.stakes WHERE habit_id = $1`, habitID).
		Scan(&stakeID, &amount, &stakeStatus)
	if err == sql.ErrNoRows {
		// No stake bound to the habit: nothing to forfeit.
		if err := tx.Commit(); err != nil {
			return false, fmt.Errorf("failed to commit cascade: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load stake: %w", err)
	}

	forfeited := false
	if stakeStatus.CanTransitionTo(models.StakeForfeited) {
		res, err := tx.Exec(`
			UPDATE habit.stakes
			SET status = $2, payment_status = $3, transaction_date = $4, updated_at = CURRENT_TIMESTAMP
			WHERE id = $1 AND status = $5`,
			stakeID, models.StakeForfeited, models.PaymentPending, now, stakeStatus)
		if err != nil {
			return false, fmt.Errorf("failed to forfeit stake: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to read rows affected: %w", err)
		}
		forfeited = n == 1
	}

	// An obligation exists only for a forfeited stake. A stake the billing
	// collaborator already cancelled or completed is no longer at risk and
	// must never be charged.
	if forfeited || stakeStatus == models.StakeForfeited {
		if _, err := tx.Exec(`
			INSERT INTO habit.payment_obligations (stake_id, habit_id, amount, payment_status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
			ON CONFLICT (stake_id, habit_id) DO UPDATE
			SET amount = EXCLUDED.amount, updated_at = CURRENT_TIMESTAMP
			WHERE habit.payment_obligations.payment_status = $4`,
			stakeID, habitID, amount, models.PaymentPending); err != nil {
			return false, fmt.Errorf("failed to upsert payment obligation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit cascade: %w", err)
	}
	return true, nil
}

// AdvanceObligationPayment advances a payment obligation from one payment
// status to the next and mirrors the change onto the owning stake. Returns
// applied = false when the obligation is not currently in the expected
// status.
func (r *Repository) AdvanceObligationPayment(id int64, from, to models.PaymentStatus) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE habit.payment_obligations
		SET payment_status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND payment_status = $3`,
		id, to, from)
	if err != nil {
		return false, fmt.Errorf("failed to advance payment obligation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if _, err := tx.Exec(`
		UPDATE habit.stakes
		SET payment_status = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = (SELECT stake_id FROM habit.payment_obligations WHERE id = $1) AND payment_status = $3`,
		id, to, from); err != nil {
		return false, fmt.Errorf("failed to mirror payment status to stake: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit payment advance: %w", err)
	}
	return true, nil
}

// GetObligation retrieves a payment obligation by ID
func (r *Repository) GetObligation(id int64) (*models.PaymentObligation, error) {
	ob := &models.PaymentObligation{}
	query := `
		SELECT id, stake_id, habit_id, amount, payment_status, created_at, updated_at
		FROM habit.payment_obligations
		WHERE id = $1`
	err := r.db.QueryRow(query, id).
		Scan(&ob.ID, &ob.StakeID, &ob.HabitID, &ob.Amount, &ob.PaymentStatus, &ob.CreatedAt, &ob.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment obligation: %w", err)
	}
	return ob, nil
}
