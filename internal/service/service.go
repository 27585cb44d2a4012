package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Pavel2201/habit-stake/internal/config"
	"github.com/Pavel2201/habit-stake/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// Service handles business logic
type Service struct {
	store    Store
	log      *logrus.Logger
	config   *config.Config
	notifier Notifier
}

// NewService initializes a new service. notifier may be nil, in which case
// forfeiture notices are skipped.
func NewService(store Store, log *logrus.Logger, cfg *config.Config, notifier Notifier) *Service {
	return &Service{store: store, log: log, config: cfg, notifier: notifier}
}

// Register creates a new user with hashed password
func (s *Service) Register(username, email, password string) (*models.User, error) {
	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashedPassword),
	}

	if err := s.store.CreateUser(user); err != nil {
		return nil, err
	}

	s.log.Infof("User registered: %s", user.Email)
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *Service) Login(email, password string) (string, error) {
	user, err := s.store.FindUserByEmail(email)
	if err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", fmt.Errorf("invalid credentials")
	}

	// Generate JWT
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   fmt.Sprintf("%d", user.ID),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
	})
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User logged in: %s", user.Email)
	return tokenString, nil
}

// CreateHabit creates a new habit for the authenticated user, with an
// optional monetary stake.
func (s *Service) CreateHabit(ctx context.Context, title string, unit models.FrequencyUnit, value int, startDate time.Time, endDate *time.Time, stakeAmount *float64) (*models.Habit, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	if !unit.Valid() {
		return nil, fmt.Errorf("invalid frequency unit: %q", unit)
	}
	if value <= 0 {
		return nil, fmt.Errorf("invalid frequency value: %d", value)
	}
	if stakeAmount != nil && *stakeAmount <= 0 {
		return nil, fmt.Errorf("invalid stake amount: %.2f", *stakeAmount)
	}

	habit := &models.Habit{
		UserID:         userID,
		Title:          title,
		FrequencyUnit:  unit,
		FrequencyValue: value,
		StartDate:      startDate,
		EndDate:        endDate,
		Status:         models.HabitActive,
	}
	if err := s.store.CreateHabit(habit); err != nil {
		return nil, err
	}

	if stakeAmount != nil {
		stake := &models.Stake{
			HabitID:       habit.ID,
			Amount:        *stakeAmount,
			Status:        models.StakePending,
			PaymentStatus: models.PaymentPending,
		}
		if err := s.store.CreateStake(stake); err != nil {
			return nil, err
		}
		s.log.Infof("Stake of %.2f created for habit %d", stake.Amount, habit.ID)
	}

	s.log.Infof("Habit created for user %d: %s", userID, habit.Title)
	return habit, nil
}

// SubmitCheckIn records a manual check-in for one of the user's habits
func (s *Service) SubmitCheckIn(ctx context.Context, habitID int64, completedAt time.Time, success bool, proofURL *string) (*models.CheckIn, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	habit, err := s.store.GetHabit(habitID)
	if err != nil {
		return nil, err
	}
	if habit.UserID != userID {
		return nil, models.ErrForbidden
	}
	if habit.Status != models.HabitActive {
		return nil, fmt.Errorf("habit %d is not active", habitID)
	}

	checkin := &models.CheckIn{
		HabitID:     habitID,
		CompletedAt: completedAt,
		Success:     success,
		ProofURL:    proofURL,
	}
	if err := s.store.CreateCheckIn(checkin); err != nil {
		return nil, err
	}

	s.log.Infof("Check-in recorded for habit %d at %s", habitID, completedAt.Format(time.RFC3339))
	return checkin, nil
}

// ListMissedPeriods returns all missed-period records of one of the user's
// habits, for the dashboard to read.
func (s *Service) ListMissedPeriods(ctx context.Context, habitID int64) ([]models.MissedPeriodRecord, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	habit, err := s.store.GetHabit(habitID)
	if err != nil {
		return nil, err
	}
	if habit.UserID != userID {
		return nil, models.ErrForbidden
	}

	return s.store.ListMissedPeriodsByHabit(habitID)
}

// AdvancePayment is the billing collaborator's callback: it advances a
// payment obligation along pending -> processing -> {paid | failed}. An
// obligation that already left the expected status is a conflict.
func (s *Service) AdvancePayment(id int64, to models.PaymentStatus) (*models.PaymentObligation, error) {
	ob, err := s.store.GetObligation(id)
	if err != nil {
		return nil, err
	}
	if !ob.PaymentStatus.CanAdvanceTo(to) {
		return nil, fmt.Errorf("illegal payment transition %s -> %s", ob.PaymentStatus, to)
	}

	applied, err := s.store.AdvanceObligationPayment(id, ob.PaymentStatus, to)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, fmt.Errorf("payment obligation %d changed concurrently", id)
	}

	s.log.Infof("Payment obligation %d advanced to %s", id, to)
	return s.store.GetObligation(id)
}

func userIDFromContext(ctx context.Context) (int64, error) {
	userIDStr, ok := ctx.Value("userID").(string)
	if !ok || userIDStr == "" {
		return 0, fmt.Errorf("user ID not found in context")
	}
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user ID: %w", err)
	}
	return userID, nil
}
