package models

import "time"

// StakeStatus is the lifecycle state of a stake.
type StakeStatus string

const (
	StakePending   StakeStatus = "pending"
	StakeActive    StakeStatus = "active"
	StakeForfeited StakeStatus = "forfeited"
	StakeCancelled StakeStatus = "cancelled"
	StakeCompleted StakeStatus = "completed"
)

var stakeTransitions = map[StakeStatus][]StakeStatus{
	StakePending: {StakeActive, StakeForfeited, StakeCancelled},
	StakeActive:  {StakeForfeited, StakeCancelled, StakeCompleted},
}

// CanTransitionTo reports whether moving to next is legal from s.
func (s StakeStatus) CanTransitionTo(next StakeStatus) bool {
	for _, t := range stakeTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s is a terminal stake state.
func (s StakeStatus) Terminal() bool {
	return len(stakeTransitions[s]) == 0
}

// PaymentStatus tracks a payment through the billing collaborator.
// It only ever advances pending -> processing -> {paid | failed}.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentPaid       PaymentStatus = "paid"
	PaymentFailed     PaymentStatus = "failed"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:    {PaymentProcessing},
	PaymentProcessing: {PaymentPaid, PaymentFailed},
}

// CanAdvanceTo reports whether moving to next is legal from p.
func (p PaymentStatus) CanAdvanceTo(next PaymentStatus) bool {
	for _, t := range paymentTransitions[p] {
		if t == next {
			return true
		}
	}
	return false
}

// Stake is the monetary amount at risk for a habit. A stake belongs to
// exactly one habit and is forfeited when the habit fails.
type Stake struct {
	ID              int64         `json:"id"`
	HabitID         int64         `json:"habit_id"`
	Amount          float64       `json:"amount"`
	Status          StakeStatus   `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	TransactionDate *time.Time    `json:"transaction_date,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
