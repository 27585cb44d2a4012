package models

import "time"

// PaymentObligation records the amount owed after a stake is forfeited.
// Created by the forfeiture cascade; the billing collaborator advances its
// payment status and reports the result back. One obligation exists per
// (stake, habit) pair.
type PaymentObligation struct {
	ID            int64         `json:"id"`
	StakeID       int64         `json:"stake_id"`
	HabitID       int64         `json:"habit_id"`
	Amount        float64       `json:"amount"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
