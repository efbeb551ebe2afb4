package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service computes referral commissions for completed orders.
type Service interface {
	CalculateTotalCommission(ctx context.Context, order Order, coachID, customerID snowflake.ID) (*CommissionBreakdown, error)
}

var (
	ErrInvalidOrder    = errors.New("invalid_order")
	ErrInvalidCoach    = errors.New("invalid_coach")
	ErrInvalidCustomer = errors.New("invalid_customer")
)
