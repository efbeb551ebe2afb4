package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service exposes the referral read side the commission engine needs.
type Service interface {
	ReferralCount(ctx context.Context, coachID snowflake.ID) (int64, error)
	PurchaseCountWithReferrer(ctx context.Context, customerID, coachID snowflake.ID) (int, error)
	SeasonsWithReferrer(ctx context.Context, customerID, coachID snowflake.ID) (int, error)
}

var (
	ErrInvalidCoach    = errors.New("invalid_coach")
	ErrInvalidCustomer = errors.New("invalid_customer")
)
