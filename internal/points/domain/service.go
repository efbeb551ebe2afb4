package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Service is the points engine: every balance read and every ledger write
// goes through it.
type Service interface {
	GetPointsBalance(ctx context.Context, customerID snowflake.ID) (int64, error)
	GetTransactions(ctx context.Context, customerID snowflake.ID, limit int) ([]PointsTransaction, error)
	AddPointsTransaction(ctx context.Context, req AddTransactionRequest) (snowflake.ID, error)

	CanRedeemPoints(ctx context.Context, customerID snowflake.ID, requestedPoints int64, cartTotal decimal.Decimal) (bool, error)
	GetMaxRedeemablePoints(ctx context.Context, customerID snowflake.ID, cartTotal decimal.Decimal) (int64, error)
	ProcessPointsRedemption(ctx context.Context, req RedemptionRequest) (*Redemption, error)

	AllocatePointsForOrder(ctx context.Context, order OrderEvent) (*AllocationResult, error)
	DeductPointsForRefund(ctx context.Context, req RefundRequest) (*RefundResult, error)
}

var (
	ErrInvalidCustomer          = errors.New("invalid_customer")
	ErrInvalidOrder             = errors.New("invalid_order")
	ErrInvalidRate              = errors.New("invalid_rate")
	ErrInvalidPoints            = errors.New("invalid_points")
	ErrInvalidTransactionType   = errors.New("invalid_transaction_type")
	ErrInsufficientBalance      = errors.New("insufficient_balance")
	ErrExceedsCartTotal         = errors.New("exceeds_cart_total")
	ErrNegativeBalanceViolation = errors.New("negative_balance_violation")
	ErrOrderNotEligible         = errors.New("order_not_eligible")
)
