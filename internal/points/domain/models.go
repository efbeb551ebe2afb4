package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TransactionType enumerates the ledger entry whitelist.
type TransactionType string

const (
	TypeOrderPurchase   TransactionType = "order_purchase"
	TypeOrderRefund     TransactionType = "order_refund"
	TypeRedemption      TransactionType = "redemption"
	TypeAdminAdjustment TransactionType = "admin_adjustment"
	TypeReferralBonus   TransactionType = "referral_bonus"
)

// Valid reports whether the type is in the whitelist.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeOrderPurchase, TypeOrderRefund, TypeRedemption, TypeAdminAdjustment, TypeReferralBonus:
		return true
	default:
		return false
	}
}

// Order statuses delivered by the storefront collaborator.
const (
	OrderStatusCompleted  = "completed"
	OrderStatusProcessing = "processing"
	OrderStatusPending    = "pending"
	OrderStatusFailed     = "failed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// Metadata keys recorded on ledger rows. Metadata is write-once audit
// context and never reinterpreted by the engine, with one exception: the
// ratio migration reads order_total and role back to recompute
// purchase-derived points.
const (
	MetaOrderTotal     = "order_total"
	MetaCurrency       = "currency"
	MetaPointsRate     = "points_rate"
	MetaRole           = "role"
	MetaRefundFraction = "refund_fraction"
	MetaCartTotal      = "cart_total"
)

// PointsTransaction is one immutable row of the per-customer point
// ledger. The ledger is append-only; corrections are new offsetting
// rows, and only the ratio migration may rewrite history in bulk.
type PointsTransaction struct {
	ID           snowflake.ID      `gorm:"primaryKey"`
	CustomerID   snowflake.ID      `gorm:"not null;index"`
	OrderID      *snowflake.ID     `gorm:"index:ix_points_transactions_order"`
	Type         TransactionType   `gorm:"type:text;not null;index"`
	PointsAmount int64             `gorm:"not null"`
	Description  string            `gorm:"type:text;not null"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb"`
	BalanceAfter int64             `gorm:"not null"`
	CreatedAt    time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (PointsTransaction) TableName() string { return "points_transactions" }

// OrderEvent is the order-completion payload consumed from the storefront.
type OrderEvent struct {
	OrderID    snowflake.ID
	CustomerID snowflake.ID
	Status     string
	Total      decimal.Decimal
	TaxTotal   decimal.Decimal
	Currency   string
	Roles      []string
}

// AddTransactionRequest appends one manual ledger entry.
type AddTransactionRequest struct {
	CustomerID   snowflake.ID
	OrderID      *snowflake.ID
	Type         TransactionType
	PointsAmount int64
	Description  string
	Metadata     map[string]any
}

// RedemptionRequest carries the staged "points to redeem" value from the
// checkout session together with the cart it applies to.
type RedemptionRequest struct {
	OrderID      snowflake.ID
	CustomerID   snowflake.ID
	CartTotal    decimal.Decimal
	StagedPoints int64
}

// Redemption reports an applied redemption.
type Redemption struct {
	TransactionID snowflake.ID
	Points        int64
	Discount      decimal.Decimal
	BalanceAfter  int64
}

// AllocationResult reports an order point allocation. Credited is false
// when the order was already allocated and the call was a no-op.
type AllocationResult struct {
	TransactionID snowflake.ID
	Credited      bool
	Points        int64
	BalanceAfter  int64
}

// RefundRequest debits points after a monetary refund. RefundedAmount is
// compared against the originally credited order total to derive the
// refunded fraction.
type RefundRequest struct {
	OrderID        snowflake.ID
	RefundedAmount decimal.Decimal
}

// RefundResult reports a refund debit. Debited is false when the order
// never had points allocated or was already refunded.
type RefundResult struct {
	TransactionID snowflake.ID
	Debited       bool
	Points        int64
	BalanceAfter  int64
}
