package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Referral links a customer to the coach who brought them in. Rows are
// written by the excluded roster/admin surface; this service only reads.
type Referral struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	CoachID    snowflake.ID `gorm:"not null;index"`
	CustomerID snowflake.ID `gorm:"not null;index"`
	CreatedAt  time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Referral) TableName() string { return "referrals" }

// ReferredOrder records one completed order attributed to a referral.
// Season is an opaque program-defined identifier supplied by the
// storefront; the engine never derives it from calendar dates.
type ReferredOrder struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	OrderID    snowflake.ID `gorm:"not null;uniqueIndex"`
	CoachID    snowflake.ID `gorm:"not null;index"`
	CustomerID snowflake.ID `gorm:"not null;index"`
	Season     string       `gorm:"type:text;not null"`
	CreatedAt  time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (ReferredOrder) TableName() string { return "referred_orders" }
