package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Order carries the completed-order facts the commission pipeline needs.
type Order struct {
	OrderID  snowflake.ID
	Total    decimal.Decimal
	TaxTotal decimal.Decimal
	PlacedAt time.Time
}

// NetAmount is the taxed-out order amount every percentage term applies to.
func (o Order) NetAmount() decimal.Decimal {
	net := o.Total.Sub(o.TaxTotal)
	if net.Sign() < 0 {
		return decimal.Zero
	}
	return net
}

// CommissionBreakdown itemizes one commission calculation. Each term is
// computed independently and rounded before summing so every field stays
// individually reproducible for audit. TotalAmount is always the
// arithmetic sum of the seven terms, never computed any other way.
type CommissionBreakdown struct {
	BaseCommission decimal.Decimal `json:"base_commission"`
	LoyaltyBonus   decimal.Decimal `json:"loyalty_bonus"`
	RetentionBonus decimal.Decimal `json:"retention_bonus"`
	NetworkBonus   decimal.Decimal `json:"network_bonus"`
	TierBonus      decimal.Decimal `json:"tier_bonus"`
	SeasonalBonus  decimal.Decimal `json:"seasonal_bonus"`
	WeekendBonus   decimal.Decimal `json:"weekend_bonus"`
	TotalAmount    decimal.Decimal `json:"total_amount"`

	// Audit context: the inputs the terms were derived from.
	CoachTier     string `json:"coach_tier"`
	PurchaseCount int    `json:"purchase_count"`
	ReferralCount int64  `json:"referral_count"`
	Seasons       int    `json:"seasons"`
}

// Sum recomputes the total from the seven terms.
func (b CommissionBreakdown) Sum() decimal.Decimal {
	return b.BaseCommission.
		Add(b.LoyaltyBonus).
		Add(b.RetentionBonus).
		Add(b.NetworkBonus).
		Add(b.TierBonus).
		Add(b.SeasonalBonus).
		Add(b.WeekendBonus)
}
