package service

import (
	"time"

	"github.com/shopspring/decimal"
	commissiondomain "github.com/smallbiznis/rewardly/internal/commission/domain"
	rateconfigdomain "github.com/smallbiznis/rewardly/internal/rateconfig/domain"
)

// Every term rounds to the currency minor unit before summing, so the
// stored breakdown fields stay independently reproducible.
const currencyScale = 2

func round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(currencyScale)
}

// BaseCommission pays a percentage of the taxed-out order amount. The
// rate declines across the 1st / 2nd / 3rd-and-beyond purchase buckets;
// there is no 4th distinct rate.
func BaseCommission(snap rateconfigdomain.Snapshot, order commissiondomain.Order, purchaseCount int) decimal.Decimal {
	return round(order.NetAmount().Mul(snap.BaseRate(purchaseCount)))
}

// LoyaltyBonus mirrors the base-commission buckets with the curve
// inverted: the percentage rises with purchase count, partially
// offsetting the declining base rate to reward customer retention.
func LoyaltyBonus(snap rateconfigdomain.Snapshot, order commissiondomain.Order, purchaseCount int) decimal.Decimal {
	return round(order.NetAmount().Mul(snap.LoyaltyRate(purchaseCount)))
}

// TierBonus pays the coach's tier percentage of the base amount. The tier
// is always resolved fresh from the current referral count, never stored
// on the coach.
func TierBonus(tier rateconfigdomain.Tier, baseAmount decimal.Decimal) decimal.Decimal {
	return round(baseAmount.Mul(tier.BonusPercent))
}

// RetentionBonus pays a fixed amount once a customer returns for a second
// season with the same referrer, and a larger one from the third season on.
func RetentionBonus(snap rateconfigdomain.Snapshot, seasonsWithReferrer int) decimal.Decimal {
	switch {
	case seasonsWithReferrer <= 1:
		return decimal.Zero
	case seasonsWithReferrer == 2:
		return round(snap.RetentionSecondSeason)
	default:
		return round(snap.RetentionThirdSeason)
	}
}

// NetworkBonus pays a fixed amount per personal referral beyond the
// configured minimum, zero below it.
func NetworkBonus(snap rateconfigdomain.Snapshot, referralCount int64) decimal.Decimal {
	if referralCount <= snap.NetworkMinReferrals {
		return decimal.Zero
	}
	extra := referralCount - snap.NetworkMinReferrals
	return round(snap.NetworkBonusPerReferral.Mul(decimal.NewFromInt(extra)))
}

// SeasonalBonus pays the percentage of the named season window containing
// the order date; outside every window the regular season pays nothing.
func SeasonalBonus(snap rateconfigdomain.Snapshot, baseAmount decimal.Decimal, orderDate time.Time) decimal.Decimal {
	season := snap.SeasonFor(orderDate)
	if season == nil {
		return decimal.Zero
	}
	return round(baseAmount.Mul(season.BonusPercent))
}

// WeekendBonus pays a flat percentage on Saturday and Sunday orders.
func WeekendBonus(snap rateconfigdomain.Snapshot, baseAmount decimal.Decimal, orderDate time.Time) decimal.Decimal {
	switch orderDate.Weekday() {
	case time.Saturday, time.Sunday:
		return round(baseAmount.Mul(snap.WeekendPercent))
	default:
		return decimal.Zero
	}
}
