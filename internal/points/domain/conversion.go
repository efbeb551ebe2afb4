package domain

import "github.com/shopspring/decimal"

// CalculatePointsFromAmount converts a monetary amount into points at the
// given rate, where rate is "currency units per 1 point". The result is
// floored, never rounded: floor keeps sequential and single-batch
// conversions in exact agreement and never over-credits. A non-positive
// amount earns zero points; a non-positive rate is a configuration error.
func CalculatePointsFromAmount(amount decimal.Decimal, rate int64) (int64, error) {
	if rate <= 0 {
		return 0, ErrInvalidRate
	}
	if amount.Sign() <= 0 {
		return 0, nil
	}
	return amount.Div(decimal.NewFromInt(rate)).Floor().IntPart(), nil
}

// CalculateDiscountFromPoints maps points onto a checkout discount at the
// fixed 1:1 rate (1 point = 1 currency unit).
func CalculateDiscountFromPoints(points int64) decimal.Decimal {
	if points <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(points)
}

// CalculatePointsFromDiscount maps a discount amount back onto points at
// the same fixed 1:1 rate, flooring away any fractional remainder.
func CalculatePointsFromDiscount(amount decimal.Decimal) int64 {
	if amount.Sign() <= 0 {
		return 0
	}
	return amount.Floor().IntPart()
}
