package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Tier is a resolved coach tier within a snapshot.
type Tier struct {
	Name         string
	Ordinal      int
	MinReferrals int64
	BonusPercent decimal.Decimal
}

// Season is a resolved season window within a snapshot.
type Season struct {
	Name         string
	StartMonth   int
	StartDay     int
	EndMonth     int
	EndDay       int
	BonusPercent decimal.Decimal
}

// Snapshot is the immutable rate/tier configuration handed to the points
// and commission engines per calculation. Engines never read ambient
// settings; the same snapshot always produces the same outputs.
type Snapshot struct {
	RoleRates    map[string]int64
	RolePriority []string

	// Index 0 is the first-purchase bucket, index 2 is 3rd-and-beyond.
	BaseRates    [3]decimal.Decimal
	LoyaltyRates [3]decimal.Decimal

	// Tiers sorted by ascending MinReferrals; index is the tier ordinal.
	Tiers []Tier

	Seasons []Season

	RetentionSecondSeason   decimal.Decimal
	RetentionThirdSeason    decimal.Decimal
	NetworkMinReferrals     int64
	NetworkBonusPerReferral decimal.Decimal
	WeekendPercent          decimal.Decimal

	LoadedAt time.Time
}

// ResolveRate picks the points rate for a customer holding the given
// roles, most generous role first per the fixed priority order. Unknown
// roles are ignored; a customer with no recognized role falls back to the
// base customer rate.
func (s Snapshot) ResolveRate(roles []string) (int64, string, error) {
	if len(s.RoleRates) == 0 {
		return 0, "", ErrSnapshotUnavailable
	}
	held := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		held[role] = struct{}{}
	}
	priority := s.RolePriority
	if len(priority) == 0 {
		priority = RolePriority
	}
	for _, role := range priority {
		if _, ok := held[role]; !ok {
			continue
		}
		rate, ok := s.RoleRates[role]
		if !ok {
			continue
		}
		if rate <= 0 {
			return 0, role, ErrInvalidRate
		}
		return rate, role, nil
	}
	rate, ok := s.RoleRates[RoleCustomer]
	if !ok {
		return 0, "", ErrUnknownRole
	}
	if rate <= 0 {
		return 0, RoleCustomer, ErrInvalidRate
	}
	return rate, RoleCustomer, nil
}

// RateForRole returns the configured rate for a single already-resolved role.
func (s Snapshot) RateForRole(role string) (int64, error) {
	rate, ok := s.RoleRates[role]
	if !ok {
		return 0, ErrUnknownRole
	}
	if rate <= 0 {
		return 0, ErrInvalidRate
	}
	return rate, nil
}

// bucketIndex maps a 1-based purchase count onto the three-bucket
// schedule; everything from the third purchase on shares one bucket.
func bucketIndex(purchaseCount int) int {
	if purchaseCount <= 1 {
		return 0
	}
	if purchaseCount == 2 {
		return 1
	}
	return 2
}

// BaseRate returns the base commission rate for a purchase count.
func (s Snapshot) BaseRate(purchaseCount int) decimal.Decimal {
	return s.BaseRates[bucketIndex(purchaseCount)]
}

// LoyaltyRate returns the loyalty bonus rate for a purchase count.
func (s Snapshot) LoyaltyRate(purchaseCount int) decimal.Decimal {
	return s.LoyaltyRates[bucketIndex(purchaseCount)]
}

// TierFor resolves the coach tier for a referral count. The highest tier
// whose threshold is met wins; with no tiers configured a zero-value
// bronze tier is returned.
func (s Snapshot) TierFor(referralCount int64) Tier {
	tiers := make([]Tier, len(s.Tiers))
	copy(tiers, s.Tiers)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinReferrals < tiers[j].MinReferrals })

	resolved := Tier{Name: TierBronze, BonusPercent: decimal.Zero}
	for i, tier := range tiers {
		if referralCount < tier.MinReferrals {
			break
		}
		resolved = tier
		resolved.Ordinal = i
	}
	return resolved
}

// SeasonFor returns the season window containing the date, or nil for the
// regular season. Windows recur annually and may wrap the year end.
func (s Snapshot) SeasonFor(at time.Time) *Season {
	month := int(at.Month())
	day := at.Day()
	for i := range s.Seasons {
		season := s.Seasons[i]
		if seasonContains(season, month, day) {
			return &season
		}
	}
	return nil
}

func seasonContains(season Season, month, day int) bool {
	start := season.StartMonth*100 + season.StartDay
	end := season.EndMonth*100 + season.EndDay
	point := month*100 + day
	if start <= end {
		return point >= start && point <= end
	}
	// Window wraps the turn of the year.
	return point >= start || point <= end
}
