package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Customer roles, most generous points rate first. When a customer holds
// several roles the highest-priority role wins for both earning and any
// later recomputation of the same order.
const (
	RolePartner          = "partner"
	RoleSocialInfluencer = "social_influencer"
	RoleContentCreator   = "content_creator"
	RoleCoach            = "coach"
	RoleCustomer         = "customer"
)

// RolePriority is the fixed resolution order for multi-role customers.
var RolePriority = []string{
	RolePartner,
	RoleSocialInfluencer,
	RoleContentCreator,
	RoleCoach,
	RoleCustomer,
}

// Coach tier names, ordered by ascending referral thresholds.
const (
	TierBronze   = "bronze"
	TierSilver   = "silver"
	TierGold     = "gold"
	TierPlatinum = "platinum"
)

// RolePointRate stores how many currency units earn one point for a role.
type RolePointRate struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	Role      string       `gorm:"type:text;not null;uniqueIndex"`
	Rate      int64        `gorm:"not null"`
	UpdatedAt time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (RolePointRate) TableName() string { return "role_point_rates" }

// CommissionBucketRate stores the base and loyalty percentages for one
// purchase-count bucket (1st, 2nd, 3rd-and-beyond).
type CommissionBucketRate struct {
	ID          snowflake.ID    `gorm:"primaryKey"`
	Bucket      int             `gorm:"not null;uniqueIndex"`
	BaseRate    decimal.Decimal `gorm:"type:numeric;not null"`
	LoyaltyRate decimal.Decimal `gorm:"type:numeric;not null"`
	UpdatedAt   time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (CommissionBucketRate) TableName() string { return "commission_bucket_rates" }

// CoachTier stores a referral-count bracket and its bonus percentage.
type CoachTier struct {
	ID           snowflake.ID    `gorm:"primaryKey"`
	Name         string          `gorm:"type:text;not null;uniqueIndex"`
	MinReferrals int64           `gorm:"not null"`
	BonusPercent decimal.Decimal `gorm:"type:numeric;not null"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (CoachTier) TableName() string { return "coach_tiers" }

// SeasonWindow stores a named calendar window and its bonus percentage.
// Windows are month/day based and recur every year.
type SeasonWindow struct {
	ID           snowflake.ID    `gorm:"primaryKey"`
	Name         string          `gorm:"type:text;not null;uniqueIndex"`
	StartMonth   int             `gorm:"not null"`
	StartDay     int             `gorm:"not null"`
	EndMonth     int             `gorm:"not null"`
	EndDay       int             `gorm:"not null"`
	BonusPercent decimal.Decimal `gorm:"type:numeric;not null"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (SeasonWindow) TableName() string { return "season_windows" }

// BonusSetting stores the scalar bonus knobs as a single row.
type BonusSetting struct {
	ID                      snowflake.ID    `gorm:"primaryKey"`
	RetentionSecondSeason   decimal.Decimal `gorm:"type:numeric;not null"`
	RetentionThirdSeason    decimal.Decimal `gorm:"type:numeric;not null"`
	NetworkMinReferrals     int64           `gorm:"not null"`
	NetworkBonusPerReferral decimal.Decimal `gorm:"type:numeric;not null"`
	WeekendPercent          decimal.Decimal `gorm:"type:numeric;not null"`
	UpdatedAt               time.Time       `gorm:"not null"`
}

// TableName sets the database table name.
func (BonusSetting) TableName() string { return "bonus_settings" }
