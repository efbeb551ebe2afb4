package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	rateconfigdomain "github.com/smallbiznis/rewardly/internal/rateconfig/domain"
	"gorm.io/gorm"
)

// EnsureDefaultRates seeds the rate configuration tables for startup
// bootstrap. Existing rows are left alone so operator edits survive
// restarts.
func EnsureDefaultRates(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureRoleRates(ctx, tx, node); err != nil {
			return err
		}
		if err := ensureBucketRates(ctx, tx, node); err != nil {
			return err
		}
		if err := ensureCoachTiers(ctx, tx, node); err != nil {
			return err
		}
		if err := ensureSeasonWindows(ctx, tx, node); err != nil {
			return err
		}
		return ensureBonusSettings(ctx, tx, node)
	})
}

func ensureRoleRates(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	defaults := []rateconfigdomain.RolePointRate{
		{Role: rateconfigdomain.RoleCustomer, Rate: 10},
		{Role: rateconfigdomain.RoleCoach, Rate: 8},
		{Role: rateconfigdomain.RoleContentCreator, Rate: 8},
		{Role: rateconfigdomain.RoleSocialInfluencer, Rate: 6},
		{Role: rateconfigdomain.RolePartner, Rate: 5},
	}
	now := time.Now().UTC()
	for _, rate := range defaults {
		var existing rateconfigdomain.RolePointRate
		err := tx.WithContext(ctx).Where("role = ?", rate.Role).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		rate.ID = node.Generate()
		rate.UpdatedAt = now
		if err := tx.WithContext(ctx).Create(&rate).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureBucketRates(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	defaults := []rateconfigdomain.CommissionBucketRate{
		{Bucket: 1, BaseRate: decimal.RequireFromString("0.10"), LoyaltyRate: decimal.RequireFromString("0.01")},
		{Bucket: 2, BaseRate: decimal.RequireFromString("0.07"), LoyaltyRate: decimal.RequireFromString("0.02")},
		{Bucket: 3, BaseRate: decimal.RequireFromString("0.05"), LoyaltyRate: decimal.RequireFromString("0.03")},
	}
	now := time.Now().UTC()
	for _, bucket := range defaults {
		var existing rateconfigdomain.CommissionBucketRate
		err := tx.WithContext(ctx).Where("bucket = ?", bucket.Bucket).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		bucket.ID = node.Generate()
		bucket.UpdatedAt = now
		if err := tx.WithContext(ctx).Create(&bucket).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureCoachTiers(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	defaults := []rateconfigdomain.CoachTier{
		{Name: rateconfigdomain.TierBronze, MinReferrals: 0, BonusPercent: decimal.Zero},
		{Name: rateconfigdomain.TierSilver, MinReferrals: 5, BonusPercent: decimal.RequireFromString("0.01")},
		{Name: rateconfigdomain.TierGold, MinReferrals: 15, BonusPercent: decimal.RequireFromString("0.02")},
		{Name: rateconfigdomain.TierPlatinum, MinReferrals: 30, BonusPercent: decimal.RequireFromString("0.03")},
	}
	now := time.Now().UTC()
	for _, tier := range defaults {
		var existing rateconfigdomain.CoachTier
		err := tx.WithContext(ctx).Where("name = ?", tier.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		tier.ID = node.Generate()
		tier.UpdatedAt = now
		if err := tx.WithContext(ctx).Create(&tier).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureSeasonWindows(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	defaults := []rateconfigdomain.SeasonWindow{
		{Name: "new_year", StartMonth: 1, StartDay: 1, EndMonth: 1, EndDay: 15, BonusPercent: decimal.RequireFromString("0.02")},
		{Name: "summer", StartMonth: 6, StartDay: 1, EndMonth: 8, EndDay: 31, BonusPercent: decimal.RequireFromString("0.01")},
		{Name: "holiday", StartMonth: 11, StartDay: 20, EndMonth: 12, EndDay: 31, BonusPercent: decimal.RequireFromString("0.03")},
	}
	now := time.Now().UTC()
	for _, window := range defaults {
		var existing rateconfigdomain.SeasonWindow
		err := tx.WithContext(ctx).Where("name = ?", window.Name).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		window.ID = node.Generate()
		window.UpdatedAt = now
		if err := tx.WithContext(ctx).Create(&window).Error; err != nil {
			return err
		}
	}
	return nil
}

func ensureBonusSettings(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	var existing rateconfigdomain.BonusSetting
	err := tx.WithContext(ctx).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	setting := rateconfigdomain.BonusSetting{
		ID:                      node.Generate(),
		RetentionSecondSeason:   decimal.RequireFromString("5"),
		RetentionThirdSeason:    decimal.RequireFromString("10"),
		NetworkMinReferrals:     10,
		NetworkBonusPerReferral: decimal.RequireFromString("0.50"),
		WeekendPercent:          decimal.RequireFromString("0.01"),
		UpdatedAt:               time.Now().UTC(),
	}
	return tx.WithContext(ctx).Create(&setting).Error
}
