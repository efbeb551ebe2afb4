package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/rewardly/internal/clock"
	commissiondomain "github.com/smallbiznis/rewardly/internal/commission/domain"
	"github.com/smallbiznis/rewardly/internal/config"
	"github.com/smallbiznis/rewardly/internal/events"
	rateconfigdomain "github.com/smallbiznis/rewardly/internal/rateconfig/domain"
	rateconfigservice "github.com/smallbiznis/rewardly/internal/rateconfig/service"
	referraldomain "github.com/smallbiznis/rewardly/internal/referral/domain"
	referralservice "github.com/smallbiznis/rewardly/internal/referral/service"
	"github.com/smallbiznis/rewardly/internal/seed"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newCommissionTestService(t *testing.T) (commissiondomain.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&rateconfigdomain.RolePointRate{},
		&rateconfigdomain.CommissionBucketRate{},
		&rateconfigdomain.CoachTier{},
		&rateconfigdomain.SeasonWindow{},
		&rateconfigdomain.BonusSetting{},
		&referraldomain.Referral{},
		&referraldomain.ReferredOrder{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Exec(
		`CREATE TABLE IF NOT EXISTS loyalty_events (
			id BIGINT PRIMARY KEY,
			customer_id BIGINT,
			event_type TEXT NOT NULL,
			payload TEXT,
			dedupe_key TEXT UNIQUE,
			published BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL
		)`,
	).Error; err != nil {
		t.Fatalf("create loyalty_events: %v", err)
	}
	// Keep seeded season windows out of the way so term expectations
	// stay deterministic for weekday fixtures.
	if err := seed.EnsureDefaultRates(db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.Exec(`DELETE FROM season_windows`).Error; err != nil {
		t.Fatalf("clear seasons: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	rateSvc := rateconfigservice.NewService(rateconfigservice.ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.SystemClock{},
		Cfg:   config.Config{ConfigCacheTTL: time.Minute},
	})
	referralSvc := referralservice.NewService(referralservice.ServiceParam{
		DB:  db,
		Log: zap.NewNop(),
	})
	svc := NewService(ServiceParam{
		Log:        zap.NewNop(),
		RateConfig: rateSvc,
		Referrals:  referralSvc,
		Outbox:     events.NewOutbox(db, node),
	})
	return svc, db
}

func insertReferrals(t *testing.T, db *gorm.DB, coachID int64, count int) {
	t.Helper()
	for i := 0; i < count; i++ {
		if err := db.Exec(
			`INSERT INTO referrals (id, coach_id, customer_id, created_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
			coachID*1000+int64(i),
			coachID,
			coachID*100+int64(i),
		).Error; err != nil {
			t.Fatalf("insert referral: %v", err)
		}
	}
}

func insertReferredOrder(t *testing.T, db *gorm.DB, orderID, coachID, customerID int64, season string) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO referred_orders (id, order_id, coach_id, customer_id, season, created_at)
		 VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		orderID,
		orderID,
		coachID,
		customerID,
		season,
	).Error; err != nil {
		t.Fatalf("insert referred order: %v", err)
	}
}

func TestCalculateTotalCommissionBreakdown(t *testing.T) {
	svc, db := newCommissionTestService(t)
	ctx := context.Background()

	// Silver-tier coach (6 referrals), customer on their second referred
	// purchase across two seasons.
	insertReferrals(t, db, 50, 6)
	insertReferredOrder(t, db, 9001, 50, 60, "2025-winter")
	insertReferredOrder(t, db, 9002, 50, 60, "2026-spring")

	order := commissiondomain.Order{
		OrderID:  9002,
		Total:    decimal.RequireFromString("110"),
		TaxTotal: decimal.RequireFromString("10"),
		PlacedAt: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC), // a Wednesday
	}

	breakdown, err := svc.CalculateTotalCommission(ctx, order, 50, 60)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}

	if breakdown.CoachTier != rateconfigdomain.TierSilver {
		t.Fatalf("6 referrals should resolve silver, got %s", breakdown.CoachTier)
	}
	if breakdown.PurchaseCount != 2 {
		t.Fatalf("expected purchase count 2, got %d", breakdown.PurchaseCount)
	}
	if breakdown.Seasons != 2 {
		t.Fatalf("expected 2 distinct seasons, got %d", breakdown.Seasons)
	}

	// Net 100 at second-purchase rates: base 7, loyalty 2, retention 5
	// for the second season, silver tier 1, nothing else applies.
	if !breakdown.BaseCommission.Equal(decimal.RequireFromString("7.00")) {
		t.Fatalf("base commission: got %s, want 7.00", breakdown.BaseCommission)
	}
	if !breakdown.LoyaltyBonus.Equal(decimal.RequireFromString("2.00")) {
		t.Fatalf("loyalty bonus: got %s, want 2.00", breakdown.LoyaltyBonus)
	}
	if !breakdown.RetentionBonus.Equal(decimal.RequireFromString("5")) {
		t.Fatalf("retention bonus: got %s, want 5", breakdown.RetentionBonus)
	}
	if !breakdown.TierBonus.Equal(decimal.RequireFromString("1.00")) {
		t.Fatalf("tier bonus: got %s, want 1.00", breakdown.TierBonus)
	}
	if !breakdown.NetworkBonus.IsZero() {
		t.Fatalf("6 referrals are below the network minimum, got %s", breakdown.NetworkBonus)
	}
	if !breakdown.SeasonalBonus.IsZero() || !breakdown.WeekendBonus.IsZero() {
		t.Fatalf("weekday regular-season order pays no seasonal/weekend bonus")
	}

	if !breakdown.TotalAmount.Equal(breakdown.Sum()) {
		t.Fatalf("total %s must equal the sum of terms %s", breakdown.TotalAmount, breakdown.Sum())
	}
	if !breakdown.TotalAmount.Equal(decimal.RequireFromString("15.00")) {
		t.Fatalf("total: got %s, want 15.00", breakdown.TotalAmount)
	}

	var eventCount int64
	if err := db.Raw(`SELECT COUNT(1) FROM loyalty_events WHERE event_type = ?`, events.EventCommissionCalculated).Scan(&eventCount).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if eventCount != 1 {
		t.Fatalf("expected one commission event, got %d", eventCount)
	}
}

func TestCalculateTotalCommissionFirstPurchaseDefaults(t *testing.T) {
	svc, _ := newCommissionTestService(t)

	// Unknown coach and customer: bronze tier, first purchase, no history.
	order := commissiondomain.Order{
		OrderID:  9100,
		Total:    decimal.RequireFromString("100"),
		TaxTotal: decimal.Zero,
		PlacedAt: time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC),
	}

	breakdown, err := svc.CalculateTotalCommission(context.Background(), order, 70, 71)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if breakdown.CoachTier != rateconfigdomain.TierBronze {
		t.Fatalf("no referrals should resolve bronze, got %s", breakdown.CoachTier)
	}
	if breakdown.PurchaseCount != 1 {
		t.Fatalf("no history should count as the first purchase, got %d", breakdown.PurchaseCount)
	}
	if !breakdown.BaseCommission.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("first purchase base: got %s, want 10.00", breakdown.BaseCommission)
	}
	if !breakdown.TotalAmount.Equal(decimal.RequireFromString("11.00")) {
		t.Fatalf("total: got %s, want 11.00 (base 10 + loyalty 1)", breakdown.TotalAmount)
	}
}

func TestCalculateTotalCommissionValidation(t *testing.T) {
	svc, _ := newCommissionTestService(t)
	ctx := context.Background()

	order := commissiondomain.Order{
		OrderID:  9200,
		Total:    decimal.RequireFromString("100"),
		PlacedAt: time.Now().UTC(),
	}

	if _, err := svc.CalculateTotalCommission(ctx, commissiondomain.Order{}, 1, 2); !errors.Is(err, commissiondomain.ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder, got %v", err)
	}
	if _, err := svc.CalculateTotalCommission(ctx, order, 0, 2); !errors.Is(err, commissiondomain.ErrInvalidCoach) {
		t.Fatalf("expected ErrInvalidCoach, got %v", err)
	}
	if _, err := svc.CalculateTotalCommission(ctx, order, 1, 0); !errors.Is(err, commissiondomain.ErrInvalidCustomer) {
		t.Fatalf("expected ErrInvalidCustomer, got %v", err)
	}
}
