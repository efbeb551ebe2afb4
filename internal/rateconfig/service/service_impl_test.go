package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/smallbiznis/rewardly/internal/clock"
	"github.com/smallbiznis/rewardly/internal/config"
	rateconfigdomain "github.com/smallbiznis/rewardly/internal/rateconfig/domain"
	"github.com/smallbiznis/rewardly/internal/seed"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupRateConfigTestDB(t *testing.T) *gorm.DB {
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
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newRateConfigTestService(t *testing.T, db *gorm.DB) rateconfigdomain.Service {
	t.Helper()
	return NewService(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		Clock: clock.SystemClock{},
		Cfg:   config.Config{ConfigCacheTTL: time.Minute},
	})
}

func TestSnapshotLoadsSeededConfig(t *testing.T) {
	db := setupRateConfigTestDB(t)
	if err := seed.EnsureDefaultRates(db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newRateConfigTestService(t, db)

	snapshot, err := svc.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if snapshot.RoleRates[rateconfigdomain.RoleCustomer] != 10 {
		t.Fatalf("customer rate should be 10, got %d", snapshot.RoleRates[rateconfigdomain.RoleCustomer])
	}
	if snapshot.RoleRates[rateconfigdomain.RolePartner] != 5 {
		t.Fatalf("partner rate should be 5, got %d", snapshot.RoleRates[rateconfigdomain.RolePartner])
	}
	if len(snapshot.Tiers) != 4 {
		t.Fatalf("expected 4 tiers, got %d", len(snapshot.Tiers))
	}
	if snapshot.BaseRates[0].IsZero() || snapshot.LoyaltyRates[2].IsZero() {
		t.Fatal("bucket rates should be populated")
	}
	if snapshot.NetworkMinReferrals == 0 {
		t.Fatal("bonus settings should be populated")
	}
}

func TestSnapshotServedFromCache(t *testing.T) {
	db := setupRateConfigTestDB(t)
	if err := seed.EnsureDefaultRates(db); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := newRateConfigTestService(t, db)
	ctx := context.Background()

	first, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	// A rate edit inside the TTL is invisible until the cache expires.
	if err := db.Exec(`UPDATE role_point_rates SET rate = 99 WHERE role = ?`, rateconfigdomain.RoleCustomer).Error; err != nil {
		t.Fatalf("update rate: %v", err)
	}
	second, err := svc.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if second.RoleRates[rateconfigdomain.RoleCustomer] != first.RoleRates[rateconfigdomain.RoleCustomer] {
		t.Fatal("snapshot inside the TTL should come from cache")
	}
}

func TestSnapshotRequiresCompleteConfig(t *testing.T) {
	db := setupRateConfigTestDB(t)
	svc := newRateConfigTestService(t, db)

	if _, err := svc.Snapshot(context.Background()); !errors.Is(err, rateconfigdomain.ErrIncompleteConfig) {
		t.Fatalf("expected ErrIncompleteConfig on empty tables, got %v", err)
	}
}
