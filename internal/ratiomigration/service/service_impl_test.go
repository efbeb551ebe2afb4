package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rewardly/internal/clock"
	"github.com/smallbiznis/rewardly/internal/config"
	"github.com/smallbiznis/rewardly/internal/events"
	pointsdomain "github.com/smallbiznis/rewardly/internal/points/domain"
	migrationdomain "github.com/smallbiznis/rewardly/internal/ratiomigration/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newMigrationTestService(t *testing.T) (migrationdomain.Service, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&pointsdomain.PointsTransaction{},
		&migrationdomain.RatioMigration{},
		&migrationdomain.TransactionBackup{},
		&migrationdomain.VerificationMismatch{},
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

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	svc := NewService(ServiceParam{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clock.SystemClock{},
		Cfg:    config.Config{Migration: config.Migration{BatchSize: 2}},
		Outbox: events.NewOutbox(db, node),
	})
	return svc, db
}

// seedLedger writes a small ledger for one customer: two purchases at
// rate 10 plus one adjustment, with consistent balance snapshots.
func seedLedger(t *testing.T, db *gorm.DB, customerID snowflake.ID, startID int64) {
	t.Helper()
	now := time.Now().UTC()
	rows := []pointsdomain.PointsTransaction{
		{
			ID:           snowflake.ID(startID),
			CustomerID:   customerID,
			Type:         pointsdomain.TypeOrderPurchase,
			PointsAmount: 10,
			Description:  "purchase",
			Metadata: datatypes.JSONMap{
				pointsdomain.MetaOrderTotal: "100",
				pointsdomain.MetaPointsRate: 10,
				pointsdomain.MetaRole:       "customer",
			},
			BalanceAfter: 10,
			CreatedAt:    now,
		},
		{
			ID:           snowflake.ID(startID + 1),
			CustomerID:   customerID,
			Type:         pointsdomain.TypeOrderPurchase,
			PointsAmount: 9,
			Description:  "purchase",
			Metadata: datatypes.JSONMap{
				pointsdomain.MetaOrderTotal: "95",
				pointsdomain.MetaPointsRate: 10,
				pointsdomain.MetaRole:       "customer",
			},
			BalanceAfter: 19,
			CreatedAt:    now,
		},
		{
			ID:           snowflake.ID(startID + 2),
			CustomerID:   customerID,
			Type:         pointsdomain.TypeAdminAdjustment,
			PointsAmount: 5,
			Description:  "promo",
			BalanceAfter: 24,
			CreatedAt:    now,
		},
	}
	for i := range rows {
		orderID := snowflake.ID(startID + int64(i) + 100000)
		if rows[i].Type == pointsdomain.TypeOrderPurchase {
			rows[i].OrderID = &orderID
		}
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed ledger row: %v", err)
		}
	}
}

func TestStartMigrationRewritesPurchaseRows(t *testing.T) {
	svc, db := newMigrationTestService(t)
	ctx := context.Background()

	seedLedger(t, db, 1, 1000)
	seedLedger(t, db, 2, 2000)

	// Halving the rate doubles every purchase-derived credit.
	migration, err := svc.Start(ctx, migrationdomain.StartRequest{
		Rates: map[string]int64{"customer": 5},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if migration.Status != migrationdomain.StatusCompleted {
		t.Fatalf("expected completed, got %s", migration.Status)
	}

	var points []int64
	if err := db.Raw(
		`SELECT points_amount FROM points_transactions WHERE customer_id = 1 ORDER BY id`,
	).Scan(&points).Error; err != nil {
		t.Fatalf("load points: %v", err)
	}
	// 100/5=20, 95/5=19; the adjustment row is untouched.
	want := []int64{20, 19, 5}
	for i, got := range points {
		if got != want[i] {
			t.Fatalf("row %d: got %d points, want %d", i, got, want[i])
		}
	}

	var lastBalance int64
	if err := db.Raw(
		`SELECT balance_after FROM points_transactions WHERE customer_id = 1 ORDER BY id DESC LIMIT 1`,
	).Scan(&lastBalance).Error; err != nil {
		t.Fatalf("load balance: %v", err)
	}
	if lastBalance != 44 {
		t.Fatalf("rebuilt balance chain should end at 44, got %d", lastBalance)
	}

	var backed int64
	if err := db.Raw(
		`SELECT COUNT(1) FROM points_transactions_backup WHERE migration_id = ?`, migration.ID,
	).Scan(&backed).Error; err != nil {
		t.Fatalf("count backup: %v", err)
	}
	if backed != 6 {
		t.Fatalf("backup should hold all 6 ledger rows, got %d", backed)
	}

	progress, err := svc.Status(ctx, migration.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if len(progress.Mismatches) != 0 {
		t.Fatalf("verification should find no mismatches, got %d", len(progress.Mismatches))
	}
}

func TestMigrationSkipsRowsWithoutMetadata(t *testing.T) {
	svc, db := newMigrationTestService(t)
	ctx := context.Background()

	now := time.Now().UTC()
	orderID := snowflake.ID(100)
	legacy := pointsdomain.PointsTransaction{
		ID:           3000,
		CustomerID:   3,
		OrderID:      &orderID,
		Type:         pointsdomain.TypeOrderPurchase,
		PointsAmount: 7,
		Description:  "legacy purchase",
		BalanceAfter: 7,
		CreatedAt:    now,
	}
	if err := db.Create(&legacy).Error; err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}

	migration, err := svc.Start(ctx, migrationdomain.StartRequest{
		Rates: map[string]int64{"customer": 5},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if migration.Status != migrationdomain.StatusCompleted {
		t.Fatalf("expected completed, got %s", migration.Status)
	}

	var points int64
	if err := db.Raw(`SELECT points_amount FROM points_transactions WHERE id = 3000`).Scan(&points).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if points != 7 {
		t.Fatalf("a row without order-total metadata must stay untouched, got %d", points)
	}
}

func TestRollbackRestoresLedger(t *testing.T) {
	svc, db := newMigrationTestService(t)
	ctx := context.Background()

	seedLedger(t, db, 4, 4000)

	migration, err := svc.Start(ctx, migrationdomain.StartRequest{
		Rates: map[string]int64{"customer": 5},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	rolledBack, err := svc.Rollback(ctx, migration.ID)
	if err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if rolledBack.Status != migrationdomain.StatusRolledBack {
		t.Fatalf("expected rolled_back, got %s", rolledBack.Status)
	}

	var points []int64
	if err := db.Raw(
		`SELECT points_amount FROM points_transactions WHERE customer_id = 4 ORDER BY id`,
	).Scan(&points).Error; err != nil {
		t.Fatalf("load points: %v", err)
	}
	want := []int64{10, 9, 5}
	for i, got := range points {
		if got != want[i] {
			t.Fatalf("row %d after rollback: got %d, want %d", i, got, want[i])
		}
	}
}

func TestStartRejectsInvalidRates(t *testing.T) {
	svc, _ := newMigrationTestService(t)
	ctx := context.Background()

	if _, err := svc.Start(ctx, migrationdomain.StartRequest{}); !errors.Is(err, migrationdomain.ErrInvalidRates) {
		t.Fatalf("expected ErrInvalidRates for empty rates, got %v", err)
	}
	if _, err := svc.Start(ctx, migrationdomain.StartRequest{
		Rates: map[string]int64{"customer": 0},
	}); !errors.Is(err, migrationdomain.ErrInvalidRates) {
		t.Fatalf("expected ErrInvalidRates for zero rate, got %v", err)
	}
}

func TestStartRefusesWhileAnotherMigrationActive(t *testing.T) {
	svc, db := newMigrationTestService(t)
	ctx := context.Background()

	active := migrationdomain.RatioMigration{
		ID:        7777,
		Status:    migrationdomain.StatusMigrating,
		Rates:     datatypes.JSONMap{"customer": 5},
		BatchSize: 100,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := db.Create(&active).Error; err != nil {
		t.Fatalf("seed active migration: %v", err)
	}

	_, err := svc.Start(ctx, migrationdomain.StartRequest{
		Rates: map[string]int64{"customer": 5},
	})
	if !errors.Is(err, migrationdomain.ErrMigrationAlreadyRunning) {
		t.Fatalf("expected ErrMigrationAlreadyRunning, got %v", err)
	}
}

func TestResumeRequiresActiveMigration(t *testing.T) {
	svc, db := newMigrationTestService(t)
	ctx := context.Background()

	seedLedger(t, db, 5, 5000)
	migration, err := svc.Start(ctx, migrationdomain.StartRequest{
		Rates: map[string]int64{"customer": 5},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.Resume(ctx, migration.ID); !errors.Is(err, migrationdomain.ErrMigrationNotResumable) {
		t.Fatalf("a completed migration must not resume, got %v", err)
	}
	if _, err := svc.Resume(ctx, 424242); !errors.Is(err, migrationdomain.ErrMigrationNotFound) {
		t.Fatalf("expected ErrMigrationNotFound, got %v", err)
	}
}

func TestRollbackRequiresBackup(t *testing.T) {
	svc, db := newMigrationTestService(t)
	ctx := context.Background()

	record := migrationdomain.RatioMigration{
		ID:        8888,
		Status:    migrationdomain.StatusBackingUp,
		Rates:     datatypes.JSONMap{"customer": 5},
		BatchSize: 100,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("seed migration: %v", err)
	}

	if _, err := svc.Rollback(ctx, record.ID); !errors.Is(err, migrationdomain.ErrRollbackUnavailable) {
		t.Fatalf("expected ErrRollbackUnavailable without a backup, got %v", err)
	}
}

func TestResumeContinuesFromPersistedCursor(t *testing.T) {
	svc, db := newMigrationTestService(t)
	ctx := context.Background()

	seedLedger(t, db, 6, 6000)

	// A mid-flight record as a crashed coordinator would leave it: the
	// first purchase row is behind the cursor, the rest still pending.
	// Rates reloaded from the row arrive as json.Number, not int64.
	backupAt := time.Now().UTC()
	midflight := migrationdomain.RatioMigration{
		ID:                9999,
		Status:            migrationdomain.StatusMigrating,
		Rates:             datatypes.JSONMap{"customer": 5},
		BatchSize:         2,
		Cursor:            6000,
		Processed:         1,
		BackupCompletedAt: &backupAt,
		CreatedAt:         backupAt,
		UpdatedAt:         backupAt,
	}
	if err := db.Create(&midflight).Error; err != nil {
		t.Fatalf("seed midflight migration: %v", err)
	}

	resumed, err := svc.Resume(ctx, midflight.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Status != migrationdomain.StatusCompleted {
		t.Fatalf("expected completed, got %s", resumed.Status)
	}
	if resumed.Cursor <= 6000 {
		t.Fatalf("cursor should advance past the pending rows, got %d", resumed.Cursor)
	}

	var points []int64
	if err := db.Raw(
		`SELECT points_amount FROM points_transactions WHERE customer_id = 6 ORDER BY id`,
	).Scan(&points).Error; err != nil {
		t.Fatalf("load points: %v", err)
	}
	// The row behind the cursor is not reprocessed; the 95-unit purchase
	// after it is rewritten at the new rate; the adjustment stays.
	want := []int64{10, 19, 5}
	for i, got := range points {
		if got != want[i] {
			t.Fatalf("row %d after resume: got %d points, want %d", i, got, want[i])
		}
	}

	var lastBalance int64
	if err := db.Raw(
		`SELECT balance_after FROM points_transactions WHERE customer_id = 6 ORDER BY id DESC LIMIT 1`,
	).Scan(&lastBalance).Error; err != nil {
		t.Fatalf("load balance: %v", err)
	}
	if lastBalance != 34 {
		t.Fatalf("rebuilt balance chain should end at 34, got %d", lastBalance)
	}
}
