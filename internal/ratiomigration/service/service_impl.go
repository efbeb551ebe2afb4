package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/rewardly/internal/clock"
	"github.com/smallbiznis/rewardly/internal/config"
	"github.com/smallbiznis/rewardly/internal/events"
	"github.com/smallbiznis/rewardly/internal/observability/metrics"
	pointsdomain "github.com/smallbiznis/rewardly/internal/points/domain"
	migrationdomain "github.com/smallbiznis/rewardly/internal/ratiomigration/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Cfg     config.Config
	Outbox  *events.Outbox
	Metrics *metrics.LedgerMetrics `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	defaultBatchSize int
	outbox           *events.Outbox
	metrics          *metrics.LedgerMetrics

	// runMu makes the coordinator single-flight within the process:
	// the first invocation wins, later ones report already-running.
	runMu sync.Mutex
}

func NewService(p ServiceParam) migrationdomain.Service {
	batchSize := p.Cfg.Migration.BatchSize
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("ratiomigration.service"),
		genID: p.GenID,
		clock: p.Clock,

		defaultBatchSize: batchSize,
		outbox:           p.Outbox,
		metrics:          p.Metrics,
	}
}

// Start creates a new migration record and runs it to completion. The
// ledger is never touched before the backup exists in full.
func (s *Service) Start(ctx context.Context, req migrationdomain.StartRequest) (*migrationdomain.RatioMigration, error) {
	if len(req.Rates) == 0 {
		return nil, migrationdomain.ErrInvalidRates
	}
	rates := datatypes.JSONMap{}
	for role, rate := range req.Rates {
		if rate <= 0 {
			return nil, migrationdomain.ErrInvalidRates
		}
		rates[role] = rate
	}

	if !s.runMu.TryLock() {
		return nil, migrationdomain.ErrMigrationAlreadyRunning
	}
	defer s.runMu.Unlock()

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = s.defaultBatchSize
	}

	now := s.clock.Now()
	migration := &migrationdomain.RatioMigration{
		ID:        s.genID.Generate(),
		Status:    migrationdomain.StatusBackingUp,
		Rates:     rates,
		BatchSize: batchSize,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.WithContext(ctx).Raw(
			`SELECT COUNT(1)
			 FROM ratio_migrations
			 WHERE status IN (?, ?, ?)`,
			migrationdomain.StatusBackingUp,
			migrationdomain.StatusMigrating,
			migrationdomain.StatusVerifying,
		).Scan(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return migrationdomain.ErrMigrationAlreadyRunning
		}
		return tx.WithContext(ctx).Create(migration).Error
	})
	if err != nil {
		return nil, err
	}

	if err := s.run(ctx, migration); err != nil {
		return migration, err
	}
	return migration, nil
}

// Resume continues an interrupted migration from its persisted cursor
// without reprocessing completed batches.
func (s *Service) Resume(ctx context.Context, id snowflake.ID) (*migrationdomain.RatioMigration, error) {
	if !s.runMu.TryLock() {
		return nil, migrationdomain.ErrMigrationAlreadyRunning
	}
	defer s.runMu.Unlock()

	migration, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !migration.Status.Active() {
		return nil, migrationdomain.ErrMigrationNotResumable
	}

	if err := s.run(ctx, migration); err != nil {
		return migration, err
	}
	return migration, nil
}

// Rollback restores every ledger row from the backup wholesale and marks
// the migration rolled back. It fails loudly when no backup exists.
func (s *Service) Rollback(ctx context.Context, id snowflake.ID) (*migrationdomain.RatioMigration, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	migration, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if migration.BackupCompletedAt == nil {
		return nil, migrationdomain.ErrRollbackUnavailable
	}

	var backed int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM points_transactions_backup
		 WHERE migration_id = ?`,
		migration.ID,
	).Scan(&backed).Error; err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Exec(`DELETE FROM points_transactions`).Error; err != nil {
			return err
		}
		if backed > 0 {
			if err := tx.WithContext(ctx).Exec(
				`INSERT INTO points_transactions (id, customer_id, order_id, type, points_amount, description, metadata, balance_after, created_at)
				 SELECT id, customer_id, order_id, type, points_amount, description, metadata, balance_after, created_at
				 FROM points_transactions_backup
				 WHERE migration_id = ?`,
				migration.ID,
			).Error; err != nil {
				return err
			}
		}
		if err := s.setStatus(ctx, tx, migration, migrationdomain.StatusRolledBack); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type:      events.EventMigrationRolledBack,
			DedupeKey: fmt.Sprintf("migration_rollback:%s", migration.ID),
			Payload:   map[string]any{"migration_id": migration.ID.String()},
		})
	})
	if err != nil {
		return nil, err
	}
	return migration, nil
}

// Status returns the migration record plus any verification mismatches
// for the admin screen.
func (s *Service) Status(ctx context.Context, id snowflake.ID) (*migrationdomain.Progress, error) {
	migration, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	var mismatches []migrationdomain.VerificationMismatch
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, migration_id, customer_id, ledger_sum, balance_after, created_at
		 FROM ratio_migration_mismatches
		 WHERE migration_id = ?
		 ORDER BY customer_id`,
		migration.ID,
	).Scan(&mismatches).Error; err != nil {
		return nil, err
	}
	return &migrationdomain.Progress{Migration: *migration, Mismatches: mismatches}, nil
}

func (s *Service) run(ctx context.Context, migration *migrationdomain.RatioMigration) error {
	if migration.Status == migrationdomain.StatusBackingUp {
		if err := s.backup(ctx, migration); err != nil {
			s.recordError(ctx, migration, err)
			return errors.Join(migrationdomain.ErrMigrationBackupFailed, err)
		}
	}

	if migration.Status == migrationdomain.StatusMigrating {
		if err := s.migrate(ctx, migration); err != nil {
			s.recordError(ctx, migration, err)
			return err
		}
	}

	if migration.Status == migrationdomain.StatusVerifying {
		if err := s.verify(ctx, migration); err != nil {
			s.recordError(ctx, migration, err)
			return err
		}
	}

	return nil
}

// backup copies the whole ledger before any row is rewritten. A restarted
// backup begins from scratch so the copy is never partial.
func (s *Service) backup(ctx context.Context, migration *migrationdomain.RatioMigration) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Exec(
			`DELETE FROM points_transactions_backup WHERE migration_id = ?`,
			migration.ID,
		).Error; err != nil {
			return err
		}
		return tx.WithContext(ctx).Exec(
			`INSERT INTO points_transactions_backup (id, migration_id, customer_id, order_id, type, points_amount, description, metadata, balance_after, created_at)
			 SELECT id, ?, customer_id, order_id, type, points_amount, description, metadata, balance_after, created_at
			 FROM points_transactions`,
			migration.ID,
		).Error
	})
	if err != nil {
		return err
	}

	now := s.clock.Now()
	migration.BackupCompletedAt = &now
	migration.Status = migrationdomain.StatusMigrating
	migration.UpdatedAt = now
	return s.db.WithContext(ctx).Exec(
		`UPDATE ratio_migrations
		 SET status = ?, backup_completed_at = ?, updated_at = ?
		 WHERE id = ?`,
		migration.Status,
		now,
		now,
		migration.ID,
	).Error
}

type purchaseRow struct {
	ID           snowflake.ID
	CustomerID   snowflake.ID
	PointsAmount int64
	Metadata     datatypes.JSONMap
}

// migrate rewrites purchase-derived rows batch by batch. Only
// order_purchase rows were computed programmatically from a ratio, so
// only they are recomputed; adjustments and bonuses stay untouched.
func (s *Service) migrate(ctx context.Context, migration *migrationdomain.RatioMigration) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var rows []purchaseRow
		if err := s.db.WithContext(ctx).Raw(
			`SELECT id, customer_id, points_amount, metadata
			 FROM points_transactions
			 WHERE type = ? AND id > ?
			 ORDER BY id
			 LIMIT ?`,
			pointsdomain.TypeOrderPurchase,
			migration.Cursor,
			migration.BatchSize,
		).Scan(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			break
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, row := range rows {
				if err := s.rewriteRow(ctx, tx, migration, row); err != nil {
					return err
				}
			}
			cursor := int64(rows[len(rows)-1].ID)
			migration.Cursor = cursor
			migration.Processed += int64(len(rows))
			now := s.clock.Now()
			migration.UpdatedAt = now
			return tx.WithContext(ctx).Exec(
				`UPDATE ratio_migrations
				 SET cursor = ?, processed = ?, updated_at = ?
				 WHERE id = ?`,
				cursor,
				migration.Processed,
				now,
				migration.ID,
			).Error
		})
		if err != nil {
			if s.metrics != nil {
				s.metrics.IncMigrationBatch("failed")
			}
			return err
		}
		if s.metrics != nil {
			s.metrics.IncMigrationBatch("success")
			s.metrics.SetMigrationCursor(migration.Cursor)
		}
	}

	if err := s.rebuildBalances(ctx); err != nil {
		return err
	}

	now := s.clock.Now()
	migration.Status = migrationdomain.StatusVerifying
	migration.UpdatedAt = now
	return s.db.WithContext(ctx).Exec(
		`UPDATE ratio_migrations SET status = ?, updated_at = ? WHERE id = ?`,
		migration.Status,
		now,
		migration.ID,
	).Error
}

func (s *Service) rewriteRow(ctx context.Context, tx *gorm.DB, migration *migrationdomain.RatioMigration, row purchaseRow) error {
	total, role, ok := purchaseFacts(row.Metadata)
	if !ok {
		// Row predates metadata capture; nothing to recompute from.
		return nil
	}

	rate, ok := migrationRate(migration.Rates, role)
	if !ok {
		return nil
	}

	points, err := pointsdomain.CalculatePointsFromAmount(total, rate)
	if err != nil {
		return err
	}
	if points == row.PointsAmount {
		return nil
	}

	metadata := datatypes.JSONMap{}
	for key, value := range row.Metadata {
		metadata[key] = value
	}
	metadata[pointsdomain.MetaPointsRate] = rate

	return tx.WithContext(ctx).Exec(
		`UPDATE points_transactions
		 SET points_amount = ?, metadata = ?
		 WHERE id = ?`,
		points,
		metadata,
		row.ID,
	).Error
}

// rebuildBalances recomputes each customer's balance_after chain after
// the value rewrite so every snapshot equals its running sum again.
func (s *Service) rebuildBalances(ctx context.Context) error {
	var customers []snowflake.ID
	if err := s.db.WithContext(ctx).Raw(
		`SELECT DISTINCT customer_id FROM points_transactions ORDER BY customer_id`,
	).Scan(&customers).Error; err != nil {
		return err
	}

	for _, customerID := range customers {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var rows []struct {
				ID           snowflake.ID
				PointsAmount int64
				BalanceAfter int64
			}
			if err := tx.WithContext(ctx).Raw(
				`SELECT id, points_amount, balance_after
				 FROM points_transactions
				 WHERE customer_id = ?
				 ORDER BY id`,
				customerID,
			).Scan(&rows).Error; err != nil {
				return err
			}
			var running int64
			for _, row := range rows {
				running += row.PointsAmount
				if row.BalanceAfter == running {
					continue
				}
				if err := tx.WithContext(ctx).Exec(
					`UPDATE points_transactions SET balance_after = ? WHERE id = ?`,
					running,
					row.ID,
				).Error; err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// verify re-sums every customer's ledger against the stored balance
// snapshot. Any mismatch is recorded and blocks completion.
func (s *Service) verify(ctx context.Context, migration *migrationdomain.RatioMigration) error {
	var mismatches []struct {
		CustomerID   snowflake.ID
		LedgerSum    int64
		BalanceAfter int64
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT t.customer_id AS customer_id,
		        SUM(t.points_amount) AS ledger_sum,
		        (SELECT balance_after FROM points_transactions last
		         WHERE last.customer_id = t.customer_id
		         ORDER BY last.id DESC LIMIT 1) AS balance_after
		 FROM points_transactions t
		 GROUP BY t.customer_id`,
	).Scan(&mismatches).Error; err != nil {
		return err
	}

	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Exec(
			`DELETE FROM ratio_migration_mismatches WHERE migration_id = ?`,
			migration.ID,
		).Error; err != nil {
			return err
		}
		for _, row := range mismatches {
			if row.LedgerSum == row.BalanceAfter {
				continue
			}
			s.log.Error("ledger verification mismatch",
				zap.String("customer_id", row.CustomerID.String()),
				zap.Int64("ledger_sum", row.LedgerSum),
				zap.Int64("balance_after", row.BalanceAfter),
			)
			if err := tx.WithContext(ctx).Create(&migrationdomain.VerificationMismatch{
				ID:           s.genID.Generate(),
				MigrationID:  migration.ID,
				CustomerID:   row.CustomerID,
				LedgerSum:    row.LedgerSum,
				BalanceAfter: row.BalanceAfter,
				CreatedAt:    now,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	var count int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM ratio_migration_mismatches WHERE migration_id = ?`,
		migration.ID,
	).Scan(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return migrationdomain.ErrMigrationVerificationFailed
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.setStatus(ctx, tx, migration, migrationdomain.StatusCompleted); err != nil {
			return err
		}
		return s.outbox.PublishTx(ctx, tx, events.Event{
			Type:      events.EventMigrationCompleted,
			DedupeKey: fmt.Sprintf("migration_completed:%s", migration.ID),
			Payload: map[string]any{
				"migration_id": migration.ID.String(),
				"processed":    migration.Processed,
			},
		})
	})
}

func (s *Service) setStatus(ctx context.Context, tx *gorm.DB, migration *migrationdomain.RatioMigration, status migrationdomain.MigrationStatus) error {
	now := s.clock.Now()
	migration.Status = status
	migration.UpdatedAt = now
	var completedAt any
	if status == migrationdomain.StatusCompleted || status == migrationdomain.StatusRolledBack {
		migration.CompletedAt = &now
		completedAt = now
	}
	return tx.WithContext(ctx).Exec(
		`UPDATE ratio_migrations
		 SET status = ?, completed_at = COALESCE(?, completed_at), last_error = NULL, updated_at = ?
		 WHERE id = ?`,
		status,
		completedAt,
		now,
		migration.ID,
	).Error
}

func (s *Service) recordError(ctx context.Context, migration *migrationdomain.RatioMigration, err error) {
	if err == nil {
		return
	}
	message := err.Error()
	now := s.clock.Now()
	if updateErr := s.db.WithContext(ctx).Exec(
		`UPDATE ratio_migrations SET last_error = ?, updated_at = ? WHERE id = ?`,
		message,
		now,
		migration.ID,
	).Error; updateErr != nil {
		s.log.Warn("failed to record migration error",
			zap.String("migration_id", migration.ID.String()),
			zap.Error(updateErr),
		)
	}
}

func (s *Service) load(ctx context.Context, id snowflake.ID) (*migrationdomain.RatioMigration, error) {
	var migration migrationdomain.RatioMigration
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, status, rates, batch_size, cursor, processed, last_error,
		        backup_completed_at, completed_at, created_at, updated_at
		 FROM ratio_migrations
		 WHERE id = ?`,
		id,
	).Scan(&migration).Error
	if err != nil {
		return nil, err
	}
	if migration.ID == 0 {
		return nil, migrationdomain.ErrMigrationNotFound
	}
	return &migration, nil
}

func purchaseFacts(metadata datatypes.JSONMap) (decimal.Decimal, string, bool) {
	rawTotal, ok := metadata[pointsdomain.MetaOrderTotal]
	if !ok {
		return decimal.Zero, "", false
	}
	var total decimal.Decimal
	switch value := rawTotal.(type) {
	case string:
		parsed, err := decimal.NewFromString(value)
		if err != nil {
			return decimal.Zero, "", false
		}
		total = parsed
	case json.Number:
		parsed, err := decimal.NewFromString(value.String())
		if err != nil {
			return decimal.Zero, "", false
		}
		total = parsed
	case float64:
		total = decimal.NewFromFloat(value)
	default:
		return decimal.Zero, "", false
	}

	role, _ := metadata[pointsdomain.MetaRole].(string)
	return total, role, true
}

// migrationRate reads the new rate for a role. Rates held in memory are
// native integers; rates reloaded from the database arrive as
// json.Number, so both shapes must resolve.
func migrationRate(rates datatypes.JSONMap, role string) (int64, bool) {
	raw, ok := rates[role]
	if !ok {
		return 0, false
	}
	switch value := raw.(type) {
	case int64:
		return value, true
	case int:
		return int64(value), true
	case float64:
		return int64(value), true
	case json.Number:
		rate, err := value.Int64()
		if err != nil {
			return 0, false
		}
		return rate, true
	case string:
		rate, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, false
		}
		return rate, true
	default:
		return 0, false
	}
}
