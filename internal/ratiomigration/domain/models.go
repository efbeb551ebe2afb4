package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// MigrationStatus tracks the coordinator state machine:
// not_started -> backing_up -> migrating -> verifying -> completed,
// with rolled_back reachable from any state once the backup exists.
type MigrationStatus string

const (
	StatusNotStarted MigrationStatus = "not_started"
	StatusBackingUp  MigrationStatus = "backing_up"
	StatusMigrating  MigrationStatus = "migrating"
	StatusVerifying  MigrationStatus = "verifying"
	StatusCompleted  MigrationStatus = "completed"
	StatusRolledBack MigrationStatus = "rolled_back"
)

// Active reports whether the migration currently owns the ledger.
func (s MigrationStatus) Active() bool {
	switch s {
	case StatusBackingUp, StatusMigrating, StatusVerifying:
		return true
	default:
		return false
	}
}

// RatioMigration is the durable record of one points-per-currency ratio
// change. Cursor is the last rewritten ledger id, so an interrupted run
// resumes without reprocessing completed batches.
type RatioMigration struct {
	ID                snowflake.ID      `gorm:"primaryKey"`
	Status            MigrationStatus   `gorm:"type:text;not null;index"`
	Rates             datatypes.JSONMap `gorm:"type:jsonb;not null"`
	BatchSize         int               `gorm:"not null"`
	Cursor            int64             `gorm:"not null;default:0"`
	Processed         int64             `gorm:"not null;default:0"`
	LastError         *string           `gorm:"type:text"`
	BackupCompletedAt *time.Time
	CompletedAt       *time.Time
	CreatedAt         time.Time `gorm:"not null"`
	UpdatedAt         time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (RatioMigration) TableName() string { return "ratio_migrations" }

// TransactionBackup is a wholesale copy of one ledger row taken before
// any rewrite, keyed to the migration that owns it.
type TransactionBackup struct {
	ID           snowflake.ID      `gorm:"primaryKey;autoIncrement:false"`
	MigrationID  snowflake.ID      `gorm:"primaryKey;autoIncrement:false"`
	CustomerID   snowflake.ID      `gorm:"not null;index"`
	OrderID      *snowflake.ID     ``
	Type         string            `gorm:"type:text;not null"`
	PointsAmount int64             `gorm:"not null"`
	Description  string            `gorm:"type:text;not null"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb"`
	BalanceAfter int64             `gorm:"not null"`
	CreatedAt    time.Time         `gorm:"not null"`
}

// TableName sets the database table name.
func (TransactionBackup) TableName() string { return "points_transactions_backup" }

// VerificationMismatch records one customer whose ledger sum disagrees
// with the stored balance snapshot after migration.
type VerificationMismatch struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	MigrationID  snowflake.ID `gorm:"not null;index"`
	CustomerID   snowflake.ID `gorm:"not null"`
	LedgerSum    int64        `gorm:"not null"`
	BalanceAfter int64        `gorm:"not null"`
	CreatedAt    time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (VerificationMismatch) TableName() string { return "ratio_migration_mismatches" }

// StartRequest begins a ratio migration. Rates is the new role to
// points-rate table applied to purchase-derived history.
type StartRequest struct {
	Rates     map[string]int64
	BatchSize int
}

// Progress is the admin-facing migration status.
type Progress struct {
	Migration  RatioMigration
	Mismatches []VerificationMismatch
}
