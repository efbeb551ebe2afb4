package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Service coordinates points-per-currency ratio migrations over the live
// ledger. Only this service may rewrite historical transactions, and only
// inside a backup-guarded batch run.
type Service interface {
	Start(ctx context.Context, req StartRequest) (*RatioMigration, error)
	Resume(ctx context.Context, id snowflake.ID) (*RatioMigration, error)
	Rollback(ctx context.Context, id snowflake.ID) (*RatioMigration, error)
	Status(ctx context.Context, id snowflake.ID) (*Progress, error)
}

var (
	ErrInvalidRates                = errors.New("invalid_rates")
	ErrMigrationNotFound           = errors.New("migration_not_found")
	ErrMigrationAlreadyRunning     = errors.New("migration_already_running")
	ErrMigrationNotResumable       = errors.New("migration_not_resumable")
	ErrMigrationBackupFailed       = errors.New("migration_backup_failed")
	ErrMigrationVerificationFailed = errors.New("migration_verification_failed")
	ErrRollbackUnavailable         = errors.New("rollback_unavailable")
)
