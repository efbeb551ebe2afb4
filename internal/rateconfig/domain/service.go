package domain

import (
	"context"
	"errors"
)

// Service loads rate/tier configuration snapshots. The settings tables are
// owned by the admin surface; this service only reads them.
type Service interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

var (
	ErrInvalidRate         = errors.New("invalid_rate")
	ErrUnknownRole         = errors.New("unknown_role")
	ErrSnapshotUnavailable = errors.New("snapshot_unavailable")
	ErrIncompleteConfig    = errors.New("incomplete_config")
)
