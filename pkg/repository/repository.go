package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repository is a thin generic gorm store for a single model type.
type Repository[T any] interface {
	Create(ctx context.Context, record *T) error
	CreateTx(ctx context.Context, tx *gorm.DB, record *T) error
	First(ctx context.Context, conds ...any) (*T, error)
	Find(ctx context.Context, filter map[string]any, opts ...QueryOption) ([]T, error)
}

type store[T any] struct {
	db *gorm.DB
}

// ProvideStore builds a Repository backed by the given connection.
func ProvideStore[T any](db *gorm.DB) Repository[T] {
	return &store[T]{db: db}
}

func (s *store[T]) Create(ctx context.Context, record *T) error {
	return s.db.WithContext(ctx).Create(record).Error
}

func (s *store[T]) CreateTx(ctx context.Context, tx *gorm.DB, record *T) error {
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx).Create(record).Error
}

func (s *store[T]) First(ctx context.Context, conds ...any) (*T, error) {
	var record T
	err := s.db.WithContext(ctx).First(&record, conds...).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *store[T]) Find(ctx context.Context, filter map[string]any, opts ...QueryOption) ([]T, error) {
	query := s.db.WithContext(ctx)
	if len(filter) > 0 {
		query = query.Where(filter)
	}
	for _, opt := range opts {
		query = opt(query)
	}
	var records []T
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// QueryOption customizes a Find query.
type QueryOption func(*gorm.DB) *gorm.DB

// WithLimit bounds the number of returned rows.
func WithLimit(limit int) QueryOption {
	return func(query *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return query
		}
		return query.Limit(limit)
	}
}

// WithOrder applies an ORDER BY clause.
func WithOrder(order string) QueryOption {
	return func(query *gorm.DB) *gorm.DB {
		if order == "" {
			return query
		}
		return query.Order(order)
	}
}
