package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	referraldomain "github.com/smallbiznis/rewardly/internal/referral/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p ServiceParam) referraldomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("referral.service"),
	}
}

// ReferralCount returns how many customers the coach personally referred.
func (s *Service) ReferralCount(ctx context.Context, coachID snowflake.ID) (int64, error) {
	if coachID == 0 {
		return 0, referraldomain.ErrInvalidCoach
	}
	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM referrals
		 WHERE coach_id = ?`,
		coachID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// PurchaseCountWithReferrer counts completed orders the customer placed
// under this coach, including the order being processed.
func (s *Service) PurchaseCountWithReferrer(ctx context.Context, customerID, coachID snowflake.ID) (int, error) {
	if customerID == 0 {
		return 0, referraldomain.ErrInvalidCustomer
	}
	if coachID == 0 {
		return 0, referraldomain.ErrInvalidCoach
	}
	var count int
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM referred_orders
		 WHERE customer_id = ? AND coach_id = ?`,
		customerID,
		coachID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

// SeasonsWithReferrer counts the distinct program seasons in which the
// customer ordered under this coach.
func (s *Service) SeasonsWithReferrer(ctx context.Context, customerID, coachID snowflake.ID) (int, error) {
	if customerID == 0 {
		return 0, referraldomain.ErrInvalidCustomer
	}
	if coachID == 0 {
		return 0, referraldomain.ErrInvalidCoach
	}
	var count int
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(DISTINCT season)
		 FROM referred_orders
		 WHERE customer_id = ? AND coach_id = ?`,
		customerID,
		coachID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
