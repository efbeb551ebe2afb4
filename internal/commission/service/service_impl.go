package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	commissiondomain "github.com/smallbiznis/rewardly/internal/commission/domain"
	"github.com/smallbiznis/rewardly/internal/events"
	rateconfigdomain "github.com/smallbiznis/rewardly/internal/rateconfig/domain"
	referraldomain "github.com/smallbiznis/rewardly/internal/referral/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	RateConfig rateconfigdomain.Service
	Referrals  referraldomain.Service
	Outbox     *events.Outbox
}

type Service struct {
	log *zap.Logger

	rateconfig rateconfigdomain.Service
	referrals  referraldomain.Service
	outbox     *events.Outbox
}

func NewService(p ServiceParam) commissiondomain.Service {
	return &Service{
		log:        p.Log.Named("commission.service"),
		rateconfig: p.RateConfig,
		referrals:  p.Referrals,
		outbox:     p.Outbox,
	}
}

// CalculateTotalCommission runs the two-phase pipeline: resolve the
// coach's tier from the current referral count, then compute every bonus
// term independently against one immutable configuration snapshot and
// sum. No term depends on another beyond what the schedule defines.
func (s *Service) CalculateTotalCommission(ctx context.Context, order commissiondomain.Order, coachID, customerID snowflake.ID) (*commissiondomain.CommissionBreakdown, error) {
	if order.OrderID == 0 {
		return nil, commissiondomain.ErrInvalidOrder
	}
	if coachID == 0 {
		return nil, commissiondomain.ErrInvalidCoach
	}
	if customerID == 0 {
		return nil, commissiondomain.ErrInvalidCustomer
	}

	snapshot, err := s.rateconfig.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	referralCount, err := s.referrals.ReferralCount(ctx, coachID)
	if err != nil {
		return nil, err
	}
	purchaseCount, err := s.referrals.PurchaseCountWithReferrer(ctx, customerID, coachID)
	if err != nil {
		return nil, err
	}
	if purchaseCount < 1 {
		purchaseCount = 1
	}
	seasons, err := s.referrals.SeasonsWithReferrer(ctx, customerID, coachID)
	if err != nil {
		return nil, err
	}

	tier := snapshot.TierFor(referralCount)
	net := order.NetAmount()

	breakdown := &commissiondomain.CommissionBreakdown{
		BaseCommission: BaseCommission(snapshot, order, purchaseCount),
		LoyaltyBonus:   LoyaltyBonus(snapshot, order, purchaseCount),
		RetentionBonus: RetentionBonus(snapshot, seasons),
		NetworkBonus:   NetworkBonus(snapshot, referralCount),
		TierBonus:      TierBonus(tier, net),
		SeasonalBonus:  SeasonalBonus(snapshot, net, order.PlacedAt),
		WeekendBonus:   WeekendBonus(snapshot, net, order.PlacedAt),

		CoachTier:     tier.Name,
		PurchaseCount: purchaseCount,
		ReferralCount: referralCount,
		Seasons:       seasons,
	}
	breakdown.TotalAmount = breakdown.Sum()

	if err := s.outbox.Publish(ctx, events.Event{
		CustomerID: customerID,
		Type:       events.EventCommissionCalculated,
		Payload: events.CommissionPayload{
			CoachID:     coachID.String(),
			CustomerID:  customerID.String(),
			OrderID:     order.OrderID.String(),
			TotalAmount: breakdown.TotalAmount.String(),
		}.ToMap(),
	}); err != nil {
		s.log.Warn("failed to publish commission event",
			zap.String("order_id", order.OrderID.String()),
			zap.Error(err),
		)
	}

	return breakdown, nil
}
