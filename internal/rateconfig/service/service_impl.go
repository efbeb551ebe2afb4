package service

import (
	"context"
	"time"

	"github.com/smallbiznis/rewardly/internal/cache"
	"github.com/smallbiznis/rewardly/internal/clock"
	"github.com/smallbiznis/rewardly/internal/config"
	rateconfigdomain "github.com/smallbiznis/rewardly/internal/rateconfig/domain"
	"github.com/smallbiznis/rewardly/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const snapshotCacheKey = "rateconfig"

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Cfg   config.Config
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	ttl   time.Duration

	rateRepo   repository.Repository[rateconfigdomain.RolePointRate]
	bucketRepo repository.Repository[rateconfigdomain.CommissionBucketRate]
	tierRepo   repository.Repository[rateconfigdomain.CoachTier]
	seasonRepo repository.Repository[rateconfigdomain.SeasonWindow]
	bonusRepo  repository.Repository[rateconfigdomain.BonusSetting]

	snapshots *cache.TTLCache[string, rateconfigdomain.Snapshot]
}

func NewService(p ServiceParam) rateconfigdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("rateconfig.service"),
		clock: p.Clock,
		ttl:   p.Cfg.ConfigCacheTTL,

		rateRepo:   repository.ProvideStore[rateconfigdomain.RolePointRate](p.DB),
		bucketRepo: repository.ProvideStore[rateconfigdomain.CommissionBucketRate](p.DB),
		tierRepo:   repository.ProvideStore[rateconfigdomain.CoachTier](p.DB),
		seasonRepo: repository.ProvideStore[rateconfigdomain.SeasonWindow](p.DB),
		bonusRepo:  repository.ProvideStore[rateconfigdomain.BonusSetting](p.DB),

		snapshots: cache.NewTTLCache[string, rateconfigdomain.Snapshot](),
	}
}

// Snapshot returns the current rate/tier configuration as an immutable
// value, served from a short-lived cache on the hot path.
func (s *Service) Snapshot(ctx context.Context) (rateconfigdomain.Snapshot, error) {
	if snapshot, ok := s.snapshots.Get(snapshotCacheKey); ok {
		return snapshot, nil
	}

	snapshot, err := s.load(ctx)
	if err != nil {
		return rateconfigdomain.Snapshot{}, err
	}

	s.snapshots.Set(snapshotCacheKey, snapshot, s.ttl)
	return snapshot, nil
}

func (s *Service) load(ctx context.Context) (rateconfigdomain.Snapshot, error) {
	snapshot := rateconfigdomain.Snapshot{
		RoleRates:    map[string]int64{},
		RolePriority: rateconfigdomain.RolePriority,
		LoadedAt:     s.clock.Now(),
	}

	rates, err := s.rateRepo.Find(ctx, nil)
	if err != nil {
		return snapshot, err
	}
	for _, rate := range rates {
		snapshot.RoleRates[rate.Role] = rate.Rate
	}
	if len(snapshot.RoleRates) == 0 {
		return snapshot, rateconfigdomain.ErrIncompleteConfig
	}

	buckets, err := s.bucketRepo.Find(ctx, nil)
	if err != nil {
		return snapshot, err
	}
	seen := 0
	for _, bucket := range buckets {
		if bucket.Bucket < 1 || bucket.Bucket > 3 {
			continue
		}
		snapshot.BaseRates[bucket.Bucket-1] = bucket.BaseRate
		snapshot.LoyaltyRates[bucket.Bucket-1] = bucket.LoyaltyRate
		seen++
	}
	if seen != 3 {
		return snapshot, rateconfigdomain.ErrIncompleteConfig
	}

	tiers, err := s.tierRepo.Find(ctx, nil, repository.WithOrder("min_referrals ASC"))
	if err != nil {
		return snapshot, err
	}
	for i, tier := range tiers {
		snapshot.Tiers = append(snapshot.Tiers, rateconfigdomain.Tier{
			Name:         tier.Name,
			Ordinal:      i,
			MinReferrals: tier.MinReferrals,
			BonusPercent: tier.BonusPercent,
		})
	}

	seasons, err := s.seasonRepo.Find(ctx, nil)
	if err != nil {
		return snapshot, err
	}
	for _, season := range seasons {
		snapshot.Seasons = append(snapshot.Seasons, rateconfigdomain.Season{
			Name:         season.Name,
			StartMonth:   season.StartMonth,
			StartDay:     season.StartDay,
			EndMonth:     season.EndMonth,
			EndDay:       season.EndDay,
			BonusPercent: season.BonusPercent,
		})
	}

	bonuses, err := s.bonusRepo.Find(ctx, nil, repository.WithLimit(1))
	if err != nil {
		return snapshot, err
	}
	if len(bonuses) == 0 {
		return snapshot, rateconfigdomain.ErrIncompleteConfig
	}
	bonus := bonuses[0]
	snapshot.RetentionSecondSeason = bonus.RetentionSecondSeason
	snapshot.RetentionThirdSeason = bonus.RetentionThirdSeason
	snapshot.NetworkMinReferrals = bonus.NetworkMinReferrals
	snapshot.NetworkBonusPerReferral = bonus.NetworkBonusPerReferral
	snapshot.WeekendPercent = bonus.WeekendPercent

	return snapshot, nil
}
