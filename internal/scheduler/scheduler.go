package scheduler

import (
	"context"
	"time"

	"github.com/smallbiznis/rewardly/internal/clock"
	"github.com/smallbiznis/rewardly/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Scheduler drains the loyalty_events outbox on a fixed interval. Events
// are surfaced to the downstream log sink and marked published in the
// same transaction, so a crash between the two never loses an event.
type Scheduler struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock

	interval  time.Duration
	batchSize int

	done chan struct{}
}

type SchedulerParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	Cfg   config.Config
}

func NewScheduler(p SchedulerParam) *Scheduler {
	batchSize := p.Cfg.Outbox.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	interval := p.Cfg.Outbox.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Scheduler{
		db:    p.DB,
		log:   p.Log.Named("scheduler"),
		clock: p.Clock,

		interval:  interval,
		batchSize: batchSize,

		done: make(chan struct{}),
	}
}

type workEvent struct {
	ID        int64
	EventType string
	Payload   string
	CreatedAt time.Time
}

// DispatchOnce publishes one batch of pending events and reports how many
// were handled.
func (s *Scheduler) DispatchOnce(ctx context.Context) (int, error) {
	var events []workEvent
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, event_type, payload, created_at
		 FROM loyalty_events
		 WHERE published = false
		 ORDER BY id
		 LIMIT ?`,
		s.batchSize,
	).Scan(&events).Error; err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	now := s.clock.Now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, event := range events {
			if err := tx.WithContext(ctx).Exec(
				`UPDATE loyalty_events SET published = true WHERE id = ? AND published = false`,
				event.ID,
			).Error; err != nil {
				return err
			}
			s.log.Info("loyalty event published",
				zap.Int64("event_id", event.ID),
				zap.String("event_type", event.EventType),
				zap.Time("published_at", now),
			)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

func (s *Scheduler) loop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if _, err := s.DispatchOnce(ctx); err != nil {
				s.log.Warn("outbox dispatch failed", zap.Error(err))
			}
		}
	}
}

func Run(lc fx.Lifecycle, s *Scheduler) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go s.loop(ctx)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			close(s.done)
			return nil
		},
	})
}

var Module = fx.Module("scheduler",
	fx.Provide(NewScheduler),
	fx.Invoke(Run),
)
