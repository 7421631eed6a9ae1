package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/couchcryptid/wildfire-dashboard-service/internal/domain"
	"github.com/robfig/cron/v3"
)

// RetryPolicy bounds the retries of the startup refresh.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxRetries      uint64
}

// Scheduler drives periodic refreshes on a cron schedule.
type Scheduler struct {
	processor *Processor
	fetch     Fetcher
	schedule  string
	retry     RetryPolicy
	logger    *slog.Logger
}

// NewScheduler creates a Scheduler. schedule accepts standard five-field cron
// expressions and descriptors such as "@every 10m".
func NewScheduler(p *Processor, fetch Fetcher, schedule string, retry RetryPolicy, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		processor: p,
		fetch:     fetch,
		schedule:  schedule,
		retry:     retry,
		logger:    logger,
	}
}

// Run performs a startup refresh (retrying data source failures with
// exponential backoff), then refreshes on schedule until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", s.schedule, err)
	}

	s.logger.Info("refresh scheduler started", "schedule", s.schedule)

	if err := s.initialRefresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("startup refresh failed, waiting for next scheduled run", "error", err)
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() { s.refreshOnce(ctx) }); err != nil {
		return fmt.Errorf("schedule refresh: %w", err)
	}
	c.Start()

	<-ctx.Done()
	s.logger.Info("refresh scheduler stopping", "reason", ctx.Err())
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) initialRefresh(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retry.InitialInterval
	bo.MaxInterval = s.retry.MaxInterval
	bo.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, s.retry.MaxRetries), ctx)

	return backoff.Retry(func() error {
		_, err := s.processor.Refresh(ctx, s.fetch)
		if err == nil {
			return nil
		}
		if errors.Is(err, domain.ErrDataSource) {
			s.logger.Warn("startup refresh failed, retrying", "error", err)
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func (s *Scheduler) refreshOnce(ctx context.Context) {
	if _, err := s.processor.Refresh(ctx, s.fetch); err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled refresh failed", "error", err)
	}
}
