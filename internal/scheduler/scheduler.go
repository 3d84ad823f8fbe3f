package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"shorts_pipeline/internal/domain"
)

//go:generate mockgen -source=scheduler.go -destination=mocks/mocks.go -package=mocks

// Runner runs one batch of pipeline tasks.
type Runner interface {
	RunBatch(ctx context.Context) (*domain.BatchStats, error)
}

// Config selects when batches run. Cron wins over Interval.
type Config struct {
	Interval time.Duration
	Cron     string
	Timeout  time.Duration
}

type Scheduler struct {
	runner   Runner
	schedule cron.Schedule
	timeout  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewScheduler(runner Runner, cfg Config, logger *slog.Logger) (*Scheduler, error) {
	var schedule cron.Schedule
	switch {
	case cfg.Cron != "":
		parsed, err := cron.ParseStandard(cfg.Cron)
		if err != nil {
			return nil, fmt.Errorf("parse cron %q: %w", cfg.Cron, err)
		}
		schedule = parsed
	case cfg.Interval > 0:
		schedule = cron.Every(cfg.Interval)
	default:
		return nil, fmt.Errorf("schedule needs a cron expression or a positive interval")
	}

	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		timeout:  cfg.Timeout,
		logger:   logger.With("component", "scheduler"),
		now:      time.Now,
	}, nil
}

// Start runs a batch immediately and then on every scheduled tick until ctx
// is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "timeout", s.timeout)

	s.runBatch(ctx)

	for {
		now := s.now()
		next := s.schedule.Next(now)
		s.logger.Debug("next batch scheduled", "at", next)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			s.runBatch(ctx)
		}
	}
}

func (s *Scheduler) runBatch(ctx context.Context) {
	batchCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	stats, err := s.runner.RunBatch(batchCtx)
	if err != nil {
		s.logger.Error("batch failed", "error", err)
		return
	}
	s.logger.Info("batch finished", "succeeded", stats.Succeeded, "failed", stats.Failed)
}
