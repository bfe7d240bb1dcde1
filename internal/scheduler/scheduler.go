package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"announcement_relay/internal/config"
	"announcement_relay/internal/domain"
)

// Syncer defines the interface for dispatch runs.
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncStats, error)
}

type Scheduler struct {
	syncer   Syncer
	schedule string
	timeout  time.Duration
	parser   cron.Parser
	logger   *slog.Logger
}

func NewScheduler(syncer Syncer, cfg config.DispatchConfig, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		schedule: cfg.Schedule,
		timeout:  cfg.Timeout,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:   logger.With("component", "scheduler"),
	}
}

// Start runs the syncer once, then on every tick of the schedule until ctx
// is done. The first run and the scheduled ones share one job, so a tick
// that fires while any run is still in progress is skipped. A panicking run
// is logged and does not stop the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	log := cronLogger{s.logger}
	job := cron.NewChain(cron.SkipIfStillRunning(log), cron.Recover(log)).
		Then(cron.FuncJob(func() { s.runSync(ctx) }))

	c := cron.New(cron.WithParser(s.parser), cron.WithLogger(log))
	if _, err := c.AddJob(s.schedule, job); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", s.schedule, err)
	}

	s.logger.Info("scheduler started", "schedule", s.schedule)

	c.Start()
	first := make(chan struct{})
	go func() {
		defer close(first)
		job.Run()
	}()

	<-ctx.Done()
	<-c.Stop().Done()
	<-first

	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

func (s *Scheduler) runSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	syncCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		syncCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	stats, err := s.syncer.Sync(syncCtx)
	if err != nil {
		s.logger.Error("sync failed", "error", err)
		return
	}

	s.logger.Info("sync completed",
		"sync_id", stats.SyncID,
		"batches", stats.Batches,
		"failed", stats.Failed,
		"duration", stats.Duration,
	)
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
