// Package worker runs background jobs on a cron schedule.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"ledger-transfers/internal/service"
)

// Reconciler is the job the scheduler drives.
type Reconciler interface {
	Run(ctx context.Context) (service.ReconcileReport, error)
}

// ReconcileScheduler runs the reconciler periodically. Overlapping runs are
// skipped, not queued.
type ReconcileScheduler struct {
	cron       *cron.Cron
	reconciler Reconciler
	schedule   string
	timeout    time.Duration
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewReconcileScheduler(reconciler Reconciler, schedule string, timeout time.Duration, logger *slog.Logger) *ReconcileScheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	ctx, cancel := context.WithCancel(context.Background())
	return &ReconcileScheduler{
		cron:       c,
		reconciler: reconciler,
		schedule:   schedule,
		timeout:    timeout,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start registers the job and starts the cron loop.
func (s *ReconcileScheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.RunOnce); err != nil {
		s.logger.Error("Failed to schedule reconciliation job", "schedule", s.schedule, "error", err)
		return err
	}
	s.logger.Info("Scheduled reconciliation job", "schedule", s.schedule)
	s.cron.Start()
	return nil
}

// RunOnce executes a single reconciliation pass.
func (s *ReconcileScheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	report, err := s.reconciler.Run(ctx)
	if err != nil {
		s.logger.Error("Reconciliation pass failed", "error", err)
		return
	}
	if len(report.ManualReview) > 0 {
		s.logger.Warn("Transactions need manual review", "transaction_ids", report.ManualReview)
	}
}

// Stop cancels a running pass and waits for it to return.
func (s *ReconcileScheduler) Stop(ctx context.Context) error {
	s.cancel()
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
