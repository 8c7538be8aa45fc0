// Package scheduler runs the retention sweep on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// stopTimeout bounds how long Stop waits for a running sweep.
const stopTimeout = 30 * time.Second

// Scheduler triggers a SweepService on a standard 5-field cron spec.
type Scheduler struct {
	spec    string
	sweeper SweepService
	cron    *cron.Cron
	logger  *slog.Logger

	mu  sync.Mutex
	ctx context.Context
}

// cronLogger routes cron's own logging to slog.
type cronLogger struct {
	logger *slog.Logger
}

// Info logs routine messages about cron's operation.
func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

// Error logs an error condition.
func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// New creates a Scheduler. The cron expression is validated here so a bad schedule
// fails at startup.
func New(spec string, sweeper SweepService, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	s := &Scheduler{
		spec:    spec,
		sweeper: sweeper,
		logger:  logger,
		ctx:     context.Background(),
	}
	s.cron = cron.New(
		cron.WithLogger(cronLogger{logger}),
		cron.WithChain(
			cron.Recover(cronLogger{logger}),
			cron.SkipIfStillRunning(cronLogger{logger}),
		),
	)
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing on schedule. Sweeps run with ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.Info("starting scheduler", "schedule", s.spec)
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to return.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	ctx, cancel := context.WithTimeout(s.cron.Stop(), stopTimeout)
	defer cancel()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// Next returns when the sweep fires next, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// run performs one sweep. Failures are logged and never stop the schedule.
func (s *Scheduler) run() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	start := time.Now()
	n, err := s.sweeper.Sweep(ctx)
	if err != nil {
		s.logger.Error("retention sweep failed", "error", err)
		return
	}
	s.logger.Debug("retention sweep ran", "deleted", n, "duration_ms", time.Since(start).Milliseconds())
}
