// Package sweep soft-deletes captured requests of anonymous webhooks once
// they fall outside the retention window.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mattjoyce/hooky/internal/metrics"
	"github.com/mattjoyce/hooky/internal/storage"
	"github.com/mattjoyce/hooky/internal/store"
)

// Sweeper runs retention passes.
type Sweeper struct {
	db     storage.Handler
	store  *store.Store
	window time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Sweeper that removes anonymous requests older than window.
func New(db storage.Handler, s *store.Store, window time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		db:     db,
		store:  s,
		window: window,
		logger: logger.With("component", "sweep"),
		now:    time.Now,
	}
}

// Sweep soft-deletes every live request older than the window that belongs
// to a webhook without an owner, and returns how many it removed. Running
// it again right away removes nothing.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().UTC().Add(-s.window)
	n, err := s.store.Requests.SoftDeleteAnonymousBefore(ctx, s.db, cutoff)
	if err != nil {
		metrics.SweepFailures.Inc()
		return 0, fmt.Errorf("sweep anonymous requests: %w", err)
	}
	metrics.SweepDeleted.Add(float64(n))
	s.logger.Info("retention sweep finished", "deleted", n, "cutoff", storage.FormatTime(cutoff))
	return n, nil
}
