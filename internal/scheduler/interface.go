package scheduler

import "context"

//go:generate mockgen -destination=mocks/mock_sweeper.go -package=mocks github.com/mattjoyce/hooky/internal/scheduler SweepService

// SweepService is the retention pass the scheduler triggers.
type SweepService interface {
	Sweep(ctx context.Context) (int64, error)
}
