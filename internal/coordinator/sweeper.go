package coordinator

import (
	"context"
	"time"

	"github.com/crumbhq/sera/internal/models"
	"github.com/crumbhq/sera/pkg/logger"
)

// Sweeper periodically asks the coordinator to remove long-expired lock rows.
// It is hygiene for the table, not a correctness mechanism; readers already
// treat expired rows as unlocked.
type Sweeper struct {
	logger      *logger.Logger
	coordinator models.Coordinator
	interval    time.Duration
}

// NewSweeper creates a new Sweeper instance
func NewSweeper(coordinator models.Coordinator, interval time.Duration, logger *logger.Logger) *Sweeper {
	return &Sweeper{
		logger:      logger,
		coordinator: coordinator,
		interval:    interval,
	}
}

// Run sweeps on every tick until the context is cancelled. A failed sweep is
// logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.coordinator.Sweep(ctx); err != nil {
				s.logger.Error("Sweep failed", "error", err)
			}
		}
	}
}
