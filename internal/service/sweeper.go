package service

import (
	"context"
	"time"
)

// sweepInterval is how often pending-removal storage locations are checked
// against their grace period.
const sweepInterval = 10 * time.Second

// StartLocationSweeper runs the background loop that physically drops
// soft-deleted storage locations once their propagation grace period has
// elapsed. It blocks until the context is cancelled, so it should be
// launched in a separate goroutine.
func (s *Service) StartLocationSweeper(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	s.logger.Info("Location sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Location sweeper stopped")
			return
		case <-ticker.C:
			s.Locations.SweepExpired()
		}
	}
}
