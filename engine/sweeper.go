package engine

import (
	"context"
	"time"

	"github.com/sentinelops/arbiter/types"
)

// ActorSweeper is recorded as the actor on expiry transitions
const ActorSweeper = "sweeper"

// DefaultSweepInterval is how often the expiry sweep runs
const DefaultSweepInterval = time.Minute

// Sweep expires pending actions older than the horizon and returns how
// many were expired. A CAS loss (a reviewer deciding mid-sweep) is not an
// error; the reviewer won.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.horizon)

	stale, err := s.ledger.List(types.ActionFilter{
		Status: types.StatusPending,
		Until:  cutoff,
	})
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range stale {
		_, err := s.ledger.Transition(stale[i].ID, types.StatusPending, types.StatusExpired, ActorSweeper, "pending past horizon", nil)
		if err != nil {
			continue
		}
		expired++
		s.metrics.RecordExpired(ctx)
		s.logger.LogTransition(ctx, stale[i].ID, string(types.StatusPending), string(types.StatusExpired), ActorSweeper)
	}

	return expired, nil
}

// RunSweeper loops the expiry sweep until the context is cancelled
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.WithContext(ctx).Error().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}
