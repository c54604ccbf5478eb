package engine

import (
	"context"
	"time"

	"github.com/sentinelops/arbiter/types"
)

// Stats aggregates queue activity over a window for dashboards
type Stats struct {
	Window           time.Duration              `json:"window"`
	Total            int                        `json:"total"`
	ByStatus         map[types.ActionStatus]int `json:"by_status"`
	AutoApproved     int                        `json:"auto_approved"`
	AutoApprovedFrac float64                    `json:"auto_approved_fraction"`
	FlaggedForReview int                        `json:"flagged_for_review"`
	Executed         int                        `json:"executed"`
	Failed           int                        `json:"failed"`
}

// GetStats counts actions created within the window by status. The counts
// come from a ledger snapshot; writers are never blocked beyond it.
func (s *Service) GetStats(ctx context.Context, window time.Duration) (Stats, error) {
	filter := types.ActionFilter{}
	if window > 0 {
		filter.Since = time.Now().UTC().Add(-window)
	}

	actions, err := s.ledger.List(filter)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		Window:   window,
		Total:    len(actions),
		ByStatus: make(map[types.ActionStatus]int),
	}

	for i := range actions {
		a := &actions[i]
		stats.ByStatus[a.Status]++
		if a.FlaggedForReview {
			stats.FlaggedForReview++
		}

		switch a.Status {
		case types.StatusExecuted:
			stats.Executed++
		case types.StatusFailed:
			stats.Failed++
		}

		// An action that reached executed or failed via auto-approval
		// still counts as auto-approved; DecidedBy tracks the decider.
		if a.Status == types.StatusAutoApproved || (a.DecidedBy == ActorPolicy && a.Status != types.StatusMonitorOnly && a.Status != types.StatusPending) {
			stats.AutoApproved++
		}
	}

	if stats.Total > 0 {
		stats.AutoApprovedFrac = float64(stats.AutoApproved) / float64(stats.Total)
	}

	return stats, nil
}
