package audit

import (
	"time"

	"github.com/sentinelops/arbiter/types"
)

// Stats summarizes trail contents over a window
type Stats struct {
	TotalEntries  int                          `json:"total_entries"`
	ByTransition  map[types.ActionStatus]int   `json:"by_transition"`
	DistinctIDs   int                          `json:"distinct_action_ids"`
	FirstSequence int64                        `json:"first_sequence"`
	LastSequence  int64                        `json:"last_sequence"`
}

// StatsSince computes trail statistics for entries after the given time
func (t *Trail) StatsSince(since time.Time) (Stats, error) {
	stats := Stats{
		ByTransition: make(map[types.ActionStatus]int),
	}
	seen := make(map[string]struct{})

	err := Replay(t.dir, since, func(e *types.AuditEntry) error {
		stats.TotalEntries++
		stats.ByTransition[e.NewStatus]++
		seen[e.ActionID] = struct{}{}

		if stats.FirstSequence == 0 || e.Sequence < stats.FirstSequence {
			stats.FirstSequence = e.Sequence
		}
		if e.Sequence > stats.LastSequence {
			stats.LastSequence = e.Sequence
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}

	stats.DistinctIDs = len(seen)
	return stats, nil
}
