package topics

import (
	"time"

	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
)

// FilterCooldown drops candidates used within avoidWindow of now. If nothing
// would survive, the original pool is returned unchanged. A non-positive
// window disables the filter.
func FilterCooldown(pool []domain.TopicCandidate, now time.Time, avoidWindow time.Duration) []domain.TopicCandidate {
	if avoidWindow <= 0 || len(pool) == 0 {
		return pool
	}

	kept := make([]domain.TopicCandidate, 0, len(pool))
	for _, c := range pool {
		if c.LastUsedAt != nil && now.Sub(*c.LastUsedAt) < avoidWindow {
			continue
		}
		kept = append(kept, c)
	}

	if len(kept) == 0 {
		return pool
	}
	return kept
}
