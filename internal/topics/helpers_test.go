package topics

import (
	"math/rand/v2"
	"time"

	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
)

func num(v float64) *float64 {
	return &v
}

func newCandidate(id string, usage int) domain.TopicCandidate {
	return domain.TopicCandidate{
		ID:         id,
		SiteID:     "site-1",
		Intent:     domain.IntentService,
		Keyword:    "keyword " + id,
		Status:     domain.StatusActive,
		UsageCount: usage,
		Source:     domain.SourcePool,
	}
}

func matureCandidate(id string, score float64) domain.TopicCandidate {
	c := newCandidate(id, 3)
	c.Telemetry = domain.Telemetry{Impressions7d: num(400), Clicks7d: num(25)}
	c.PerformanceScore = score
	return c
}

func sufficientCandidate(id string, score float64) domain.TopicCandidate {
	c := newCandidate(id, 1)
	c.Telemetry = domain.Telemetry{Impressions7d: num(80), Clicks7d: num(2)}
	c.PerformanceScore = score
	return c
}

func usedAt(c domain.TopicCandidate, at time.Time) domain.TopicCandidate {
	c.LastUsedAt = &at
	return c
}

// sequenceRNG replays fixed values in a loop.
type sequenceRNG struct {
	values []float64
	i      int
}

func (s *sequenceRNG) Float64() float64 {
	v := s.values[s.i%len(s.values)]
	s.i++
	return v
}

// branchRNG forces the branch draw of every Select and randomizes the pick draw.
type branchRNG struct {
	branch float64
	picks  *rand.Rand
	calls  int
}

func (b *branchRNG) Float64() float64 {
	b.calls++
	if b.calls%2 == 1 {
		return b.branch
	}
	return b.picks.Float64()
}

func seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func ids(pool []domain.TopicCandidate) map[string]bool {
	out := make(map[string]bool, len(pool))
	for _, c := range pool {
		out[c.ID] = true
	}
	return out
}
