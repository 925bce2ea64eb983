package topics

import (
	"cmp"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
)

// RNG is the randomness source of the policy; *rand.Rand satisfies it.
type RNG interface {
	Float64() float64
}

// globalRNG draws from the runtime-seeded, goroutine-safe math/rand/v2 source.
type globalRNG struct{}

func (globalRNG) Float64() float64 {
	return rand.Float64()
}

// Options tune the selection policy.
type Options struct {
	Thresholds Thresholds
	// TopN is the size of the top-by-score slice exploitation draws from.
	TopN int
	// ExploitProbabilityB and ExploitProbabilityC are the odds of running
	// exploitation in phases B and C. Zero means unset.
	ExploitProbabilityB float64
	ExploitProbabilityC float64
	// RNG defaults to a non-deterministic source when nil. A policy shared by
	// concurrent pickers needs a goroutine-safe RNG; *rand.Rand is not.
	RNG RNG
}

// DefaultOptions returns the stock policy tuning.
func DefaultOptions() Options {
	return Options{
		Thresholds:          DefaultThresholds(),
		TopN:                5,
		ExploitProbabilityB: 0.5,
		ExploitProbabilityC: 0.8,
	}
}

// Policy mixes exploration and exploitation according to the pool phase.
type Policy struct {
	thresholds Thresholds
	topN       int
	exploitB   float64
	exploitC   float64
	rng        RNG
}

// NewPolicy builds a policy; zero or out-of-range options fall back to defaults.
func NewPolicy(opts Options) *Policy {
	def := DefaultOptions()
	if opts.TopN <= 0 {
		opts.TopN = def.TopN
	}
	if opts.ExploitProbabilityB <= 0 || opts.ExploitProbabilityB > 1 {
		opts.ExploitProbabilityB = def.ExploitProbabilityB
	}
	if opts.ExploitProbabilityC <= 0 || opts.ExploitProbabilityC > 1 {
		opts.ExploitProbabilityC = def.ExploitProbabilityC
	}
	if opts.RNG == nil {
		opts.RNG = globalRNG{}
	}

	return &Policy{
		thresholds: opts.Thresholds.normalized(),
		topN:       opts.TopN,
		exploitB:   opts.ExploitProbabilityB,
		exploitC:   opts.ExploitProbabilityC,
		rng:        opts.RNG,
	}
}

// Thresholds exposes the maturity tuning the policy classifies with.
func (p *Policy) Thresholds() Thresholds {
	return p.thresholds
}

// Select returns one candidate for the given phase, or false for an empty pool.
func (p *Policy) Select(pool []domain.TopicCandidate, phase Phase, now time.Time, avoidWindow time.Duration) (domain.TopicCandidate, bool) {
	if len(pool) == 0 {
		return domain.TopicCandidate{}, false
	}

	var (
		exploitPool []domain.TopicCandidate
		probability float64
	)
	switch phase {
	case PhaseB:
		exploitPool = p.atLeast(pool, MaturitySufficient)
		probability = p.exploitB
	case PhaseC:
		exploitPool = p.atLeast(pool, MaturityMature)
		if len(exploitPool) == 0 {
			exploitPool = p.atLeast(pool, MaturitySufficient)
		}
		probability = p.exploitC
	default:
		return p.explore(pool, now, avoidWindow)
	}

	if len(exploitPool) == 0 {
		exploitPool = pool
	}
	explorePool := p.below(pool, MaturitySufficient)
	if len(explorePool) == 0 {
		explorePool = pool
	}

	if p.rng.Float64() < probability {
		if c, ok := p.exploit(exploitPool, now, avoidWindow); ok {
			return c, true
		}
	}
	return p.explore(explorePool, now, avoidWindow)
}

// explore rotates through the least-used candidates.
func (p *Policy) explore(pool []domain.TopicCandidate, now time.Time, avoidWindow time.Duration) (domain.TopicCandidate, bool) {
	if len(pool) == 0 {
		return domain.TopicCandidate{}, false
	}

	minUsage := pool[0].UsageCount
	for _, c := range pool[1:] {
		minUsage = min(minUsage, c.UsageCount)
	}

	rotation := make([]domain.TopicCandidate, 0, len(pool))
	for _, c := range pool {
		if c.UsageCount <= minUsage+1 {
			rotation = append(rotation, c)
		}
	}

	return p.pick(FilterCooldown(rotation, now, avoidWindow))
}

// exploit draws uniformly from the top-N candidates by performance score.
func (p *Policy) exploit(pool []domain.TopicCandidate, now time.Time, avoidWindow time.Duration) (domain.TopicCandidate, bool) {
	ranked := slices.Clone(FilterCooldown(pool, now, avoidWindow))
	if len(ranked) == 0 {
		return domain.TopicCandidate{}, false
	}

	slices.SortStableFunc(ranked, func(a, b domain.TopicCandidate) int {
		if c := cmp.Compare(b.PerformanceScore, a.PerformanceScore); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	return p.pick(ranked[:min(p.topN, len(ranked))])
}

func (p *Policy) pick(pool []domain.TopicCandidate) (domain.TopicCandidate, bool) {
	if len(pool) == 0 {
		return domain.TopicCandidate{}, false
	}
	idx := int(p.rng.Float64() * float64(len(pool)))
	idx = max(0, min(idx, len(pool)-1))
	return pool[idx], true
}

func (p *Policy) atLeast(pool []domain.TopicCandidate, level Maturity) []domain.TopicCandidate {
	var out []domain.TopicCandidate
	for _, c := range pool {
		if p.thresholds.Maturity(c) >= level {
			out = append(out, c)
		}
	}
	return out
}

func (p *Policy) below(pool []domain.TopicCandidate, level Maturity) []domain.TopicCandidate {
	var out []domain.TopicCandidate
	for _, c := range pool {
		if p.thresholds.Maturity(c) < level {
			out = append(out, c)
		}
	}
	return out
}
