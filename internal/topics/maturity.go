package topics

import (
	"errors"

	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
)

// ErrEmptyPool is returned when a phase is requested for an empty pool.
var ErrEmptyPool = errors.New("candidate pool is empty")

// Maturity labels how much telemetry a single candidate has accumulated.
type Maturity int

const (
	MaturityInsufficient Maturity = iota
	MaturitySufficient
	MaturityMature
)

func (m Maturity) String() string {
	switch m {
	case MaturitySufficient:
		return "sufficient"
	case MaturityMature:
		return "mature"
	default:
		return "insufficient"
	}
}

// Phase is the explore/exploit balance of a whole pool.
type Phase string

const (
	// PhaseA is exploration-heavy: the pool is mostly untested.
	PhaseA Phase = "A"
	// PhaseB mixes exploration and exploitation evenly.
	PhaseB Phase = "B"
	// PhaseC is exploitation-heavy: enough topics have mature data.
	PhaseC Phase = "C"
)

// Thresholds are tuning constants for maturity and phase detection.
// The defaults carry no derivation; tune them per deployment.
type Thresholds struct {
	SufficientImpressions float64
	SufficientClicks      float64
	MatureImpressions     float64
	MatureClicks          float64
	// SufficientRatio is the share of sufficient-or-mature candidates below which a pool can stay in phase A.
	SufficientRatio float64
	// MatureCount is the number of mature candidates that switches a pool to phase C.
	MatureCount int
}

// DefaultThresholds returns the stock tuning.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SufficientImpressions: 50,
		SufficientClicks:      5,
		MatureImpressions:     300,
		MatureClicks:          20,
		SufficientRatio:       0.5,
		MatureCount:           3,
	}
}

func (th Thresholds) normalized() Thresholds {
	def := DefaultThresholds()
	if th.SufficientImpressions <= 0 {
		th.SufficientImpressions = def.SufficientImpressions
	}
	if th.SufficientClicks <= 0 {
		th.SufficientClicks = def.SufficientClicks
	}
	if th.MatureImpressions <= 0 {
		th.MatureImpressions = def.MatureImpressions
	}
	if th.MatureClicks <= 0 {
		th.MatureClicks = def.MatureClicks
	}
	if th.SufficientRatio <= 0 || th.SufficientRatio > 1 {
		th.SufficientRatio = def.SufficientRatio
	}
	if th.MatureCount <= 0 {
		th.MatureCount = def.MatureCount
	}
	return th
}

// Maturity classifies a candidate by its impression and click volume.
func (th Thresholds) Maturity(c domain.TopicCandidate) Maturity {
	impressions, clicks := volume(c.Telemetry)
	switch {
	case impressions >= th.MatureImpressions || clicks >= th.MatureClicks:
		return MaturityMature
	case impressions >= th.SufficientImpressions || clicks >= th.SufficientClicks:
		return MaturitySufficient
	default:
		return MaturityInsufficient
	}
}

// Phase classifies the maturity distribution of a pool.
func (th Thresholds) Phase(pool []domain.TopicCandidate) (Phase, error) {
	if len(pool) == 0 {
		return "", ErrEmptyPool
	}

	var sufficient, mature int
	for _, c := range pool {
		switch th.Maturity(c) {
		case MaturityMature:
			mature++
			sufficient++
		case MaturitySufficient:
			sufficient++
		}
	}

	ratio := float64(sufficient) / float64(len(pool))
	switch {
	case mature >= th.MatureCount:
		return PhaseC, nil
	case ratio < th.SufficientRatio:
		return PhaseA, nil
	default:
		return PhaseB, nil
	}
}

// volume prefers the 7-day window, then aggregate totals, then the 1-day window.
func volume(t domain.Telemetry) (impressions, clicks float64) {
	impressions = value(firstSet(t.Impressions7d, t.Impressions, t.Impressions1d))
	clicks = value(firstSet(t.Clicks7d, t.Clicks, t.Clicks1d))
	return impressions, clicks
}
