package topics

import (
	"math"

	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
)

const (
	maxScore = 100.0

	spikeMaxViews   = 20.0
	spikeCTRFactor  = 2.0
	richnessVolume  = 100.0
	richnessCTRMax  = 0.4
	longWindowShare = 0.7

	ctrWeight         = 60.0
	viewsWeight       = 20.0
	impressionsWeight = 20.0
)

// Scorer turns telemetry into a performance score used by exploitation.
type Scorer interface {
	Name() string
	Score(t domain.Telemetry) float64
}

// WindowScorer blends 1-day and 7-day telemetry into a 0-100 score.
type WindowScorer struct{}

// AggregateScorer scores aggregate-only telemetry as impressions * ctr * positionBoost.
type AggregateScorer struct{}

var (
	_ Scorer = WindowScorer{}
	_ Scorer = AggregateScorer{}
)

// ScorerFor picks the strategy matching the populated telemetry fields.
// It returns nil when the telemetry is empty.
func ScorerFor(t domain.Telemetry) Scorer {
	switch {
	case t.HasWindows():
		return WindowScorer{}
	case t.HasAggregate():
		return AggregateScorer{}
	default:
		return nil
	}
}

// Score recomputes the candidate's performance score in [0, 100]. Candidates
// without any telemetry keep their persisted score, clamped to that range.
func Score(c domain.TopicCandidate) float64 {
	scorer := ScorerFor(c.Telemetry)
	if scorer == nil {
		return clamp(nonNegative(c.PerformanceScore), 0, maxScore)
	}
	return scorer.Score(c.Telemetry)
}

// Name identifies the strategy in logs.
func (WindowScorer) Name() string {
	return "window"
}

// Score implements the richness-weighted CTR/volume blend.
func (WindowScorer) Score(t domain.Telemetry) float64 {
	imp7 := value(t.Impressions7d)
	imp1 := shortWindow(t.Impressions1d, t.Impressions7d)

	views7 := value(firstSet(t.Views7d, t.Clicks7d))
	views1 := shortWindow(firstSet(t.Views1d, t.Clicks1d), firstSet(t.Views7d, t.Clicks7d))

	ctr7 := value(t.CTR7d)
	ctr1 := shortWindow(t.CTR1d, t.CTR7d)

	// a lucky day on a tiny sample must not dominate
	if imp1 > 0 && imp7 > 0 && ctr1 > spikeCTRFactor*ctr7 && views1 < spikeMaxViews {
		ctr1 = ctr7
	}

	ctr1 = clamp(ctr1/100, 0, 1)
	ctr7 = clamp(ctr7/100, 0, 1)

	logViews1 := math.Log10(views1 + 1)
	logViews7 := math.Log10(views7 + 1)
	logImp1 := math.Log10(imp1 + 1)
	logImp7 := math.Log10(imp7 + 1)

	richness := math.Min(1, (views1+imp1)/richnessVolume)
	shortShare := richnessCTRMax * richness

	ctrBlend := ctr7*(1-shortShare) + ctr1*shortShare
	viewsBlend := logViews7*longWindowShare + logViews1*(1-longWindowShare)
	impBlend := logImp7*longWindowShare + logImp1*(1-longWindowShare)

	score := ctrBlend*ctrWeight + viewsBlend*viewsWeight + impBlend*impressionsWeight
	return clamp(score, 0, maxScore)
}

// Name identifies the strategy in logs.
func (AggregateScorer) Name() string {
	return "aggregate"
}

// Score multiplies reach by clickability, boosted for top search positions,
// clipped to the same 0-100 range as WindowScorer.
func (AggregateScorer) Score(t domain.Telemetry) float64 {
	return clamp(value(t.Impressions)*value(t.CTR)*positionBoost(t.Position), 0, maxScore)
}

func positionBoost(position *float64) float64 {
	if position == nil {
		return 1.0
	}
	rank := math.Round(value(position))
	switch {
	case rank >= 1 && rank <= 3:
		return 1.2
	case rank >= 4 && rank <= 10:
		return 1.1
	default:
		return 1.0
	}
}

// shortWindow defaults a missing 1-day value to the 7-day value.
func shortWindow(short, long *float64) float64 {
	if short == nil && long != nil {
		return value(long)
	}
	return value(short)
}

func firstSet(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// value reads an optional number; absent, NaN, infinite and negative values count as zero.
func value(p *float64) float64 {
	if p == nil {
		return 0
	}
	return nonNegative(*p)
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
