package topics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
	"github.com/tw20th/kangaroo-post-sub000/internal/ports"
)

// DefaultAvoidWindow is the cooldown applied when a request leaves it unset.
const DefaultAvoidWindow = 24 * time.Hour

// ErrUnknownIntent is returned for intents outside the known categories.
var ErrUnknownIntent = errors.New("unknown intent")

// PickRequest asks for the next topic of one (site, intent) scope.
type PickRequest struct {
	SiteID string
	Intent domain.Intent
	// AvoidWindow defaults to DefaultAvoidWindow when zero; negative disables cooldown.
	AvoidWindow time.Duration
	// ExcludeIDs are never returned, e.g. when retrying after a failed generation.
	ExcludeIDs []string
	// GroupKeyPrefixes restrict the pool to candidates whose group key has any of the prefixes.
	GroupKeyPrefixes []string
	// Now defaults to the picker clock.
	Now time.Time
}

// PickerDeps wires the driven adapters the picker reads from.
type PickerDeps struct {
	Candidates ports.CandidateRepository
	Themes     ports.ThemeSource
	Policy     *Policy
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Picker answers PickTopic requests. It never writes to the record store.
type Picker struct {
	candidates ports.CandidateRepository
	themes     ports.ThemeSource
	policy     *Policy
	logger     *slog.Logger
	clock      func() time.Time
}

// NewPicker constructs the scheduler entry point.
func NewPicker(deps PickerDeps) *Picker {
	policy := deps.Policy
	if policy == nil {
		policy = NewPolicy(DefaultOptions())
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Picker{
		candidates: deps.Candidates,
		themes:     deps.Themes,
		policy:     policy,
		logger:     deps.Logger,
		clock:      clock,
	}
}

// PickTopic returns the next topic for the scope, or nil when no candidate is eligible.
func (p *Picker) PickTopic(ctx context.Context, req PickRequest) (*domain.TopicChoice, error) {
	if !req.Intent.Valid() {
		return nil, fmt.Errorf("pick topic for site %s: %w %q", req.SiteID, ErrUnknownIntent, req.Intent)
	}
	if p.candidates == nil {
		return nil, fmt.Errorf("candidate repository is not configured")
	}

	now := req.Now
	if now.IsZero() {
		now = p.clock()
	}
	avoidWindow := req.AvoidWindow
	if avoidWindow == 0 {
		avoidWindow = DefaultAvoidWindow
	}

	records, err := p.candidates.ListActive(ctx, req.SiteID, req.Intent)
	if err != nil {
		return nil, fmt.Errorf("list candidates for %s/%s: %w", req.SiteID, req.Intent, err)
	}

	pool := preparePool(records, req)
	if len(pool) == 0 {
		p.debug("empty candidate pool", "site", req.SiteID, "intent", req.Intent, "records", len(records))
		return nil, nil
	}

	phase, err := p.policy.Thresholds().Phase(pool)
	if err != nil {
		return nil, fmt.Errorf("detect phase: %w", err)
	}

	var (
		picked domain.TopicCandidate
		ok     bool
	)
	if themes := p.themeMap(ctx, req); req.Intent.Hierarchical() && len(themes) > 0 {
		picked, ok = p.policy.ResolveHierarchical(pool, themes, phase, now, avoidWindow)
	} else {
		picked, ok = p.policy.Select(pool, phase, now, avoidWindow)
	}
	if !ok {
		return nil, nil
	}

	p.debug("topic picked",
		"site", req.SiteID,
		"intent", req.Intent,
		"phase", phase,
		"pool", len(pool),
		"picked", picked.ID,
		"keyword", picked.Keyword,
		"score", picked.PerformanceScore,
		"scorer", scorerName(picked.Telemetry),
	)

	return &domain.TopicChoice{
		ID:           picked.ID,
		Keyword:      picked.Keyword,
		Intent:       picked.Intent,
		RawCandidate: picked,
	}, nil
}

func (p *Picker) themeMap(ctx context.Context, req PickRequest) domain.ThemeMap {
	if !req.Intent.Hierarchical() || p.themes == nil {
		return nil
	}
	themes, err := p.themes.ThemeMap(ctx, req.SiteID, req.Intent)
	if err != nil {
		if p.logger != nil {
			p.logger.Warn("theme map unavailable, using flat selection",
				"site", req.SiteID, "intent", req.Intent, "error", err)
		}
		return nil
	}
	return themes
}

// preparePool keeps eligible records of the requested scope and normalizes
// their numbers.
func preparePool(records []domain.TopicCandidate, req PickRequest) []domain.TopicCandidate {
	excluded := make(map[string]struct{}, len(req.ExcludeIDs))
	for _, id := range req.ExcludeIDs {
		excluded[id] = struct{}{}
	}

	pool := make([]domain.TopicCandidate, 0, len(records))
	for _, c := range records {
		if c.SiteID != req.SiteID || c.Intent != req.Intent || c.Status != domain.StatusActive {
			continue
		}
		if _, ok := excluded[c.ID]; ok {
			continue
		}
		if !hasAnyPrefix(c.GroupKey, req.GroupKeyPrefixes) {
			continue
		}

		c.UsageCount = max(c.UsageCount, 0)
		c.PerformanceScore = Score(c)
		pool = append(pool, c)
	}
	return pool
}

// scorerName labels the strategy behind a score; "persisted" when no telemetry exists.
func scorerName(t domain.Telemetry) string {
	if s := ScorerFor(t); s != nil {
		return s.Name()
	}
	return "persisted"
}

func hasAnyPrefix(key string, prefixes []string) bool {
	if len(prefixes) == 0 {
		return true
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

func (p *Picker) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
