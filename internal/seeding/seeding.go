package seeding

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
)

// Request carries one configured seed list of a site.
type Request struct {
	SiteID   string
	Intent   domain.Intent
	GroupKey string
	Keywords []string
}

// Strategy turns a seed list into candidates of a single provenance.
type Strategy interface {
	Source() domain.Source
	Seed(ctx context.Context, req Request) ([]domain.TopicCandidate, error)
}

// Registry keeps a mapping from sources to their strategies.
type Registry struct {
	strategies map[domain.Source]Strategy
}

// NewRegistry builds a registry holding the pool, pain rule and rental type strategies.
func NewRegistry() *Registry {
	r := &Registry{strategies: map[domain.Source]Strategy{}}
	r.Register(PoolStrategy{})
	r.Register(PainRuleStrategy{})
	r.Register(RentalTypeStrategy{})
	return r
}

// Register adds or replaces a strategy.
func (r *Registry) Register(strategy Strategy) {
	if r.strategies == nil {
		r.strategies = map[domain.Source]Strategy{}
	}
	r.strategies[strategy.Source()] = strategy
}

// Resolve returns the strategy for a source; an empty source means pool.
func (r *Registry) Resolve(source domain.Source) (Strategy, error) {
	if source == "" {
		source = domain.SourcePool
	}
	if strategy, ok := r.strategies[source]; ok {
		return strategy, nil
	}
	return nil, fmt.Errorf("seed source %s is not registered", source)
}

// CandidateID derives a stable identifier so re-seeding updates the same row.
// A theme and a pain rule sharing a keyword get distinct ids.
func CandidateID(siteID string, intent domain.Intent, source domain.Source, keyword string) string {
	name := siteID + "/" + string(intent) + "/" + string(source) + "/" + normalizeKeyword(keyword)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func candidate(req Request, source domain.Source, keyword, groupKey string) domain.TopicCandidate {
	return domain.TopicCandidate{
		ID:       CandidateID(req.SiteID, req.Intent, source, keyword),
		SiteID:   req.SiteID,
		Intent:   req.Intent,
		Keyword:  keyword,
		Status:   domain.StatusActive,
		Source:   source,
		GroupKey: groupKey,
	}
}

func normalizeKeyword(keyword string) string {
	return strings.ToLower(strings.Join(strings.Fields(keyword), " "))
}

func keywords(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.Join(strings.Fields(v), " ")
		if v == "" || seen[normalizeKeyword(v)] {
			continue
		}
		seen[normalizeKeyword(v)] = true
		out = append(out, v)
	}
	return out
}
