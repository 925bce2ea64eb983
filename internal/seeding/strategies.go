package seeding

import (
	"context"
	"fmt"
	"strings"

	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
)

// PoolStrategy seeds plain candidates. For hierarchical intents these are the themes.
type PoolStrategy struct{}

func (PoolStrategy) Source() domain.Source { return domain.SourcePool }

func (PoolStrategy) Seed(_ context.Context, req Request) ([]domain.TopicCandidate, error) {
	var out []domain.TopicCandidate
	for _, kw := range keywords(req.Keywords) {
		out = append(out, candidate(req, domain.SourcePool, kw, req.GroupKey))
	}
	return out, nil
}

// PainRuleStrategy seeds child candidates attached to a theme through their group key.
type PainRuleStrategy struct{}

func (PainRuleStrategy) Source() domain.Source { return domain.SourcePainRule }

func (PainRuleStrategy) Seed(_ context.Context, req Request) ([]domain.TopicCandidate, error) {
	if strings.TrimSpace(req.GroupKey) == "" {
		return nil, fmt.Errorf("pain rule seeds for site %s need a group key", req.SiteID)
	}
	var out []domain.TopicCandidate
	for _, kw := range keywords(req.Keywords) {
		out = append(out, candidate(req, domain.SourcePainRule, kw, req.GroupKey))
	}
	return out, nil
}

// RentalTypeStrategy expands product types into "<type> rental" keywords.
type RentalTypeStrategy struct{}

func (RentalTypeStrategy) Source() domain.Source { return domain.SourceRentalType }

func (RentalTypeStrategy) Seed(_ context.Context, req Request) ([]domain.TopicCandidate, error) {
	var out []domain.TopicCandidate
	for _, kind := range keywords(req.Keywords) {
		groupKey := req.GroupKey
		if groupKey == "" {
			groupKey = "rental:" + strings.ReplaceAll(normalizeKeyword(kind), " ", "-")
		}
		out = append(out, candidate(req, domain.SourceRentalType, kind+" rental", groupKey))
	}
	return out, nil
}
