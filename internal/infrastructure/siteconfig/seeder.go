package siteconfig

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tw20th/kangaroo-post-sub000/internal/config"
	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
	"github.com/tw20th/kangaroo-post-sub000/internal/ports"
	"github.com/tw20th/kangaroo-post-sub000/internal/seeding"
)

// Seeder upserts configured seed keywords through registered strategies.
type Seeder struct {
	registry *seeding.Registry
	sites    []config.SiteConfig
	writer   ports.CandidateWriter
	logger   *slog.Logger
}

// NewSeeder wires the strategy registry with config-defined sites.
func NewSeeder(reg *seeding.Registry, sites []config.SiteConfig, writer ports.CandidateWriter, log *slog.Logger) *Seeder {
	return &Seeder{
		registry: reg,
		sites:    sites,
		writer:   writer,
		logger:   log,
	}
}

// Seed runs every site's seed lists and returns the number of upserted candidates.
func (s *Seeder) Seed(ctx context.Context) (int, error) {
	if s.registry == nil {
		return 0, fmt.Errorf("seeding registry is not configured")
	}
	if s.writer == nil {
		return 0, fmt.Errorf("candidate writer is not configured")
	}

	total := 0
	for _, site := range s.sites {
		for _, seed := range site.Seeds {
			intent := domain.Intent(seed.Intent)
			if !intent.Valid() {
				return total, fmt.Errorf("site %s: unknown seed intent %q", site.ID, seed.Intent)
			}

			strategy, err := s.registry.Resolve(domain.Source(seed.Source))
			if err != nil {
				return total, fmt.Errorf("site %s: %w", site.ID, err)
			}

			candidates, err := strategy.Seed(ctx, seeding.Request{
				SiteID:   site.ID,
				Intent:   intent,
				GroupKey: seed.GroupKey,
				Keywords: seed.Keywords,
			})
			if err != nil {
				return total, fmt.Errorf("seed site %s: %w", site.ID, err)
			}

			for _, c := range candidates {
				if err := s.writer.UpsertCandidate(ctx, c); err != nil {
					return total, fmt.Errorf("seed site %s: %w", site.ID, err)
				}
				total++
			}
			s.debug("seeded candidates", "site", site.ID, "intent", intent, "source", strategy.Source(), "count", len(candidates))
		}
	}
	return total, nil
}

func (s *Seeder) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
