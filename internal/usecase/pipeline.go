package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tw20th/kangaroo-post-sub000/internal/config"
	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
	"github.com/tw20th/kangaroo-post-sub000/internal/ports"
	"github.com/tw20th/kangaroo-post-sub000/internal/topics"
)

// TopicPicker answers scheduling requests for one scope.
type TopicPicker interface {
	PickTopic(ctx context.Context, req topics.PickRequest) (*domain.TopicChoice, error)
}

// CandidateSeeder upserts configured candidates before a cycle.
type CandidateSeeder interface {
	Seed(ctx context.Context) (int, error)
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Sites      []config.SiteConfig
	Picker     TopicPicker
	Seeder     CandidateSeeder
	Candidates ports.CandidateRepository
	Telemetry  ports.TelemetryFeed
	Scores     ports.ScoreWriter
	Generator  ports.ContentGenerator
	Drafts     ports.DraftRepository
	Usage      ports.UsageRecorder
	Notifier   ports.Notifier
	Logger     *slog.Logger

	// AvoidWindow is passed to every pick; zero uses the picker default.
	AvoidWindow time.Duration
	// Concurrency bounds how many sites run at once.
	Concurrency int
	// MaxAttempts bounds picks per scope when generation fails.
	MaxAttempts int
}

// Pipeline implements the pick -> generate -> record workflow.
type Pipeline struct {
	sites       []config.SiteConfig
	picker      TopicPicker
	seeder      CandidateSeeder
	candidates  ports.CandidateRepository
	telemetry   ports.TelemetryFeed
	scores      ports.ScoreWriter
	generator   ports.ContentGenerator
	drafts      ports.DraftRepository
	usage       ports.UsageRecorder
	notifier    ports.Notifier
	logger      *slog.Logger
	avoidWindow time.Duration
	concurrency int
	maxAttempts int
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		sites:       deps.Sites,
		picker:      deps.Picker,
		seeder:      deps.Seeder,
		candidates:  deps.Candidates,
		telemetry:   deps.Telemetry,
		scores:      deps.Scores,
		generator:   deps.Generator,
		drafts:      deps.Drafts,
		usage:       deps.Usage,
		notifier:    deps.Notifier,
		logger:      deps.Logger,
		avoidWindow: deps.AvoidWindow,
		concurrency: max(deps.Concurrency, 1),
		maxAttempts: max(deps.MaxAttempts, 1),
	}
}

// RunCycle processes every configured (site, intent) scope once.
// Scope failures do not stop the cycle; they are joined into the returned error.
func (p *Pipeline) RunCycle(ctx context.Context, now time.Time) (CycleReport, error) {
	report := CycleReport{StartedAt: now}
	if p.picker == nil {
		return report, fmt.Errorf("topic picker is not configured")
	}

	var errs []error
	if p.seeder != nil {
		n, err := p.seeder.Seed(ctx)
		if err != nil {
			p.warn("seeding failed", "error", err)
			errs = append(errs, fmt.Errorf("seed candidates: %w", err))
		}
		report.Seeded = n
	}

	perSite := make([][]ScopeResult, len(p.sites))
	var g errgroup.Group
	g.SetLimit(p.concurrency)
	for i, site := range p.sites {
		g.Go(func() error {
			perSite[i] = p.runSite(ctx, site, now)
			return nil
		})
	}
	_ = g.Wait()

	for _, results := range perSite {
		for _, res := range results {
			report.Results = append(report.Results, res)
			if res.Err != nil {
				errs = append(errs, res.Err)
			}
		}
	}

	p.info("cycle finished",
		"sites", len(p.sites),
		"generated", report.Count(ScopeGenerated),
		"picked", report.Count(ScopePicked),
		"skipped", report.Count(ScopeSkipped),
		"failed", report.Count(ScopeFailed),
	)

	if p.notifier != nil && len(report.Results) > 0 {
		if err := p.notifier.PublishReport(ctx, report.Message()); err != nil {
			errs = append(errs, fmt.Errorf("publish report: %w", err))
		}
	}

	return report, errors.Join(errs...)
}

func (p *Pipeline) runSite(ctx context.Context, site config.SiteConfig, now time.Time) []ScopeResult {
	results := make([]ScopeResult, 0, len(site.Intents))
	for _, raw := range site.Intents {
		intent := domain.Intent(strings.TrimSpace(raw))
		if err := ctx.Err(); err != nil {
			results = append(results, failed(site.ID, intent, 0, err))
			continue
		}
		results = append(results, p.runScope(ctx, site, intent, now))
	}
	return results
}

func (p *Pipeline) runScope(ctx context.Context, site config.SiteConfig, intent domain.Intent, now time.Time) ScopeResult {
	if !intent.Valid() {
		return failed(site.ID, intent, 0, fmt.Errorf("%w %q", topics.ErrUnknownIntent, intent))
	}

	if err := p.refreshTelemetry(ctx, site.ID, intent); err != nil {
		p.warn("telemetry refresh failed, using stored scores", "site", site.ID, "intent", intent, "error", err)
	}

	var (
		exclude []string
		lastErr error
	)
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		choice, err := p.picker.PickTopic(ctx, topics.PickRequest{
			SiteID:           site.ID,
			Intent:           intent,
			AvoidWindow:      p.avoidWindow,
			ExcludeIDs:       exclude,
			GroupKeyPrefixes: site.GroupKeyPrefixes[string(intent)],
			Now:              now,
		})
		if err != nil {
			return failed(site.ID, intent, attempt, err)
		}
		if choice == nil {
			if lastErr != nil {
				break
			}
			return ScopeResult{SiteID: site.ID, Intent: intent, Status: ScopeSkipped, Attempts: attempt}
		}

		if p.generator == nil {
			return ScopeResult{
				SiteID:   site.ID,
				Intent:   intent,
				Status:   ScopePicked,
				TopicID:  choice.ID,
				Keyword:  choice.Keyword,
				Attempts: attempt,
			}
		}

		draft, err := p.generator.Generate(ctx, site.ID, *choice)
		if err != nil {
			p.warn("generation failed", "site", site.ID, "intent", intent, "topic", choice.ID, "attempt", attempt, "error", err)
			lastErr = fmt.Errorf("generate %s: %w", choice.ID, err)
			exclude = append(exclude, choice.ID)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if p.drafts != nil {
			if err := p.drafts.SaveDraft(ctx, draft); err != nil {
				return failed(site.ID, intent, attempt, fmt.Errorf("save draft for %s: %w", choice.ID, err))
			}
		}
		if p.usage != nil {
			if err := p.usage.RecordUsage(ctx, choice.ID, draft.ID, now); err != nil {
				return failed(site.ID, intent, attempt, fmt.Errorf("record usage of %s: %w", choice.ID, err))
			}
		}

		return ScopeResult{
			SiteID:   site.ID,
			Intent:   intent,
			Status:   ScopeGenerated,
			TopicID:  choice.ID,
			Keyword:  choice.Keyword,
			DraftID:  draft.ID,
			Title:    draft.Title,
			Attempts: attempt,
		}
	}

	return failed(site.ID, intent, len(exclude), fmt.Errorf("no draft after %d attempts: %w", len(exclude), lastErr))
}

// refreshTelemetry stores fresh telemetry and the scores derived from it.
func (p *Pipeline) refreshTelemetry(ctx context.Context, siteID string, intent domain.Intent) error {
	if p.telemetry == nil || p.candidates == nil || p.scores == nil {
		return nil
	}

	records, err := p.candidates.ListActive(ctx, siteID, intent)
	if err != nil {
		return fmt.Errorf("list candidates: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	byID := make(map[string]domain.TopicCandidate, len(records))
	ids := make([]string, 0, len(records))
	for _, c := range records {
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	fetched, err := p.telemetry.Fetch(ctx, siteID, intent, ids)
	if err != nil {
		return fmt.Errorf("fetch telemetry: %w", err)
	}

	scores := make(map[string]float64, len(fetched))
	for id, tel := range fetched {
		c, ok := byID[id]
		if !ok {
			continue
		}
		if err := p.scores.SaveTelemetry(ctx, id, tel); err != nil {
			return fmt.Errorf("save telemetry: %w", err)
		}
		c.Telemetry = tel
		scores[id] = topics.Score(c)
	}
	if len(scores) == 0 {
		return nil
	}
	if err := p.scores.SaveScores(ctx, scores); err != nil {
		return fmt.Errorf("save scores: %w", err)
	}

	p.debug("telemetry refreshed", "site", siteID, "intent", intent, "topics", len(scores))
	return nil
}

func failed(siteID string, intent domain.Intent, attempts int, err error) ScopeResult {
	return ScopeResult{
		SiteID:   siteID,
		Intent:   intent,
		Status:   ScopeFailed,
		Attempts: attempts,
		Err:      fmt.Errorf("site %s intent %s: %w", siteID, intent, err),
	}
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}

func (p *Pipeline) info(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}
