package ports

import (
	"context"
	"time"

	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
)

// CandidateRepository reads the active candidate pool of one scope.
type CandidateRepository interface {
	ListActive(ctx context.Context, siteID string, intent domain.Intent) ([]domain.TopicCandidate, error)
}

// CandidateWriter seeds candidates; existing rows keep status and usage.
type CandidateWriter interface {
	UpsertCandidate(ctx context.Context, candidate domain.TopicCandidate) error
}

// UsageRecorder writes back bookkeeping after content was generated.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, id, contentRef string, now time.Time) error
}

// ScoreWriter persists telemetry and recomputed performance scores.
type ScoreWriter interface {
	SaveTelemetry(ctx context.Context, id string, telemetry domain.Telemetry) error
	SaveScores(ctx context.Context, scores map[string]float64) error
}

// DraftRepository stores generated drafts referenced by lastContentRef.
type DraftRepository interface {
	SaveDraft(ctx context.Context, draft domain.ContentDraft) error
}

// ThemeSource supplies the theme -> child group key mapping of a site.
type ThemeSource interface {
	ThemeMap(ctx context.Context, siteID string, intent domain.Intent) (domain.ThemeMap, error)
}

// TelemetryFeed pulls search performance numbers for a scope (upstream data feed).
type TelemetryFeed interface {
	Fetch(ctx context.Context, siteID string, intent domain.Intent, ids []string) (map[string]domain.Telemetry, error)
}

// ContentGenerator produces a draft article for a picked topic.
type ContentGenerator interface {
	Generate(ctx context.Context, siteID string, choice domain.TopicChoice) (domain.ContentDraft, error)
}

// Notifier streams cycle reports to Telegram or other channels.
type Notifier interface {
	PublishReport(ctx context.Context, report string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
