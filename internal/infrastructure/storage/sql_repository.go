package storage

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/tw20th/kangaroo-post-sub000/internal/domain"
	"github.com/tw20th/kangaroo-post-sub000/internal/ports"
)

const (
	candidatesTable = "topic_candidates"
	draftsTable     = "content_drafts"
)

var candidateColumns = []string{
	"id", "site_id", "intent", "keyword", "status", "usage_count", "last_used_at",
	"last_content_ref", "source", "group_key", "performance_score",
	"impressions_1d", "impressions_7d", "clicks_1d", "clicks_7d",
	"views_1d", "views_7d", "ctr_1d", "ctr_7d",
	"impressions", "clicks", "ctr", "position",
}

// SQLRepository persists topic candidates and drafts in Postgres or SQLite.
type SQLRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var (
	_ ports.CandidateRepository = (*SQLRepository)(nil)
	_ ports.CandidateWriter     = (*SQLRepository)(nil)
	_ ports.UsageRecorder       = (*SQLRepository)(nil)
	_ ports.ScoreWriter         = (*SQLRepository)(nil)
	_ ports.DraftRepository     = (*SQLRepository)(nil)
)

func newSQLRepository(db *sql.DB, placeholder sq.PlaceholderFormat) *SQLRepository {
	return &SQLRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// ListActive returns every active candidate of the (site, intent) scope.
func (r *SQLRepository) ListActive(ctx context.Context, siteID string, intent domain.Intent) ([]domain.TopicCandidate, error) {
	if r.db == nil {
		return nil, nil
	}

	query, args, err := r.sb.Select(candidateColumns...).
		From(candidatesTable).
		Where(sq.Eq{
			"site_id": siteID,
			"intent":  string(intent),
			"status":  string(domain.StatusActive),
		}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var result []domain.TopicCandidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return result, nil
}

// RecordUsage bumps the usage count and stamps the last use.
func (r *SQLRepository) RecordUsage(ctx context.Context, id, contentRef string, now time.Time) error {
	if r.db == nil {
		return nil
	}

	query, args, err := r.sb.Update(candidatesTable).
		Set("usage_count", sq.Expr("usage_count + 1")).
		Set("last_used_at", now.Unix()).
		Set("last_content_ref", contentRef).
		Set("updated_at", now.Unix()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build usage update: %w", err)
	}

	return r.execOne(ctx, id, query, args)
}

// SaveTelemetry replaces the telemetry columns of a candidate.
func (r *SQLRepository) SaveTelemetry(ctx context.Context, id string, t domain.Telemetry) error {
	if r.db == nil {
		return nil
	}

	query, args, err := r.sb.Update(candidatesTable).
		SetMap(map[string]any{
			"impressions_1d": nullFloat(t.Impressions1d),
			"impressions_7d": nullFloat(t.Impressions7d),
			"clicks_1d":      nullFloat(t.Clicks1d),
			"clicks_7d":      nullFloat(t.Clicks7d),
			"views_1d":       nullFloat(t.Views1d),
			"views_7d":       nullFloat(t.Views7d),
			"ctr_1d":         nullFloat(t.CTR1d),
			"ctr_7d":         nullFloat(t.CTR7d),
			"impressions":    nullFloat(t.Impressions),
			"clicks":         nullFloat(t.Clicks),
			"ctr":            nullFloat(t.CTR),
			"position":       nullFloat(t.Position),
			"updated_at":     time.Now().Unix(),
		}).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build telemetry update: %w", err)
	}

	return r.execOne(ctx, id, query, args)
}

// SaveScores persists recomputed performance scores one row at a time.
func (r *SQLRepository) SaveScores(ctx context.Context, scores map[string]float64) error {
	if r.db == nil {
		return nil
	}

	for id, score := range scores {
		query, args, err := r.sb.Update(candidatesTable).
			Set("performance_score", score).
			Where(sq.Eq{"id": id}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build score update: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update score %s: %w", id, err)
		}
	}
	return nil
}

// SaveDraft stores a generated draft.
func (r *SQLRepository) SaveDraft(ctx context.Context, draft domain.ContentDraft) error {
	if r.db == nil {
		return nil
	}

	query, args, err := r.sb.Insert(draftsTable).
		Columns("id", "site_id", "topic_id", "intent", "keyword", "title", "headings", "html", "word_count", "created_at").
		Values(
			draft.ID,
			draft.SiteID,
			draft.TopicID,
			string(draft.Intent),
			draft.Keyword,
			draft.Title,
			strings.Join(draft.Headings, "\n"),
			draft.HTML,
			draft.WordCount,
			draft.CreatedAt.Unix(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build draft insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert draft %s: %w", draft.ID, err)
	}
	return nil
}

// UpsertCandidate seeds or updates the descriptive fields of a candidate.
// Status and usage bookkeeping of an existing row are left untouched.
func (r *SQLRepository) UpsertCandidate(ctx context.Context, c domain.TopicCandidate) error {
	if r.db == nil {
		return nil
	}

	var lastUsed sql.NullInt64
	if c.LastUsedAt != nil {
		lastUsed = sql.NullInt64{Int64: c.LastUsedAt.Unix(), Valid: true}
	}
	status := c.Status
	if status == "" {
		status = domain.StatusActive
	}
	source := c.Source
	if source == "" {
		source = domain.SourcePool
	}

	query, args, err := r.sb.Insert(candidatesTable).
		Columns(append(slices.Clone(candidateColumns), "updated_at")...).
		Values(
			c.ID, c.SiteID, string(c.Intent), c.Keyword, string(status), c.UsageCount, lastUsed,
			c.LastContentRef, string(source), c.GroupKey, c.PerformanceScore,
			nullFloat(c.Telemetry.Impressions1d), nullFloat(c.Telemetry.Impressions7d),
			nullFloat(c.Telemetry.Clicks1d), nullFloat(c.Telemetry.Clicks7d),
			nullFloat(c.Telemetry.Views1d), nullFloat(c.Telemetry.Views7d),
			nullFloat(c.Telemetry.CTR1d), nullFloat(c.Telemetry.CTR7d),
			nullFloat(c.Telemetry.Impressions), nullFloat(c.Telemetry.Clicks),
			nullFloat(c.Telemetry.CTR), nullFloat(c.Telemetry.Position),
			time.Now().Unix(),
		).
		Suffix(`ON CONFLICT (id) DO UPDATE
              SET site_id = excluded.site_id,
                  intent = excluded.intent,
                  keyword = excluded.keyword,
                  source = excluded.source,
                  group_key = excluded.group_key,
                  updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build candidate upsert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert candidate %s: %w", c.ID, err)
	}
	return nil
}

func (r *SQLRepository) execOne(ctx context.Context, id, query string, args []any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update candidate %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("candidate %s not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner) (domain.TopicCandidate, error) {
	var (
		c                                  domain.TopicCandidate
		intent, status, source             string
		lastUsed                           sql.NullInt64
		imp1, imp7, clk1, clk7             sql.NullFloat64
		views1, views7, ctr1, ctr7         sql.NullFloat64
		impressions, clicks, ctr, position sql.NullFloat64
	)

	err := row.Scan(
		&c.ID, &c.SiteID, &intent, &c.Keyword, &status, &c.UsageCount, &lastUsed,
		&c.LastContentRef, &source, &c.GroupKey, &c.PerformanceScore,
		&imp1, &imp7, &clk1, &clk7,
		&views1, &views7, &ctr1, &ctr7,
		&impressions, &clicks, &ctr, &position,
	)
	if err != nil {
		return domain.TopicCandidate{}, err
	}

	c.Intent = domain.Intent(intent)
	c.Status = domain.Status(status)
	c.Source = domain.Source(source)
	if lastUsed.Valid {
		at := time.Unix(lastUsed.Int64, 0).UTC()
		c.LastUsedAt = &at
	}
	c.Telemetry = domain.Telemetry{
		Impressions1d: floatPtr(imp1),
		Impressions7d: floatPtr(imp7),
		Clicks1d:      floatPtr(clk1),
		Clicks7d:      floatPtr(clk7),
		Views1d:       floatPtr(views1),
		Views7d:       floatPtr(views7),
		CTR1d:         floatPtr(ctr1),
		CTR7d:         floatPtr(ctr7),
		Impressions:   floatPtr(impressions),
		Clicks:        floatPtr(clicks),
		CTR:           floatPtr(ctr),
		Position:      floatPtr(position),
	}
	return c, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
