package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// schema is shared by both dialects; timestamps are unix seconds.
const schema = `
CREATE TABLE IF NOT EXISTS topic_candidates (
	id                TEXT PRIMARY KEY,
	site_id           TEXT NOT NULL,
	intent            TEXT NOT NULL,
	keyword           TEXT NOT NULL,
	status            TEXT NOT NULL DEFAULT 'active',
	usage_count       BIGINT NOT NULL DEFAULT 0,
	last_used_at      BIGINT,
	last_content_ref  TEXT NOT NULL DEFAULT '',
	source            TEXT NOT NULL DEFAULT 'pool',
	group_key         TEXT NOT NULL DEFAULT '',
	performance_score REAL NOT NULL DEFAULT 0,
	impressions_1d    REAL,
	impressions_7d    REAL,
	clicks_1d         REAL,
	clicks_7d         REAL,
	views_1d          REAL,
	views_7d          REAL,
	ctr_1d            REAL,
	ctr_7d            REAL,
	impressions       REAL,
	clicks            REAL,
	ctr               REAL,
	position          REAL,
	updated_at        BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_topic_candidates_scope ON topic_candidates (site_id, intent, status);

CREATE TABLE IF NOT EXISTS content_drafts (
	id         TEXT PRIMARY KEY,
	site_id    TEXT NOT NULL,
	topic_id   TEXT NOT NULL,
	intent     TEXT NOT NULL,
	keyword    TEXT NOT NULL,
	title      TEXT NOT NULL,
	headings   TEXT NOT NULL DEFAULT '',
	html       TEXT NOT NULL,
	word_count BIGINT NOT NULL DEFAULT 0,
	created_at BIGINT NOT NULL
);
`

// Open connects to the record store and applies the schema.
func Open(ctx context.Context, driver, dsn string) (*SQLRepository, error) {
	var placeholder sq.PlaceholderFormat
	switch driver {
	case DriverPostgres:
		placeholder = sq.Dollar
	case DriverSQLite:
		placeholder = sq.Question
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable wal: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	repo := newSQLRepository(db, placeholder)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Migrate creates missing tables and indexes.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (r *SQLRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}
