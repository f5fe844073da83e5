package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/devharvest/internal/model"
)

// Config controls the Postgres connection pool behind the repository.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	ConnectRetries  int
	ConnectBackoff  time.Duration
}

// DB is the subset of pgxpool.Pool the repository needs. pgxmock's pool
// interface satisfies it, which is how the unit tests inject a fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// StaleObserver receives the count of stale claims released by ClaimBatch.
type StaleObserver interface {
	StaleReleased(count int)
}

// Postgres implements Store on top of a pgx connection pool.
type Postgres struct {
	db     DB
	logger *zap.Logger
	stale  StaleObserver
}

// New connects to Postgres with bounded retry and returns the repository.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	retries := cfg.ConnectRetries
	if retries <= 0 {
		retries = 1
	}
	backoff := cfg.ConnectBackoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			delay := backoff * time.Duration(1<<(attempt-1))
			logger.Warn("postgres connect failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			lastErr = err
			continue
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			lastErr = err
			continue
		}
		logger.Info("connected to postgres")
		return &Postgres{db: pool, logger: logger}, nil
	}
	return nil, fmt.Errorf("connect postgres after %d attempts: %w", retries, lastErr)
}

// NewWithDB constructs a repository from an existing pool (primarily for
// testing with pgxmock).
func NewWithDB(db DB, logger *zap.Logger) *Postgres {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postgres{db: db, logger: logger}
}

// SetStaleObserver registers a sink for released stale-claim counts.
func (p *Postgres) SetStaleObserver(obs StaleObserver) {
	p.stale = obs
}

// Close releases the underlying pool resources.
func (p *Postgres) Close() {
	if p == nil || p.db == nil {
		return
	}
	p.db.Close()
}

var migrations = []string{
	`DO $$ BEGIN
    CREATE TYPE enrichment_status AS ENUM ('INITIAL', 'PROCESSING', 'PROFILED', 'ENHANCED', 'FAILED');
EXCEPTION
    WHEN duplicate_object THEN null;
END $$`,
	`CREATE TABLE IF NOT EXISTS developers (
    id SERIAL PRIMARY KEY,
    username VARCHAR(255) UNIQUE NOT NULL,
    enrichment_status enrichment_status DEFAULT 'INITIAL',
    retry_count INTEGER DEFAULT 0,
    last_error TEXT,
    processing_started_at TIMESTAMP WITH TIME ZONE,
    claimed_by VARCHAR(255),
    name VARCHAR(255),
    email VARCHAR(255),
    bio TEXT,
    location VARCHAR(255),
    company VARCHAR(255),
    blog VARCHAR(500),
    twitter_username VARCHAR(255),
    hireable BOOLEAN,
    followers INTEGER DEFAULT 0,
    following INTEGER DEFAULT 0,
    public_repos INTEGER DEFAULT 0,
    public_gists INTEGER DEFAULT 0,
    profile_url VARCHAR(500),
    avatar_url VARCHAR(500),
    created_at TIMESTAMP WITH TIME ZONE,
    updated_at TIMESTAMP WITH TIME ZONE,
    scraped_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    profiled_at TIMESTAMP WITH TIME ZONE,
    enhanced_at TIMESTAMP WITH TIME ZONE
)`,
	`CREATE TABLE IF NOT EXISTS social_links (
    id SERIAL PRIMARY KEY,
    developer_id INTEGER NOT NULL,
    platform VARCHAR(50) NOT NULL,
    url VARCHAR(500) NOT NULL,
    verified BOOLEAN DEFAULT FALSE,
    scraped_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (developer_id) REFERENCES developers(id) ON DELETE CASCADE,
    CONSTRAINT unique_developer_platform UNIQUE (developer_id, platform)
)`,
	`CREATE TABLE IF NOT EXISTS repositories (
    id SERIAL PRIMARY KEY,
    developer_id INTEGER NOT NULL,
    name VARCHAR(255) NOT NULL,
    stars INTEGER DEFAULT 0,
    language VARCHAR(100),
    url VARCHAR(500),
    description TEXT,
    repo_order INTEGER DEFAULT 0,
    FOREIGN KEY (developer_id) REFERENCES developers(id) ON DELETE CASCADE,
    CONSTRAINT unique_developer_repo UNIQUE (developer_id, name)
)`,
	`CREATE INDEX IF NOT EXISTS idx_developers_status ON developers(enrichment_status)`,
	`CREATE INDEX IF NOT EXISTS idx_developers_location ON developers(location)`,
	`CREATE INDEX IF NOT EXISTS idx_social_links_developer ON social_links(developer_id)`,
	`CREATE INDEX IF NOT EXISTS idx_repositories_developer ON repositories(developer_id)`,
}

// Migrate creates or verifies the schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := p.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	p.logger.Info("database schema verified")
	return nil
}

// InsertBatch bulk-inserts usernames with INITIAL status, ignoring
// duplicates. The returned count covers only newly inserted rows.
func (p *Postgres) InsertBatch(ctx context.Context, usernames []string) (int64, error) {
	if len(usernames) == 0 {
		return 0, nil
	}
	tag, err := p.db.Exec(ctx, `
INSERT INTO developers (username, enrichment_status)
SELECT unnest($1::text[]), 'INITIAL'
ON CONFLICT (username) DO NOTHING`, usernames)
	if err != nil {
		return 0, fmt.Errorf("insert usernames: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByStatus returns the number of developers in the given status.
func (p *Postgres) CountByStatus(ctx context.Context, status model.Status) (int, error) {
	var n int
	err := p.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM developers WHERE enrichment_status = $1`,
		string(status)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count by status: %w", err)
	}
	return n, nil
}

// ListByStatus returns up to limit usernames in the given status, in
// insertion order.
func (p *Postgres) ListByStatus(ctx context.Context, status model.Status, limit int) ([]string, error) {
	rows, err := p.db.Query(ctx, `
SELECT username FROM developers
WHERE enrichment_status = $1
ORDER BY id
LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer rows.Close()
	return scanUsernames(rows)
}

// ClaimBatch implements the two-step claim inside one transaction:
// stale-claim release, then an atomic SKIP LOCKED claim. Two concurrent
// callers can never claim overlapping sets because locked rows are
// skipped rather than waited on.
func (p *Postgres) ClaimBatch(ctx context.Context, fromStatus model.Status, limit int, owner string, staleAfter time.Duration) ([]string, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cutoff := time.Now().UTC().Add(-staleAfter)
	tag, err := tx.Exec(ctx, `
UPDATE developers
SET enrichment_status = $1,
    claimed_by = NULL,
    processing_started_at = NULL
WHERE enrichment_status = 'PROCESSING'
    AND processing_started_at < $2`, string(fromStatus), cutoff)
	if err != nil {
		return nil, fmt.Errorf("release stale claims: %w", err)
	}
	if released := tag.RowsAffected(); released > 0 {
		p.logger.Info("released stale claims",
			zap.Int64("count", released),
			zap.Duration("stale_after", staleAfter))
		if p.stale != nil {
			p.stale.StaleReleased(int(released))
		}
	}

	rows, err := tx.Query(ctx, `
UPDATE developers
SET enrichment_status = 'PROCESSING',
    claimed_by = $1,
    processing_started_at = NOW()
WHERE id IN (
    SELECT id FROM developers
    WHERE enrichment_status = $2
    ORDER BY id
    LIMIT $3
    FOR UPDATE SKIP LOCKED
)
RETURNING username`, owner, string(fromStatus), limit)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	claimed, err := scanUsernames(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim tx: %w", err)
	}

	if len(claimed) > 0 {
		p.logger.Info("claimed batch",
			zap.String("owner", owner),
			zap.Int("count", len(claimed)))
	}
	return claimed, nil
}

// CommitProfile writes profile fields, replaces child rows and advances
// the row to PROFILED atomically. The claim is released and retry_count
// reset as part of the same transaction.
func (p *Postgres) CommitProfile(ctx context.Context, profile *model.Profile) (int64, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin profile tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var developerID int64
	err = tx.QueryRow(ctx, `
UPDATE developers SET
    name = $1,
    email = $2,
    bio = $3,
    location = $4,
    company = $5,
    blog = $6,
    twitter_username = $7,
    hireable = $8,
    followers = $9,
    following = $10,
    public_repos = $11,
    public_gists = $12,
    profile_url = $13,
    avatar_url = $14,
    created_at = $15,
    updated_at = $16,
    enrichment_status = 'PROFILED',
    profiled_at = CURRENT_TIMESTAMP,
    scraped_at = CURRENT_TIMESTAMP,
    retry_count = 0,
    last_error = NULL,
    claimed_by = NULL,
    processing_started_at = NULL
WHERE username = $17
RETURNING id`,
		nullable(profile.Name),
		nullable(profile.Email),
		nullable(profile.Bio),
		nullable(profile.Location),
		nullable(profile.Company),
		nullable(profile.Blog),
		nullable(profile.TwitterUsername),
		profile.Hireable,
		profile.Followers,
		profile.Following,
		profile.PublicRepos,
		profile.PublicGists,
		nullable(profile.ProfileURL),
		nullable(profile.AvatarURL),
		profile.CreatedAt,
		profile.UpdatedAt,
		profile.Username,
	).Scan(&developerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("update profile: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM social_links WHERE developer_id = $1`, developerID); err != nil {
		return 0, fmt.Errorf("clear social links: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM repositories WHERE developer_id = $1`, developerID); err != nil {
		return 0, fmt.Errorf("clear repositories: %w", err)
	}

	for _, link := range profile.SocialLinks {
		if _, err := tx.Exec(ctx, `
INSERT INTO social_links (developer_id, platform, url)
VALUES ($1, $2, $3)`, developerID, link.Platform, link.URL); err != nil {
			return 0, fmt.Errorf("insert social link %s: %w", link.Platform, err)
		}
	}
	for _, repo := range profile.Repositories {
		if _, err := tx.Exec(ctx, `
INSERT INTO repositories (developer_id, name, stars, language, url, description, repo_order)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			developerID, repo.Name, repo.Stars, nullable(repo.Language),
			nullable(repo.URL), nullable(repo.Description), repo.Rank); err != nil {
			return 0, fmt.Errorf("insert repository %s: %w", repo.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit profile tx: %w", err)
	}
	return developerID, nil
}

// ListSocialLinks returns the stored links for a developer in platform
// insertion order.
func (p *Postgres) ListSocialLinks(ctx context.Context, username string) ([]model.SocialLink, error) {
	rows, err := p.db.Query(ctx, `
SELECT sl.platform, sl.url, sl.verified
FROM social_links sl
JOIN developers d ON d.id = sl.developer_id
WHERE d.username = $1
ORDER BY sl.id`, username)
	if err != nil {
		return nil, fmt.Errorf("list social links: %w", err)
	}
	defer rows.Close()

	var links []model.SocialLink
	for rows.Next() {
		var l model.SocialLink
		if err := rows.Scan(&l.Platform, &l.URL, &l.Verified); err != nil {
			return nil, fmt.Errorf("scan social link: %w", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate social links: %w", err)
	}
	return links, nil
}

// CommitEnhancement marks the verified links and advances the row to
// ENHANCED in one transaction. retry_count is deliberately untouched; it
// resets only on CommitProfile.
func (p *Postgres) CommitEnhancement(ctx context.Context, username string, verifiedPlatforms []string) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin enhancement tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var developerID int64
	err = tx.QueryRow(ctx, `
UPDATE developers SET
    enrichment_status = 'ENHANCED',
    enhanced_at = CURRENT_TIMESTAMP,
    claimed_by = NULL,
    processing_started_at = NULL
WHERE username = $1
RETURNING id`, username).Scan(&developerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("update enhancement: %w", err)
	}

	if len(verifiedPlatforms) > 0 {
		if _, err := tx.Exec(ctx, `
UPDATE social_links SET verified = TRUE
WHERE developer_id = $1 AND platform = ANY($2::text[])`,
			developerID, verifiedPlatforms); err != nil {
			return fmt.Errorf("mark links verified: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit enhancement tx: %w", err)
	}
	return nil
}

// RecordFailure marks the row FAILED after retries are exhausted (or the
// error is permanent) and releases the claim.
func (p *Postgres) RecordFailure(ctx context.Context, username, errMsg string) error {
	_, err := p.db.Exec(ctx, `
UPDATE developers
SET enrichment_status = 'FAILED',
    last_error = $1,
    retry_count = retry_count + 1,
    claimed_by = NULL,
    processing_started_at = NULL
WHERE username = $2`, errMsg, username)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	p.logger.Warn("marked developer failed",
		zap.String("username", username),
		zap.String("error", errMsg))
	return nil
}

// RecordRetry increments retry_count, releases the claim and returns the
// row to backTo so another worker may re-claim it.
func (p *Postgres) RecordRetry(ctx context.Context, username, errMsg string, backTo model.Status) (int, error) {
	var count int
	err := p.db.QueryRow(ctx, `
UPDATE developers
SET retry_count = retry_count + 1,
    last_error = $1,
    enrichment_status = $2,
    claimed_by = NULL,
    processing_started_at = NULL
WHERE username = $3
RETURNING retry_count`, errMsg, string(backTo), username).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("record retry: %w", err)
	}
	return count, nil
}

// Stats aggregates repository-wide counts for reporting.
func (p *Postgres) Stats(ctx context.Context) (model.Stats, error) {
	stats := model.Stats{ByStatus: make(map[model.Status]int)}

	rows, err := p.db.Query(ctx, `
SELECT enrichment_status, COUNT(*)
FROM developers
GROUP BY enrichment_status`)
	if err != nil {
		return stats, fmt.Errorf("stats by status: %w", err)
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			rows.Close()
			return stats, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[model.Status(status)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return stats, fmt.Errorf("iterate status counts: %w", err)
	}
	rows.Close()

	if err := p.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM developers WHERE email IS NOT NULL`).Scan(&stats.WithEmail); err != nil {
		return stats, fmt.Errorf("stats with email: %w", err)
	}
	if err := p.db.QueryRow(ctx,
		`SELECT COUNT(DISTINCT developer_id) FROM social_links`).Scan(&stats.WithSocial); err != nil {
		return stats, fmt.Errorf("stats with social: %w", err)
	}
	if err := p.db.QueryRow(ctx, `
SELECT COALESCE(AVG(followers)::INTEGER, 0)
FROM developers
WHERE enrichment_status IN ('PROFILED', 'ENHANCED')`).Scan(&stats.AvgFollowers); err != nil {
		return stats, fmt.Errorf("stats avg followers: %w", err)
	}
	if err := p.db.QueryRow(ctx, `
SELECT COALESCE(AVG(public_repos)::INTEGER, 0)
FROM developers
WHERE enrichment_status IN ('PROFILED', 'ENHANCED')`).Scan(&stats.AvgPublicRepos); err != nil {
		return stats, fmt.Errorf("stats avg repos: %w", err)
	}

	return stats, nil
}

func scanUsernames(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usernames: %w", err)
	}
	return out, nil
}

// nullable maps empty strings to NULL so optional profile fields stay
// NULL in the table rather than collapsing to "".
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
