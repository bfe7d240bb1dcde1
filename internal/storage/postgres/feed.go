package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"announcement_relay/internal/domain"
)

// FeedStore persists tracked feeds, their sources and checkpoints.
type FeedStore struct {
	db *sqlx.DB
}

func NewFeedStore(db *sqlx.DB) *FeedStore {
	return &FeedStore{db: db}
}

type feedRow struct {
	ID          int64          `db:"id"`
	CanonicalID string         `db:"canonical_id"`
	Checkpoint  time.Time      `db:"checkpoint_at"`
	SourceURL   sql.NullString `db:"source_url"`
	BackupURLs  pq.StringArray `db:"backup_urls"`
}

func (r feedRow) toDomain() domain.TrackedFeed {
	return domain.TrackedFeed{
		ID:          r.ID,
		CanonicalID: r.CanonicalID,
		SourceURL:   r.SourceURL.String,
		BackupURLs:  []string(r.BackupURLs),
		Checkpoint:  r.Checkpoint.UTC(),
	}
}

const selectFeeds = `
	SELECT
		f.id,
		f.canonical_id,
		f.checkpoint_at,
		(SELECT s.url FROM feed_sources s WHERE s.feed_id = f.id AND s.is_primary) AS source_url,
		ARRAY(
			SELECT s.url FROM feed_sources s
			WHERE s.feed_id = f.id AND NOT s.is_primary
			ORDER BY s.id
		) AS backup_urls
	FROM feeds f`

func (s *FeedStore) Get(ctx context.Context, id int64) (*domain.TrackedFeed, error) {
	var row feedRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, selectFeeds+" WHERE f.id = $1", id)
	if err != nil {
		return nil, mapError("get feed", err)
	}
	feed := row.toDomain()
	return &feed, nil
}

func (s *FeedStore) GetAll(ctx context.Context) ([]domain.TrackedFeed, error) {
	var rows []feedRow
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, selectFeeds+" ORDER BY f.id")
	if err != nil {
		return nil, mapError("list feeds", err)
	}

	feeds := make([]domain.TrackedFeed, 0, len(rows))
	for _, r := range rows {
		feeds = append(feeds, r.toDomain())
	}
	return feeds, nil
}

func (s *FeedStore) FindByCanonicalID(ctx context.Context, canonicalID string) (*domain.TrackedFeed, error) {
	var row feedRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row, selectFeeds+" WHERE f.canonical_id = $1", canonicalID)
	if err != nil {
		return nil, mapError("find feed by canonical id", err)
	}
	feed := row.toDomain()
	return &feed, nil
}

// Create inserts a feed without sources. A second feed with the same
// canonical id fails with domain.ErrUniqueViolation.
func (s *FeedStore) Create(ctx context.Context, canonicalID string, checkpoint time.Time) (int64, error) {
	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx,
		"INSERT INTO feeds (canonical_id, checkpoint_at) VALUES ($1, $2) RETURNING id",
		canonicalID, checkpoint.UTC(),
	).Scan(&id)
	if err != nil {
		return 0, mapError("create feed", err)
	}
	return id, nil
}

// AddSource attaches url to a feed. Adding a url the feed already has is a no-op.
func (s *FeedStore) AddSource(ctx context.Context, feedID int64, url string, primary bool) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO feed_sources (feed_id, url, is_primary)
		VALUES ($1, $2, $3)
		ON CONFLICT (feed_id, url) DO NOTHING`,
		feedID, url, primary,
	)
	return mapError("add feed source", err)
}

// SetCheckpoint moves the checkpoint forward in a single statement. It
// reports false when the stored checkpoint is already at or past at.
func (s *FeedStore) SetCheckpoint(ctx context.Context, id int64, at time.Time) (bool, error) {
	exec := GetExecutor(ctx, s.db)

	res, err := exec.ExecContext(ctx,
		"UPDATE feeds SET checkpoint_at = $2 WHERE id = $1 AND checkpoint_at < $2",
		id, at.UTC(),
	)
	if err != nil {
		return false, mapError("set checkpoint", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, mapError("set checkpoint", err)
	}
	if n > 0 {
		return true, nil
	}

	var exists bool
	if err := sqlx.GetContext(ctx, exec, &exists, "SELECT EXISTS (SELECT 1 FROM feeds WHERE id = $1)", id); err != nil {
		return false, mapError("set checkpoint", err)
	}
	if !exists {
		return false, domain.NewStoreError("set checkpoint", domain.ErrNotFound, nil)
	}
	return false, nil
}
