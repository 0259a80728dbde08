package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/nus25/gyoka/models"
)

func scanFeed(row *sql.Row) (*models.FeedRecord, error) {
	var rec models.FeedRecord
	if err := row.Scan(&rec.ID, &rec.Uri, &rec.LangFilter, &rec.IsActive); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetFeed resolves a feed by its URI regardless of the active flag.
func (d *DB) GetFeed(ctx context.Context, uri string) (*models.FeedRecord, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("feed_id", "feed_uri", "lang_filter", "is_active").From("feeds")
	sb.Where(sb.Equal("feed_uri", uri))

	query, args := sb.Build()
	rec, err := scanFeed(d.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrFeedNotFound, uri)
	}
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	return rec, nil
}

// GetActiveFeed resolves a feed by URI but treats an inactive feed as
// missing. Used by the public read path only.
func (d *DB) GetActiveFeed(ctx context.Context, uri string) (*models.FeedRecord, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("feed_id", "feed_uri", "lang_filter", "is_active").From("feeds")
	sb.Where(sb.Equal("feed_uri", uri))
	sb.Where(sb.Equal("is_active", true))

	query, args := sb.Build()
	rec, err := scanFeed(d.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", models.ErrFeedNotFound, uri)
	}
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	return rec, nil
}

// GetFeedWithPostCount resolves a feed and counts its posts in the same
// query to avoid a second round trip.
func (d *DB) GetFeedWithPostCount(ctx context.Context, uri string) (*models.FeedRecord, int64, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(
		"feed_id", "feed_uri", "lang_filter", "is_active",
		"(SELECT COUNT(*) FROM posts WHERE posts.feed_id = feeds.feed_id) AS post_count",
	).From("feeds")
	sb.Where(sb.Equal("feed_uri", uri))

	query, args := sb.Build()
	var rec models.FeedRecord
	var count int64
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&rec.ID, &rec.Uri, &rec.LangFilter, &rec.IsActive, &count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("%w: %s", models.ErrFeedNotFound, uri)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("query feed: %w", err)
	}
	return &rec, count, nil
}

// ListFeeds returns every registered feed in registration order.
func (d *DB) ListFeeds(ctx context.Context) ([]models.Feed, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("feed_uri", "lang_filter", "is_active").From("feeds")
	sb.OrderBy("feed_id").Asc()

	query, args := sb.Build()
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query feeds: %w", err)
	}
	defer rows.Close()

	feeds := []models.Feed{}
	for rows.Next() {
		var feed models.Feed
		if err := rows.Scan(&feed.Uri, &feed.LangFilter, &feed.IsActive); err != nil {
			return nil, fmt.Errorf("scan feed: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

// CreateFeed inserts a new feed row. A uniqueness violation on the feed URI
// is reported as ErrFeedExists.
func (d *DB) CreateFeed(ctx context.Context, feed models.Feed) error {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("feeds").Cols("feed_uri", "lang_filter", "is_active")
	ib.Values(feed.Uri, feed.LangFilter, feed.IsActive)

	query, args := ib.Build()
	if _, err := d.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", models.ErrFeedExists, feed.Uri)
		}
		return fmt.Errorf("insert feed: %w", err)
	}
	return nil
}

// UpdateFeedFlags flips the given flags on a feed. Nil pointers leave the
// column untouched. When both flags change the two updates execute in one
// transaction.
func (d *DB) UpdateFeedFlags(ctx context.Context, uri string, langFilter, isActive *bool) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	exec := func(column string, value bool) error {
		ub := sqlbuilder.SQLite.NewUpdateBuilder()
		ub.Update("feeds").Set(ub.Assign(column, value))
		ub.Where(ub.Equal("feed_uri", uri))
		query, args := ub.Build()
		_, err := tx.ExecContext(ctx, query, args...)
		return err
	}

	if langFilter != nil {
		if err := exec("lang_filter", *langFilter); err != nil {
			return fmt.Errorf("update lang_filter: %w", err)
		}
	}
	if isActive != nil {
		if err := exec("is_active", *isActive); err != nil {
			return fmt.Errorf("update is_active: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// DeleteFeed removes a feed and all of its posts in a single transaction.
// Either both deletes commit or neither does.
func (d *DB) DeleteFeed(ctx context.Context, uri string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM posts WHERE feed_id = (SELECT feed_id FROM feeds WHERE feed_uri = ?)", uri,
	); err != nil {
		return fmt.Errorf("delete posts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM feeds WHERE feed_uri = ?", uri); err != nil {
		return fmt.Errorf("delete feed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
