package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/nus25/gyoka/models"
)

// InsertPost persists a post row plus one language row per code as a single
// transaction. A uniqueness violation on (feed_id, cid, indexed_at) is
// reported as ErrPostExists; the caller decides whether that is an error.
func (d *DB) InsertPost(ctx context.Context, feedID int64, post *models.Post) error {
	var reasonJSON any
	if post.Reason != nil {
		data, err := json.Marshal(post.Reason)
		if err != nil {
			return fmt.Errorf("marshal reason: %w", err)
		}
		reasonJSON = string(data)
	}

	var feedContext any
	if post.FeedContext != "" {
		feedContext = post.FeedContext
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("posts").Cols("feed_id", "did", "uri", "cid", "indexed_at", "feed_context", "reason")
	ib.Values(feedID, post.Did(), post.Uri, post.Cid, models.FormatTime(post.IndexedAt), feedContext, reasonJSON)

	query, args := ib.Build()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: uri:%s indexedAt:%s", models.ErrPostExists, post.Uri, models.FormatTime(post.IndexedAt))
		}
		return fmt.Errorf("insert post: %w", err)
	}

	postID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("inserted post id: %w", err)
	}

	il := sqlbuilder.SQLite.NewInsertBuilder()
	il.InsertInto("post_languages").Cols("post_id", "language")
	for _, lang := range post.Languages {
		il.Values(postID, lang)
	}
	query, args = il.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert languages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// DeletePost removes post rows by URI. With a nil indexedAt every row for
// the (feed, uri) pair goes; otherwise only the row at that exact instant.
// Returns the number of rows deleted.
func (d *DB) DeletePost(ctx context.Context, feedID int64, uri string, indexedAt *time.Time) (int64, error) {
	del := sqlbuilder.SQLite.NewDeleteBuilder()
	del.DeleteFrom("posts")
	del.Where(del.Equal("feed_id", feedID))
	del.Where(del.Equal("uri", uri))
	if indexedAt != nil {
		del.Where(del.Equal("indexed_at", models.FormatTime(*indexedAt)))
	}

	query, args := del.Build()
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete post: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete post result: %w", err)
	}
	return affected, nil
}

// TrimPosts deletes every row of a feed except the remain most recent by
// indexing timestamp, in a single statement. The retain ranking is
// re-evaluated at execution time, so stored state stays consistent even
// when a previously taken count has gone stale.
func (d *DB) TrimPosts(ctx context.Context, feedID int64, remain int) error {
	_, err := d.db.ExecContext(ctx, `
		DELETE FROM posts
		WHERE feed_id = ?1
		AND post_id NOT IN (
			SELECT post_id
			FROM posts
			WHERE feed_id = ?1
			ORDER BY indexed_at DESC
			LIMIT ?2
		)`, feedID, remain)
	if err != nil {
		return fmt.Errorf("trim posts: %w", err)
	}
	return nil
}
