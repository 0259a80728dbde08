package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/nus25/gyoka/models"
)

// keysetCondition bounds a feed scan to rows strictly before the cursor
// position under the (indexed_at DESC, cid DESC) ordering.
func keysetCondition(sb *sqlbuilder.SelectBuilder, before *Keyset) {
	if before == nil {
		return
	}
	ts := models.FormatTime(before.IndexedAt)
	sb.Where(sb.Or(
		sb.LessThan("p.indexed_at", ts),
		sb.And(
			sb.Equal("p.indexed_at", ts),
			sb.LessThan("p.cid", before.Cid),
		),
	))
}

func scanPostRow(rows *sql.Rows, withLangs bool) (*models.Post, error) {
	var post models.Post
	var indexedAt string
	var feedContext, reason sql.NullString
	var langs sql.NullString

	dest := []any{&post.Uri, &post.Cid, &indexedAt, &feedContext, &reason}
	if withLangs {
		dest = append(dest, &langs)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}

	ts, err := models.ParseTime(indexedAt)
	if err != nil {
		return nil, fmt.Errorf("parse indexed_at: %w", err)
	}
	post.IndexedAt = ts
	post.FeedContext = feedContext.String

	if reason.Valid {
		var r models.Reason
		if err := json.Unmarshal([]byte(reason.String), &r); err != nil {
			return nil, fmt.Errorf("decode reason: %w", err)
		}
		post.Reason = &r
	}
	if langs.Valid {
		post.Languages = strings.Split(langs.String, ",")
	}
	return &post, nil
}

// ListPosts returns one page of a feed's posts for the editor view, newest
// first, with the full language set of each post attached.
func (d *DB) ListPosts(ctx context.Context, feedID int64, before *Keyset, limit int) ([]models.Post, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(
		"p.uri", "p.cid", "p.indexed_at", "p.feed_context", "p.reason",
		"GROUP_CONCAT(pl.language) AS langs",
	).From("posts p")
	sb.Join("post_languages pl", "p.post_id = pl.post_id")
	sb.Where(sb.Equal("p.feed_id", feedID))
	keysetCondition(sb, before)
	sb.GroupBy("p.post_id")
	sb.OrderBy("p.indexed_at DESC", "p.cid DESC", "p.post_id DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		post, err := scanPostRow(rows, true)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *post)
	}
	return posts, rows.Err()
}

// ListSkeletonPosts returns one page of a feed's posts for the public
// skeleton. When langs is non-empty, a post qualifies if any of its language
// rows matches a requested code or the wildcard.
func (d *DB) ListSkeletonPosts(ctx context.Context, feedID int64, before *Keyset, langs []string, limit int) ([]models.Post, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("p.uri", "p.cid", "p.indexed_at", "p.feed_context", "p.reason").From("posts p")
	sb.Where(sb.Equal("p.feed_id", feedID))
	keysetCondition(sb, before)

	if len(langs) > 0 {
		marks := make([]string, 0, len(langs)+1)
		for _, lang := range langs {
			marks = append(marks, sb.Args.Add(lang))
		}
		// The wildcard row matches every filter.
		marks = append(marks, sb.Args.Add(models.AllLanguages))
		sb.Where(fmt.Sprintf(
			"EXISTS (SELECT 1 FROM post_languages pl WHERE pl.post_id = p.post_id AND pl.language IN (%s))",
			strings.Join(marks, ", "),
		))
	}

	sb.OrderBy("p.indexed_at DESC", "p.cid DESC", "p.post_id DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query skeleton: %w", err)
	}
	defer rows.Close()

	posts := []models.Post{}
	for rows.Next() {
		post, err := scanPostRow(rows, false)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *post)
	}
	return posts, rows.Err()
}
