package feeds

import (
	"context"

	"github.com/nus25/gyoka/db"
	"github.com/nus25/gyoka/models"
	log "github.com/sirupsen/logrus"
)

// Query owns paginated read access over a feed's posts.
type Query struct {
	db       *db.DB
	registry *Registry
}

func NewQuery(database *db.DB, registry *Registry) *Query {
	return &Query{db: database, registry: registry}
}

func decodeKeyset(cursor string) (*db.Keyset, error) {
	if cursor == "" {
		return nil, nil
	}
	c, err := ParseCursor(cursor)
	if err != nil {
		return nil, err
	}
	return &db.Keyset{IndexedAt: c.IndexedAt, Cid: c.Cid}, nil
}

// nextCursor encodes a continuation token when the page came back full.
// A full page is taken as "more rows may exist"; no lookahead probe is done.
func nextCursor(posts []models.Post, limit int) *string {
	if len(posts) != limit || limit == 0 {
		return nil
	}
	last := posts[len(posts)-1]
	token := EncodeCursor(last.IndexedAt, last.Cid)
	return &token
}

// GetPosts returns one editor page of a feed's posts, newest first, with no
// language filtering. Posts whose only language is the wildcard expose no
// language set at all: "unrestricted" is absence at the boundary.
func (q *Query) GetPosts(ctx context.Context, feedUri string, limit int, cursor string) (*models.PostPage, error) {
	feed, err := q.registry.Resolve(ctx, feedUri)
	if err != nil {
		return nil, err
	}

	before, err := decodeKeyset(cursor)
	if err != nil {
		return nil, err
	}

	posts, err := q.db.ListPosts(ctx, feed.ID, before, limit)
	if err != nil {
		return nil, err
	}

	for i := range posts {
		if len(posts[i].Languages) == 1 && posts[i].Languages[0] == models.AllLanguages {
			posts[i].Languages = nil
		}
	}

	return &models.PostPage{
		Posts:  posts,
		Cursor: nextCursor(posts, limit),
	}, nil
}

// GetFeedSkeleton returns one public page of a feed's post references. The
// feed must be active; a missing and an inactive feed are indistinguishable
// to the caller. Language filtering applies only when the feed has it
// enabled and the caller supplied usable preferences. The returned code
// list is what filtering actually used, for the Content-Language advisory.
func (q *Query) GetFeedSkeleton(ctx context.Context, feedUri string, limit int, cursor string, acceptLanguage string) (*models.FeedSkeleton, []string, error) {
	feed, err := q.registry.ResolveActive(ctx, feedUri)
	if err != nil {
		return nil, nil, err
	}

	before, err := decodeKeyset(cursor)
	if err != nil {
		return nil, nil, err
	}

	langs := []string{}
	if feed.LangFilter {
		langs = ParseAcceptLanguage(acceptLanguage)
	}

	posts, err := q.db.ListSkeletonPosts(ctx, feed.ID, before, langs, limit)
	if err != nil {
		return nil, nil, err
	}

	entries := make([]models.SkeletonPost, 0, len(posts))
	for _, post := range posts {
		entries = append(entries, models.SkeletonPost{
			Post:        post.Uri,
			Reason:      post.Reason,
			FeedContext: post.FeedContext,
		})
	}

	log.WithFields(log.Fields{
		"feed":      feedUri,
		"limit":     limit,
		"languages": langs,
		"count":     len(entries),
	}).Info("Generated feed skeleton")

	return &models.FeedSkeleton{
		Feed:   entries,
		Cursor: nextCursor(posts, limit),
	}, langs, nil
}
