package feeds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nus25/gyoka/db"
	"github.com/nus25/gyoka/models"
	log "github.com/sirupsen/logrus"
)

// PostInput carries the caller-supplied fields of an addPost request.
type PostInput struct {
	Uri         string
	Cid         string
	Languages   []string
	IndexedAt   *time.Time
	FeedContext string
	Reason      *models.Reason
}

// Store owns the mutation operations on a feed's posts.
type Store struct {
	db       *db.DB
	registry *Registry
	now      func() time.Time
}

func NewStore(database *db.DB, registry *Registry) *Store {
	return &Store{db: database, registry: registry, now: time.Now}
}

// AddPost validates and persists a post reference plus its language rows in
// one failure-atomic batch. All validation happens before any write.
// Re-inserting an identical (feed, cid, indexedAt) row is a benign race,
// e.g. a client retry, and reports success without creating a new row.
func (s *Store) AddPost(ctx context.Context, feedUri string, input PostInput) (*models.Post, error) {
	feed, err := s.registry.Resolve(ctx, feedUri)
	if err != nil {
		return nil, err
	}

	langs, err := NormalizeLanguages(input.Languages)
	if err != nil {
		return nil, err
	}

	indexedAt := s.now()
	if input.IndexedAt != nil {
		indexedAt = *input.IndexedAt
	}
	indexedAt = models.CanonicalTime(indexedAt)

	if input.Reason != nil {
		if err := input.Reason.Validate(); err != nil {
			return nil, err
		}
	}

	post := &models.Post{
		Uri:         input.Uri,
		Cid:         input.Cid,
		Languages:   langs,
		IndexedAt:   indexedAt,
		FeedContext: input.FeedContext,
		Reason:      input.Reason,
	}

	if err := s.db.InsertPost(ctx, feed.ID, post); err != nil {
		if errors.Is(err, models.ErrPostExists) {
			log.WithFields(log.Fields{
				"feed": feedUri,
				"uri":  post.Uri,
				"cid":  post.Cid,
			}).Info("Post already in feed, treating insert as success")
			return post, nil
		}
		return nil, err
	}

	log.WithFields(log.Fields{
		"feed":      feedUri,
		"uri":       post.Uri,
		"languages": post.Languages,
		"indexedAt": models.FormatTime(post.IndexedAt),
	}).Info("Added post to feed")
	return post, nil
}

// RemovePost deletes post rows by URI. A nil indexedAt removes every row
// for that URI in the feed; otherwise only the row at that exact instant.
// A missing feed and a missing post are distinct failures.
func (s *Store) RemovePost(ctx context.Context, feedUri string, uri string, indexedAt *time.Time) error {
	feed, err := s.registry.Resolve(ctx, feedUri)
	if err != nil {
		return err
	}

	var at *time.Time
	if indexedAt != nil {
		canonical := models.CanonicalTime(*indexedAt)
		at = &canonical
	}

	affected, err := s.db.DeletePost(ctx, feed.ID, uri, at)
	if err != nil {
		return err
	}
	if affected == 0 {
		if at != nil {
			return fmt.Errorf("%w: feed:%s post:{uri:%s indexedAt:%s}", models.ErrPostNotFound, feedUri, uri, models.FormatTime(*at))
		}
		return fmt.Errorf("%w: feed:%s post:{uri:%s}", models.ErrPostNotFound, feedUri, uri)
	}

	log.WithFields(log.Fields{
		"feed":    feedUri,
		"uri":     uri,
		"deleted": affected,
	}).Info("Removed post from feed")
	return nil
}

// Trim deletes all but the remain most recent posts of a feed and returns
// the number of rows it expects to have deleted. The count comes from the
// same query that validated feed existence; concurrent inserts between that
// query and the delete can make it approximate. The delete itself
// re-evaluates the retain ranking at execution time, so stored state is
// always consistent.
func (s *Store) Trim(ctx context.Context, feedUri string, remain int) (int64, error) {
	if remain < 0 {
		return 0, fmt.Errorf("%w: remain must be non-negative", models.ErrInvalidArgument)
	}

	feed, count, err := s.db.GetFeedWithPostCount(ctx, feedUri)
	if err != nil {
		return 0, err
	}

	if err := s.db.TrimPosts(ctx, feed.ID, remain); err != nil {
		return 0, err
	}

	deleted := count - int64(remain)
	if deleted < 0 {
		deleted = 0
	}
	log.WithFields(log.Fields{
		"feed":    feedUri,
		"remain":  remain,
		"deleted": deleted,
	}).Info("Trimmed feed")
	return deleted, nil
}
