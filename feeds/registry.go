package feeds

import (
	"context"
	"fmt"

	"github.com/nus25/gyoka/db"
	"github.com/nus25/gyoka/models"
	log "github.com/sirupsen/logrus"
)

// Registry resolves feed URIs to their internal records and owns the feed
// lifecycle: register, update, unregister.
type Registry struct {
	db *db.DB
}

func NewRegistry(database *db.DB) *Registry {
	return &Registry{db: database}
}

// Resolve looks a feed up by URI regardless of its active flag. Write paths
// use this; deactivated feeds stay mutable.
func (r *Registry) Resolve(ctx context.Context, uri string) (*models.FeedRecord, error) {
	return r.db.GetFeed(ctx, uri)
}

// ResolveActive looks a feed up by URI and reports an inactive feed as not
// found. Only the public skeleton read uses this; the conflation is
// deliberate information hiding.
func (r *Registry) ResolveActive(ctx context.Context, uri string) (*models.FeedRecord, error) {
	return r.db.GetActiveFeed(ctx, uri)
}

// List returns all registered feeds, active or not.
func (r *Registry) List(ctx context.Context) ([]models.Feed, error) {
	return r.db.ListFeeds(ctx)
}

// Register creates a new feed. Registering an already-known URI fails with
// ErrFeedExists.
func (r *Registry) Register(ctx context.Context, feed models.Feed) (*models.Feed, error) {
	if err := r.db.CreateFeed(ctx, feed); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"feed":       feed.Uri,
		"langFilter": feed.LangFilter,
		"isActive":   feed.IsActive,
	}).Info("Registered feed")
	return &feed, nil
}

// Update flips the langFilter and/or isActive flags on a feed. At least one
// flag must be given; nil pointers leave the current value untouched.
func (r *Registry) Update(ctx context.Context, uri string, langFilter, isActive *bool) (*models.Feed, error) {
	if langFilter == nil && isActive == nil {
		return nil, fmt.Errorf("%w: no value for update in request", models.ErrInvalidArgument)
	}

	rec, err := r.db.GetFeed(ctx, uri)
	if err != nil {
		return nil, err
	}
	if err := r.db.UpdateFeedFlags(ctx, uri, langFilter, isActive); err != nil {
		return nil, err
	}

	feed := rec.Feed
	if langFilter != nil {
		feed.LangFilter = *langFilter
	}
	if isActive != nil {
		feed.IsActive = *isActive
	}
	log.WithFields(log.Fields{
		"feed":       feed.Uri,
		"langFilter": feed.LangFilter,
		"isActive":   feed.IsActive,
	}).Info("Updated feed")
	return &feed, nil
}

// Unregister deletes a feed and every post it owns in one failure-atomic
// batch.
func (r *Registry) Unregister(ctx context.Context, uri string) error {
	if _, err := r.db.GetFeed(ctx, uri); err != nil {
		return err
	}
	if err := r.db.DeleteFeed(ctx, uri); err != nil {
		return err
	}
	log.WithFields(log.Fields{"feed": uri}).Info("Unregistered feed")
	return nil
}
