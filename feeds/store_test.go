package feeds_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nus25/gyoka/db"
	"github.com/nus25/gyoka/feeds"
	"github.com/nus25/gyoka/models"
)

const testFeedUri = "at://did:plc:publisher/app.bsky.feed.generator/test-feed"

func testEngine(t *testing.T) (*db.DB, *feeds.Registry, *feeds.Store, *feeds.Query) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, db.Migrate(path))

	database, err := db.NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	registry := feeds.NewRegistry(database)
	return database, registry, feeds.NewStore(database, registry), feeds.NewQuery(database, registry)
}

func registerTestFeed(t *testing.T, registry *feeds.Registry, langFilter, isActive bool) {
	t.Helper()
	_, err := registry.Register(context.Background(), models.Feed{
		Uri:        testFeedUri,
		LangFilter: langFilter,
		IsActive:   isActive,
	})
	require.NoError(t, err)
}

func postInput(n int, at time.Time, langs ...string) feeds.PostInput {
	return feeds.PostInput{
		Uri:       fmt.Sprintf("at://did:plc:author%d/app.bsky.feed.post/3k%03d", n, n),
		Cid:       fmt.Sprintf("bafyreicid%03d", n),
		Languages: langs,
		IndexedAt: &at,
	}
}

func TestAddPostDefaultsToWildcard(t *testing.T) {
	_, registry, store, query := testEngine(t)
	registerTestFeed(t, registry, true, true)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	post, err := store.AddPost(ctx, testFeedUri, postInput(1, at))
	require.NoError(t, err)
	assert.Equal(t, []string{"*"}, post.Languages)

	// The wildcard is internal bookkeeping and stays out of API responses.
	page, err := query.GetPosts(ctx, testFeedUri, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.Nil(t, page.Posts[0].Languages)
}

func TestAddPostDuplicateIsIdempotent(t *testing.T) {
	_, registry, store, query := testEngine(t)
	registerTestFeed(t, registry, true, true)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	input := postInput(1, at, "en")

	_, err := store.AddPost(ctx, testFeedUri, input)
	require.NoError(t, err)
	_, err = store.AddPost(ctx, testFeedUri, input)
	require.NoError(t, err)

	page, err := query.GetPosts(ctx, testFeedUri, 10, "")
	require.NoError(t, err)
	assert.Len(t, page.Posts, 1)
}

func TestAddPostUnknownFeed(t *testing.T) {
	_, _, store, _ := testEngine(t)

	at := time.Now()
	_, err := store.AddPost(context.Background(), testFeedUri, postInput(1, at))
	assert.ErrorIs(t, err, models.ErrFeedNotFound)
}

func TestAddPostInvalidReason(t *testing.T) {
	_, registry, store, _ := testEngine(t)
	registerTestFeed(t, registry, true, true)

	at := time.Now()
	input := postInput(1, at)
	input.Reason = &models.Reason{Type: models.ReasonRepost}

	_, err := store.AddPost(context.Background(), testFeedUri, input)
	assert.ErrorIs(t, err, models.ErrInvalidReason)
}

func TestRemovePostByUri(t *testing.T) {
	_, registry, store, query := testEngine(t)
	registerTestFeed(t, registry, true, true)
	ctx := context.Background()

	// Same post indexed twice at different instants.
	first := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	in1 := postInput(1, first, "en")
	in2 := postInput(1, second, "en")
	in2.Cid = "bafyreicid001b"

	_, err := store.AddPost(ctx, testFeedUri, in1)
	require.NoError(t, err)
	_, err = store.AddPost(ctx, testFeedUri, in2)
	require.NoError(t, err)

	require.NoError(t, store.RemovePost(ctx, testFeedUri, in1.Uri, nil))

	page, err := query.GetPosts(ctx, testFeedUri, 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.Posts)

	err = store.RemovePost(ctx, testFeedUri, in1.Uri, nil)
	assert.ErrorIs(t, err, models.ErrPostNotFound)
}

func TestRemovePostByUriAndInstant(t *testing.T) {
	_, registry, store, query := testEngine(t)
	registerTestFeed(t, registry, true, true)
	ctx := context.Background()

	first := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)
	in1 := postInput(1, first, "en")
	in2 := postInput(1, second, "en")
	in2.Cid = "bafyreicid001b"

	_, err := store.AddPost(ctx, testFeedUri, in1)
	require.NoError(t, err)
	_, err = store.AddPost(ctx, testFeedUri, in2)
	require.NoError(t, err)

	require.NoError(t, store.RemovePost(ctx, testFeedUri, in1.Uri, &first))

	page, err := query.GetPosts(ctx, testFeedUri, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.True(t, page.Posts[0].IndexedAt.Equal(second))

	// The instant no longer matches anything.
	err = store.RemovePost(ctx, testFeedUri, in1.Uri, &first)
	assert.ErrorIs(t, err, models.ErrPostNotFound)
}

func TestTrim(t *testing.T) {
	_, registry, store, query := testEngine(t)
	registerTestFeed(t, registry, true, true)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		_, err := store.AddPost(ctx, testFeedUri, postInput(i, base.Add(time.Duration(i)*time.Minute), "en"))
		require.NoError(t, err)
	}

	deleted, err := store.Trim(ctx, testFeedUri, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	// The two newest survive.
	page, err := query.GetPosts(ctx, testFeedUri, 10, "")
	require.NoError(t, err)
	require.Len(t, page.Posts, 2)
	assert.True(t, page.Posts[0].IndexedAt.Equal(base.Add(5*time.Minute)))
	assert.True(t, page.Posts[1].IndexedAt.Equal(base.Add(4*time.Minute)))
}

func TestTrimBeyondCount(t *testing.T) {
	_, registry, store, _ := testEngine(t)
	registerTestFeed(t, registry, true, true)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err := store.AddPost(ctx, testFeedUri, postInput(1, at, "en"))
	require.NoError(t, err)

	deleted, err := store.Trim(ctx, testFeedUri, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestTrimNegativeRemain(t *testing.T) {
	_, registry, store, _ := testEngine(t)
	registerTestFeed(t, registry, true, true)

	_, err := store.Trim(context.Background(), testFeedUri, -1)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestRegistryLifecycle(t *testing.T) {
	_, registry, _, _ := testEngine(t)
	ctx := context.Background()
	registerTestFeed(t, registry, true, true)

	_, err := registry.Register(ctx, models.Feed{Uri: testFeedUri})
	assert.ErrorIs(t, err, models.ErrFeedExists)

	_, err = registry.Update(ctx, testFeedUri, nil, nil)
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	inactive := false
	updated, err := registry.Update(ctx, testFeedUri, nil, &inactive)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.True(t, updated.LangFilter)

	all, err := registry.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsActive)

	require.NoError(t, registry.Unregister(ctx, testFeedUri))
	err = registry.Unregister(ctx, testFeedUri)
	assert.ErrorIs(t, err, models.ErrFeedNotFound)
}

func TestUnregisterDeletesPosts(t *testing.T) {
	_, registry, store, query := testEngine(t)
	registerTestFeed(t, registry, true, true)
	ctx := context.Background()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	_, err := store.AddPost(ctx, testFeedUri, postInput(1, at, "en"))
	require.NoError(t, err)

	require.NoError(t, registry.Unregister(ctx, testFeedUri))
	registerTestFeed(t, registry, true, true)

	page, err := query.GetPosts(ctx, testFeedUri, 10, "")
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
}
