package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nus25/gyoka/db"
	"github.com/nus25/gyoka/feeds"
	"github.com/nus25/gyoka/server"
)

const testFeedUri = "at://did:plc:publisher/app.bsky.feed.generator/test-feed"

func testServer(t *testing.T) *fiber.App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	require.NoError(t, db.Migrate(path))

	database, err := db.NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	registry := feeds.NewRegistry(database)
	return server.Server(&server.ServerConfig{
		Hostname:     "feeds.example.com",
		PublisherDID: "did:web:feeds.example.com",
		Registry:     registry,
		Store:        feeds.NewStore(database, registry),
		Query:        feeds.NewQuery(database, registry),
		DB:           database,
	})
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	decoded := map[string]any{}
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 && resp.Header.Get("Content-Type") != "" {
		json.Unmarshal(data, &decoded)
	}
	return resp, decoded
}

func registerFeed(t *testing.T, app *fiber.App) {
	t.Helper()
	resp, _ := doJSON(t, app, http.MethodPost, "/api/feed/registerFeed", fiber.Map{"feed": testFeedUri})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPing(t *testing.T) {
	app := testServer(t)
	resp, body := doJSON(t, app, http.MethodGet, "/api/gyoka/ping", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "pong", body["message"])
}

func TestRegisterFeedValidation(t *testing.T) {
	app := testServer(t)

	resp, body := doJSON(t, app, http.MethodPost, "/api/feed/registerFeed", fiber.Map{"feed": "not-an-at-uri"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BadRequest", body["error"])

	resp, body = doJSON(t, app, http.MethodPost, "/api/feed/registerFeed", fiber.Map{
		"feed": "at://did:plc:publisher/app.bsky.feed.post/not-a-generator",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BadRequest", body["error"])
}

func TestRegisterFeedConflict(t *testing.T) {
	app := testServer(t)
	registerFeed(t, app)

	resp, body := doJSON(t, app, http.MethodPost, "/api/feed/registerFeed", fiber.Map{"feed": testFeedUri})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Conflict", body["error"])
}

func TestAddPostAndSkeleton(t *testing.T) {
	app := testServer(t)
	registerFeed(t, app)

	postUri := "at://did:plc:author/app.bsky.feed.post/3k001"
	resp, body := doJSON(t, app, http.MethodPost, "/api/feed/addPost", fiber.Map{
		"feed": testFeedUri,
		"post": fiber.Map{
			"uri":       postUri,
			"cid":       "bafyreib2rxk3rw6lvwsxvws4pxwmv7lqsm5kfgbeoditps2azeidbzqyhe",
			"languages": []string{"en-US"},
			"indexedAt": "2024-05-01T12:00:00Z",
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	post := body["post"].(map[string]any)
	assert.Equal(t, postUri, post["uri"])
	assert.Equal(t, []any{"en"}, post["languages"])

	resp, body = doJSON(t, app, http.MethodGet,
		fmt.Sprintf("/xrpc/app.bsky.feed.getFeedSkeleton?feed=%s", testFeedUri), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	feed := body["feed"].([]any)
	require.Len(t, feed, 1)
	assert.Equal(t, postUri, feed[0].(map[string]any)["post"])
}

func TestSkeletonContentLanguage(t *testing.T) {
	app := testServer(t)
	registerFeed(t, app)

	req := httptest.NewRequest(http.MethodGet,
		fmt.Sprintf("/xrpc/app.bsky.feed.getFeedSkeleton?feed=%s", testFeedUri), nil)
	req.Header.Set("Accept-Language", "fr-FR,en;q=0.8")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "fr, en", resp.Header.Get("Content-Language"))
}

func TestSkeletonUnknownFeed(t *testing.T) {
	app := testServer(t)

	resp, body := doJSON(t, app, http.MethodGet,
		fmt.Sprintf("/xrpc/app.bsky.feed.getFeedSkeleton?feed=%s", testFeedUri), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "UnknownFeed", body["error"])
}

func TestRemovePostNotFound(t *testing.T) {
	app := testServer(t)
	registerFeed(t, app)

	resp, body := doJSON(t, app, http.MethodPost, "/api/feed/removePost", fiber.Map{
		"feed": testFeedUri,
		"post": fiber.Map{"uri": "at://did:plc:author/app.bsky.feed.post/3k001"},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NotFound", body["error"])
}

func TestWellKnownDid(t *testing.T) {
	app := testServer(t)

	resp, body := doJSON(t, app, http.MethodGet, "/.well-known/did.json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "did:web:feeds.example.com", body["id"])

	services := body["service"].([]any)
	require.Len(t, services, 1)
	assert.Equal(t, "https://feeds.example.com", services[0].(map[string]any)["serviceEndpoint"])
}

func TestDescribeFeedGenerator(t *testing.T) {
	app := testServer(t)
	registerFeed(t, app)

	resp, body := doJSON(t, app, http.MethodGet, "/xrpc/app.bsky.feed.describeFeedGenerator", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "did:web:feeds.example.com", body["did"])

	entries := body["feeds"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, testFeedUri, entries[0].(map[string]any)["uri"])

	// Deactivated feeds disappear from the listing.
	active := false
	resp, _ = doJSON(t, app, http.MethodPost, "/api/feed/updateFeed", fiber.Map{
		"feed": testFeedUri, "isActive": &active,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, app, http.MethodGet, "/xrpc/app.bsky.feed.describeFeedGenerator", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["feeds"])
}

func TestDocumentLifecycle(t *testing.T) {
	app := testServer(t)

	resp, _ := doJSON(t, app, http.MethodGet, "/doc/tos", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, app, http.MethodGet, "/doc/bogus", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	url := "https://example.com/terms"
	resp, _ = doJSON(t, app, http.MethodPost, "/api/gyoka/updateDocument", fiber.Map{
		"type": "tos", "url": url,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req := httptest.NewRequest(http.MethodGet, "/doc/tos", nil)
	docResp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, docResp.StatusCode)
	text, err := io.ReadAll(docResp.Body)
	require.NoError(t, err)
	assert.Equal(t, "See document at https://example.com/terms", string(text))
}

func TestTrimEndpoint(t *testing.T) {
	app := testServer(t)
	registerFeed(t, app)

	for i := 1; i <= 3; i++ {
		resp, _ := doJSON(t, app, http.MethodPost, "/api/feed/addPost", fiber.Map{
			"feed": testFeedUri,
			"post": fiber.Map{
				"uri":       fmt.Sprintf("at://did:plc:author/app.bsky.feed.post/3k%03d", i),
				"cid":       fmt.Sprintf("bafyreicid%03d", i),
				"indexedAt": fmt.Sprintf("2024-05-01T12:00:0%dZ", i),
			},
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	remain := 1
	resp, body := doJSON(t, app, http.MethodPost, "/api/feed/trimPosts", fiber.Map{
		"feed": testFeedUri, "remain": &remain,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["deletedCount"])
}
