package server

import (
	"fmt"
	"time"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/gofiber/fiber/v2"

	"github.com/nus25/gyoka/feeds"
	"github.com/nus25/gyoka/models"
)

const (
	feedGeneratorCollection = "app.bsky.feed.generator"
	postCollection          = "app.bsky.feed.post"
	repostCollection        = "app.bsky.feed.repost"

	defaultPostsLimit = 1000
	maxPostsLimit     = 3000
)

type registerFeedRequest struct {
	Feed       string `json:"feed"`
	LangFilter *bool  `json:"langFilter"`
	IsActive   *bool  `json:"isActive"`
}

type updateFeedRequest struct {
	Feed       string `json:"feed"`
	LangFilter *bool  `json:"langFilter"`
	IsActive   *bool  `json:"isActive"`
}

type unregisterFeedRequest struct {
	Feed string `json:"feed"`
}

type trimPostsRequest struct {
	Feed   string `json:"feed"`
	Remain *int   `json:"remain"`
}

type addPostRequest struct {
	Feed string `json:"feed"`
	Post struct {
		Uri         string         `json:"uri"`
		Cid         string         `json:"cid"`
		Languages   []string       `json:"languages"`
		IndexedAt   string         `json:"indexedAt"`
		FeedContext string         `json:"feedContext"`
		Reason      *models.Reason `json:"reason"`
	} `json:"post"`
}

type removePostRequest struct {
	Feed string `json:"feed"`
	Post struct {
		Uri       string `json:"uri"`
		IndexedAt string `json:"indexedAt"`
	} `json:"post"`
}

type updateDocumentRequest struct {
	Type    string  `json:"type"`
	Url     *string `json:"url"`
	Content *string `json:"content"`
}

func registerEditorRoutes(app *fiber.App, config *ServerConfig) {
	feed := app.Group("/api/feed")

	feed.Get("/listFeeds", func(c *fiber.Ctx) error {
		all, err := config.Registry.List(c.Context())
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(fiber.Map{"feeds": all})
	})

	feed.Post("/registerFeed", func(c *fiber.Ctx) error {
		var req registerFeedRequest
		if err := c.BodyParser(&req); err != nil {
			return sendError(c, fiber.StatusBadRequest, "BadRequest", "Could not parse request body.")
		}
		if err := validateFeedUri(req.Feed); err != nil {
			return errorResponse(c, err)
		}

		// Both flags default to on: a freshly registered feed serves
		// skeletons and honors language preferences until told otherwise.
		toRegister := models.Feed{Uri: req.Feed, LangFilter: true, IsActive: true}
		if req.LangFilter != nil {
			toRegister.LangFilter = *req.LangFilter
		}
		if req.IsActive != nil {
			toRegister.IsActive = *req.IsActive
		}

		created, err := config.Registry.Register(c.Context(), toRegister)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(fiber.Map{"feed": created})
	})

	feed.Post("/updateFeed", func(c *fiber.Ctx) error {
		var req updateFeedRequest
		if err := c.BodyParser(&req); err != nil {
			return sendError(c, fiber.StatusBadRequest, "BadRequest", "Could not parse request body.")
		}
		if err := validateFeedUri(req.Feed); err != nil {
			return errorResponse(c, err)
		}

		updated, err := config.Registry.Update(c.Context(), req.Feed, req.LangFilter, req.IsActive)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(fiber.Map{"feed": updated})
	})

	feed.Post("/unregisterFeed", func(c *fiber.Ctx) error {
		var req unregisterFeedRequest
		if err := c.BodyParser(&req); err != nil {
			return sendError(c, fiber.StatusBadRequest, "BadRequest", "Could not parse request body.")
		}
		if err := validateFeedUri(req.Feed); err != nil {
			return errorResponse(c, err)
		}

		if err := config.Registry.Unregister(c.Context(), req.Feed); err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(fiber.Map{"message": fmt.Sprintf("Unregistered feed %s", req.Feed)})
	})

	feed.Post("/trimPosts", func(c *fiber.Ctx) error {
		var req trimPostsRequest
		if err := c.BodyParser(&req); err != nil {
			return sendError(c, fiber.StatusBadRequest, "BadRequest", "Could not parse request body.")
		}
		if err := validateFeedUri(req.Feed); err != nil {
			return errorResponse(c, err)
		}
		if req.Remain == nil {
			return sendError(c, fiber.StatusBadRequest, "BadRequest", "Missing remain value.")
		}

		deleted, err := config.Store.Trim(c.Context(), req.Feed, *req.Remain)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(fiber.Map{"feed": req.Feed, "deletedCount": deleted})
	})

	feed.Post("/addPost", func(c *fiber.Ctx) error {
		var req addPostRequest
		if err := c.BodyParser(&req); err != nil {
			return sendError(c, fiber.StatusBadRequest, "BadRequest", "Could not parse request body.")
		}
		if err := validateFeedUri(req.Feed); err != nil {
			return errorResponse(c, err)
		}
		input, err := parsePostInput(&req)
		if err != nil {
			return errorResponse(c, err)
		}

		post, err := config.Store.AddPost(c.Context(), req.Feed, *input)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(fiber.Map{"feed": req.Feed, "post": publicPost(post)})
	})

	feed.Post("/removePost", func(c *fiber.Ctx) error {
		var req removePostRequest
		if err := c.BodyParser(&req); err != nil {
			return sendError(c, fiber.StatusBadRequest, "BadRequest", "Could not parse request body.")
		}
		if err := validateFeedUri(req.Feed); err != nil {
			return errorResponse(c, err)
		}
		if err := validatePostUri(req.Post.Uri); err != nil {
			return errorResponse(c, err)
		}

		var at *time.Time
		if req.Post.IndexedAt != "" {
			parsed, err := time.Parse(time.RFC3339, req.Post.IndexedAt)
			if err != nil {
				return errorResponse(c, fmt.Errorf("%w: invalid indexedAt %q", models.ErrInvalidArgument, req.Post.IndexedAt))
			}
			at = &parsed
		}

		if err := config.Store.RemovePost(c.Context(), req.Feed, req.Post.Uri, at); err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(fiber.Map{"message": fmt.Sprintf("Removed post %s from feed", req.Post.Uri)})
	})

	feed.Get("/getPosts", func(c *fiber.Ctx) error {
		feedUri := c.Query("feed")
		if err := validateFeedUri(feedUri); err != nil {
			return errorResponse(c, err)
		}
		limit := clampLimit(c.QueryInt("limit", defaultPostsLimit), 1, maxPostsLimit)

		page, err := config.Query.GetPosts(c.Context(), feedUri, limit, c.Query("cursor"))
		if err != nil {
			return errorResponse(c, err)
		}
		resp := fiber.Map{"feed": feedUri, "posts": page.Posts}
		if page.Cursor != nil {
			resp["cursor"] = *page.Cursor
		}
		return c.JSON(resp)
	})

	gyoka := app.Group("/api/gyoka")

	gyoka.Get("/ping", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"message": "pong"})
	})

	gyoka.Post("/updateDocument", func(c *fiber.Ctx) error {
		var req updateDocumentRequest
		if err := c.BodyParser(&req); err != nil {
			return sendError(c, fiber.StatusBadRequest, "BadRequest", "Could not parse request body.")
		}
		if !models.KnownDocumentType(req.Type) {
			return sendError(c, fiber.StatusBadRequest, "BadRequest", fmt.Sprintf("Unknown document type %q.", req.Type))
		}

		doc := models.Document{Type: req.Type, Url: req.Url, Content: req.Content}
		if err := config.DB.UpsertDocument(c.Context(), doc); err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(fiber.Map{"document": doc})
	})
}

// parsePostInput validates the wire-level post fields of an addPost request
// and converts them to the engine's input type. Semantic validation of
// languages and reason belongs to the store.
func parsePostInput(req *addPostRequest) (*feeds.PostInput, error) {
	if err := validatePostUri(req.Post.Uri); err != nil {
		return nil, err
	}
	if req.Post.Cid == "" {
		return nil, fmt.Errorf("%w: missing post cid", models.ErrInvalidArgument)
	}
	if _, err := syntax.ParseCID(req.Post.Cid); err != nil {
		return nil, fmt.Errorf("%w: invalid post cid %q", models.ErrInvalidArgument, req.Post.Cid)
	}
	if req.Post.Reason != nil && req.Post.Reason.Type == models.ReasonRepost && req.Post.Reason.Repost != "" {
		if err := validateAtUri(req.Post.Reason.Repost, repostCollection); err != nil {
			return nil, err
		}
	}

	input := feeds.PostInput{
		Uri:         req.Post.Uri,
		Cid:         req.Post.Cid,
		Languages:   req.Post.Languages,
		FeedContext: req.Post.FeedContext,
		Reason:      req.Post.Reason,
	}
	if req.Post.IndexedAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.Post.IndexedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid indexedAt %q", models.ErrInvalidArgument, req.Post.IndexedAt)
		}
		input.IndexedAt = &parsed
	}
	return &input, nil
}

// publicPost strips the wildcard marker before a post leaves the API.
func publicPost(post *models.Post) *models.Post {
	if len(post.Languages) == 1 && post.Languages[0] == models.AllLanguages {
		out := *post
		out.Languages = nil
		return &out
	}
	return post
}

func validateFeedUri(uri string) error {
	return validateAtUri(uri, feedGeneratorCollection)
}

func validatePostUri(uri string) error {
	return validateAtUri(uri, postCollection)
}

func validateAtUri(uri string, collection string) error {
	parsed, err := syntax.ParseATURI(uri)
	if err != nil {
		return fmt.Errorf("%w: invalid at-uri %q", models.ErrInvalidArgument, uri)
	}
	if parsed.Collection().String() != collection {
		return fmt.Errorf("%w: uri %q is not a %s record", models.ErrInvalidArgument, uri, collection)
	}
	return nil
}

func clampLimit(limit, min, max int) int {
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
