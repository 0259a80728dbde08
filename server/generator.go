package server

import (
	"fmt"
	"strings"

	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"

	"github.com/nus25/gyoka/models"
)

const (
	defaultSkeletonLimit = 50
	maxSkeletonLimit     = 100
)

func registerGeneratorRoutes(app *fiber.App, config *ServerConfig) {
	// Well known URI for the feed generator
	app.Get("/.well-known/did.json", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"@context": []string{"https://www.w3.org/ns/did/v1"},
			"id":       "did:web:" + config.Hostname,
			"service": []fiber.Map{
				{
					"id":              "#bsky_fg",
					"type":            "BskyFeedGenerator",
					"serviceEndpoint": "https://" + config.Hostname,
				},
			},
		})
	})

	app.Get("/xrpc/app.bsky.feed.describeFeedGenerator", func(c *fiber.Ctx) error {
		all, err := config.Registry.List(c.Context())
		if err != nil {
			return errorResponse(c, err)
		}
		active := lo.Filter(all, func(feed models.Feed, _ int) bool {
			return feed.IsActive
		})

		entries := lo.Map(active, func(feed models.Feed, _ int) *bsky.FeedDescribeFeedGenerator_Feed {
			return &bsky.FeedDescribeFeedGenerator_Feed{Uri: feed.Uri}
		})

		links, err := documentLinks(c, config)
		if err != nil {
			return errorResponse(c, err)
		}

		return c.JSON(bsky.FeedDescribeFeedGenerator_Output{
			Did:   config.PublisherDID,
			Feeds: entries,
			Links: links,
		})
	})

	app.Get("/xrpc/app.bsky.feed.getFeedSkeleton", func(c *fiber.Ctx) error {
		feedUri := c.Query("feed")
		if err := validateFeedUri(feedUri); err != nil {
			return errorResponse(c, err)
		}
		limit := clampLimit(c.QueryInt("limit", defaultSkeletonLimit), 1, maxSkeletonLimit)

		skeleton, langs, err := config.Query.GetFeedSkeleton(
			c.Context(), feedUri, limit, c.Query("cursor"), c.Get(fiber.HeaderAcceptLanguage))
		if err != nil {
			return errorResponse(c, err)
		}

		// Advertise which preferences filtering actually honored.
		if len(langs) > 0 {
			c.Set(fiber.HeaderContentLanguage, strings.Join(langs, ", "))
		}
		return c.JSON(skeleton)
	})

	app.Get("/doc/:type", func(c *fiber.Ctx) error {
		docType := c.Params("type")
		if !models.KnownDocumentType(docType) {
			return sendError(c, fiber.StatusNotFound, "NotFound", fmt.Sprintf("Unknown document type %q.", docType))
		}

		doc, err := config.DB.GetDocument(c.Context(), docType)
		if err != nil {
			return errorResponse(c, err)
		}
		text := renderDocument(doc)
		if text == "" {
			return sendError(c, fiber.StatusNotFound, "NotFound", fmt.Sprintf("No %s document available.", docType))
		}
		return c.SendString(text)
	})
}

// renderDocument flattens a stored document to plain text. A URL-only
// document becomes a pointer line, inline content is served as is, and a
// document with both gets the pointer line prepended.
func renderDocument(doc *models.Document) string {
	if doc == nil {
		return ""
	}
	url := ""
	if doc.Url != nil {
		url = *doc.Url
	}
	content := ""
	if doc.Content != nil {
		content = *doc.Content
	}

	switch {
	case url != "" && content != "":
		return fmt.Sprintf("You can view the document at %s\n%s", url, content)
	case url != "":
		return fmt.Sprintf("See document at %s", url)
	default:
		return content
	}
}

// documentLinks builds the describeFeedGenerator policy links. A link is
// advertised only when a document is actually stored; its URL wins over the
// local rendering route.
func documentLinks(c *fiber.Ctx, config *ServerConfig) (*bsky.FeedDescribeFeedGenerator_Links, error) {
	docs, err := config.DB.ListDocuments(c.Context())
	if err != nil {
		return nil, err
	}

	links := &bsky.FeedDescribeFeedGenerator_Links{}
	present := false
	for _, doc := range docs {
		if renderDocument(&doc) == "" {
			continue
		}
		link := fmt.Sprintf("https://%s/doc/%s", config.Hostname, doc.Type)
		if doc.Url != nil && *doc.Url != "" {
			link = *doc.Url
		}
		switch doc.Type {
		case models.DocumentTos:
			links.TermsOfService = &link
			present = true
		case models.DocumentPrivacyPolicy:
			links.PrivacyPolicy = &link
			present = true
		}
	}
	if !present {
		return nil, nil
	}
	return links, nil
}
