package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/nus25/gyoka/db"
	"github.com/nus25/gyoka/feeds"
	"github.com/nus25/gyoka/models"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gyoka_http_requests_total",
		Help: "Number of HTTP requests by route, method and status",
	}, []string{"route", "method", "status"})

	httpLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gyoka_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

// ServerConfig wires the HTTP layer to the feed engine. All dependencies
// are explicit; handlers never reach for ambient state.
type ServerConfig struct {
	// Hostname the generator is served from, used in the DID document and
	// default document links.
	Hostname string

	// PublisherDID reported by describeFeedGenerator.
	PublisherDID string

	Registry *feeds.Registry
	Store    *feeds.Store
	Query    *feeds.Query

	// DB is used directly for the service documents, which carry no
	// engine-level invariants.
	DB *db.DB
}

// Server returns a fiber.App serving the editor API and the AT Protocol
// feed generator surface.
func Server(config *ServerConfig) *fiber.App {
	app := fiber.New()

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		httpLatency.Observe(elapsed.Seconds())
		httpRequests.WithLabelValues(c.Route().Path, c.Method(), fmt.Sprint(c.Response().StatusCode())).Inc()

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   c.Route().Path,
			"status":  c.Response().StatusCode(),
			"latency": elapsed,
		}).Info("Request")
		return err
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New())
	app.Use(etag.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST",
	}))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	registerEditorRoutes(app, config)
	registerGeneratorRoutes(app, config)

	return app
}

// errorResponse maps the engine's error taxonomy onto the wire statuses.
// The error kind and its structured detail pass through unchanged.
func errorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, models.ErrFeedNotFound):
		return sendError(c, fiber.StatusNotFound, "UnknownFeed", err.Error())
	case errors.Is(err, models.ErrPostNotFound):
		return sendError(c, fiber.StatusNotFound, "NotFound", err.Error())
	case errors.Is(err, models.ErrFeedExists):
		return sendError(c, fiber.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, models.ErrInvalidLanguage),
		errors.Is(err, models.ErrInvalidReason),
		errors.Is(err, models.ErrMalformedCursor),
		errors.Is(err, models.ErrInvalidArgument):
		return sendError(c, fiber.StatusBadRequest, "BadRequest", err.Error())
	default:
		log.WithFields(log.Fields{"error": err}).Error("Internal failure")
		return sendError(c, fiber.StatusInternalServerError, "InternalServerError", "An unexpected error occurred.")
	}
}

func sendError(c *fiber.Ctx, status int, kind string, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   kind,
		"message": message,
	})
}
