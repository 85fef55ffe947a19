package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/peppidesu/landmower/internal/app/service"
	"github.com/peppidesu/landmower/internal/app/store"
	"go.uber.org/zap"
)

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger          *zap.Logger
	Links           service.LinkService
	AccessPublisher *service.AccessPublisher
}

// RedirectHandler implements the public redirect flow.
type RedirectHandler struct {
	logger          *zap.Logger
	links           service.LinkService
	accessPublisher *service.AccessPublisher
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger:          logger,
		links:           deps.Links,
		accessPublisher: deps.AccessPublisher,
	}
}

// Register wires redirect routes onto the provided router.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/s/:key", h.Redirect)
}

// Health is a simple root endpoint so we know the service is running.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "landmower",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Redirect handles GET /s/:key. The resolve bumps the in-memory counters;
// the durable update follows through the access event.
func (h *RedirectHandler) Redirect(c *fiber.Ctx) error {
	key := c.Params("key")

	target, err := h.links.Resolve(requestContext(c), key)
	if err != nil {
		if errors.Is(err, store.ErrLinkNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "short link not found",
			})
		}
		h.logger.Error("failed to resolve link", zap.Error(err), zap.String("key", key), requestIDField(requestContext(c)))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal server error",
		})
	}

	if h.accessPublisher != nil {
		go h.publishAccessEvent(key)
	}

	h.logger.Debug("redirecting short link", zap.String("key", key), zap.String("target", target))
	return c.Redirect(target, fiber.StatusFound)
}

func (h *RedirectHandler) publishAccessEvent(key string) {
	if err := h.accessPublisher.Publish(key); err != nil {
		h.logger.Error("failed to publish access event", zap.Error(err), zap.String("key", key))
	}
}
