package handler

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/peppidesu/landmower/internal/app/model"
	"github.com/peppidesu/landmower/internal/app/service"
	"github.com/peppidesu/landmower/internal/app/store"
	"github.com/peppidesu/landmower/internal/http/jsend"
	"github.com/peppidesu/landmower/internal/http/middleware"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger      *zap.Logger
	LinkService service.LinkService
	BaseURL     string
}

// APIHandler implements the management API endpoints.
type APIHandler struct {
	logger      *zap.Logger
	linkService service.LinkService
	baseURL     string
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:      logger,
		linkService: deps.LinkService,
		baseURL:     strings.TrimSuffix(deps.BaseURL, "/"),
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		links := api.Group("/links")
		{
			links.Post("/", h.AddLink)
			links.Get("/", h.ListLinks)
			links.Get("/:key", h.GetLink)
			links.Delete("/:key", h.DeleteLink)
		}
		api.Post("/validate/add_link", h.ValidateAddLink)
	}
}

// AddLinkRequest represents the request body for creating a link. An empty
// key asks for a generated one.
type AddLinkRequest struct {
	Key  string `json:"key,omitempty"`
	Link string `json:"link"`
}

// LinkResponse represents one link on the wire.
type LinkResponse struct {
	Key      string           `json:"key"`
	Link     string           `json:"link"`
	ShortURL string           `json:"short_url"`
	Metadata MetadataResponse `json:"metadata"`
}

// MetadataResponse carries the usage counters of a link.
type MetadataResponse struct {
	Used     int64     `json:"used"`
	LastUsed time.Time `json:"last_used"`
	Created  time.Time `json:"created"`
}

func (h *APIHandler) linkResponse(link *model.Link) LinkResponse {
	return LinkResponse{
		Key:      link.Key,
		Link:     link.URL,
		ShortURL: h.baseURL + "/s/" + link.Key,
		Metadata: MetadataResponse{
			Used:     link.Used,
			LastUsed: link.LastUsed,
			Created:  link.Created,
		},
	}
}

// AddLink handles POST /api/links
func (h *APIHandler) AddLink(c *fiber.Ctx) error {
	var req AddLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return jsend.Fail(c, fiber.Map{"body": "invalid request body"})
	}

	link, err := h.linkService.CreateLink(requestContext(c), service.CreateLinkInput{
		Key: req.Key,
		URL: req.Link,
	})
	if err != nil {
		return h.renderLinkError(c, "failed to create link", err)
	}

	return jsend.Success(c, h.linkResponse(link))
}

// ValidateAddLink handles POST /api/validate/add_link. It reports the verdict
// AddLink would reach without creating anything, so callers may invoke it as
// often as they like.
func (h *APIHandler) ValidateAddLink(c *fiber.Ctx) error {
	var req AddLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return jsend.Fail(c, fiber.Map{"body": "invalid request body"})
	}

	err := h.linkService.ValidateCreateLink(requestContext(c), service.CreateLinkInput{
		Key: req.Key,
		URL: req.Link,
	})
	if err != nil {
		return h.renderLinkError(c, "failed to validate link", err)
	}

	return jsend.Success(c, nil)
}

// ListLinks handles GET /api/links. A link query parameter narrows the result
// to entries whose target matches it exactly.
func (h *APIHandler) ListLinks(c *fiber.Ctx) error {
	ctx := requestContext(c)

	var (
		links []model.Link
		err   error
	)
	if target := c.Query("link"); target != "" {
		links, err = h.linkService.FindLinksByURL(ctx, target)
	} else {
		links, err = h.linkService.ListLinks(ctx)
	}
	if err != nil {
		h.logger.Error("failed to list links", zap.Error(err), requestIDField(ctx))
		return jsend.Error(c, "failed to list links")
	}

	response := make([]LinkResponse, len(links))
	for i := range links {
		response[i] = h.linkResponse(&links[i])
	}
	return jsend.Success(c, response)
}

// GetLink handles GET /api/links/:key
func (h *APIHandler) GetLink(c *fiber.Ctx) error {
	key := c.Params("key")

	link, err := h.linkService.GetLink(requestContext(c), key)
	if err != nil {
		return h.renderLinkError(c, "failed to get link", err)
	}
	return jsend.Success(c, h.linkResponse(link))
}

// DeleteLink handles DELETE /api/links/:key
func (h *APIHandler) DeleteLink(c *fiber.Ctx) error {
	key := c.Params("key")

	if err := h.linkService.DeleteLink(requestContext(c), key); err != nil {
		return h.renderLinkError(c, "failed to delete link", err)
	}
	return jsend.Success(c, nil)
}

// renderLinkError maps service errors onto the envelope: caller-correctable
// problems become fail, everything else is logged and becomes error.
func (h *APIHandler) renderLinkError(c *fiber.Ctx, msg string, err error) error {
	var fieldErrs *store.FieldErrors
	if errors.As(err, &fieldErrs) {
		return jsend.Fail(c, fieldErrs)
	}
	if errors.Is(err, store.ErrLinkNotFound) {
		return jsend.Fail(c, "Link not found")
	}
	h.logger.Error(msg, zap.Error(err), requestIDField(requestContext(c)))
	return jsend.Error(c, msg)
}

func requestContext(c *fiber.Ctx) context.Context {
	if ctx := c.UserContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// requestIDField correlates handler error logs with the access log line.
func requestIDField(ctx context.Context) zap.Field {
	return zap.String("request_id", middleware.RequestIDFromContext(ctx))
}
