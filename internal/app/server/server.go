package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/peppidesu/landmower/internal/app/service"
	inthttp "github.com/peppidesu/landmower/internal/http/handler"
	"github.com/peppidesu/landmower/internal/http/middleware"
	"go.uber.org/zap"
)

// Dependencies bundles what the HTTP server serves.
type Dependencies struct {
	Logger          *zap.Logger
	Links           service.LinkService
	AccessPublisher *service.AccessPublisher
	BaseURL         string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with middleware and routes wired.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := &Server{
		app:  fiber.New(),
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS())
}

func (s *Server) registerRoutes() {
	apiHandler := inthttp.NewAPIHandler(inthttp.APIDeps{
		Logger:      s.deps.Logger,
		LinkService: s.deps.Links,
		BaseURL:     s.deps.BaseURL,
	})
	apiHandler.Register(s.app)

	redirectHandler := inthttp.NewRedirectHandler(inthttp.RedirectDeps{
		Logger:          s.deps.Logger,
		Links:           s.deps.Links,
		AccessPublisher: s.deps.AccessPublisher,
	})
	redirectHandler.Register(s.app)
}
