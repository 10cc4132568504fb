package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/studio/pkg/eventstream/nop"
	"github.com/papercomputeco/studio/pkg/llm"
	"github.com/papercomputeco/studio/server/mcp"
	"github.com/papercomputeco/studio/server/worker"
)

const (
	chatRoute  = "/api/chat"
	imageRoute = "/api/image"
)

// Server relays chat streams and image batches and serves the history API.
// Events describing every relayed request are published asynchronously via
// its worker pool.
type Server struct {
	config     Config
	workerPool *worker.Pool
	mcpServer  *mcp.Server
	logger     *slog.Logger
	app        *fiber.App
}

// New creates a new Server.
func New(config Config) (*Server, error) {
	if config.Relay == nil {
		return nil, errors.New("chat relay is required")
	}
	if config.Images == nil {
		return nil, errors.New("image generator is required")
	}
	if config.History == nil {
		return nil, errors.New("history driver is required")
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Publisher == nil {
		config.Publisher = nop.NewPublisher()
	}
	if len(config.Models) == 0 {
		config.Models = llm.ChatModels
	}

	wp, err := worker.NewPool(&worker.Config{
		Publisher: config.Publisher,
		Logger:    config.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create worker pool: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Images:  config.Images,
		History: config.History,
		Noop:    config.DisableMCP,
		Logger:  config.Logger,
	})
	if err != nil {
		wp.Close()
		return nil, fmt.Errorf("could not create MCP server: %w", err)
	}

	app := fiber.New(fiber.Config{
		// Disable startup message for cleaner logs
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		config:     config,
		workerPool: wp,
		mcpServer:  mcpServer,
		logger:     config.Logger,
		app:        app,
	}

	app.Get("/ping", s.handlePing)

	apiGroup := app.Group("/api")
	apiGroup.Get("/models", s.handleModels)
	apiGroup.Post("/chat", s.handleChat)
	apiGroup.Post("/image", s.handleImage)

	historyGroup := apiGroup.Group("/history")
	historyGroup.Get("/chat", s.handleListMessages)
	historyGroup.Post("/chat", s.handleAppendMessage)
	historyGroup.Delete("/chat", s.handleClearMessages)
	historyGroup.Get("/images", s.handleListImages)
	historyGroup.Post("/images", s.handleAddImage)
	historyGroup.Delete("/images", s.handleClearImages)
	historyGroup.Delete("/images/:id", s.handleDeleteImage)

	app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))

	return s, nil
}

// Run starts the server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting studio server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// RunWithListener starts the server using the provided listener.
func (s *Server) RunWithListener(listener net.Listener) error {
	s.logger.Info("starting studio server",
		"listen", listener.Addr().String(),
	)
	return s.app.Listener(listener)
}

// Close shuts the server down and waits for queued events to be published.
func (s *Server) Close() error {
	err := s.app.Shutdown()
	s.workerPool.Close()
	return err
}

// errorHandler renders errors escaping a handler as the JSON error body every
// route uses.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(llm.ErrorResponse{Error: err.Error()})
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleModels lists the chat models clients may choose from.
func (s *Server) handleModels(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"models": s.config.Models})
}

// enqueue hands job to the worker pool without blocking the request.
func (s *Server) enqueue(job worker.Job) {
	if !s.workerPool.Enqueue(job) {
		s.logger.Error("dropping event",
			"event_type", job.Event.EventType,
			"event_id", job.Event.EventID,
		)
	}
}
