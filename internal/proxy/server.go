package proxy

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
)

// DefaultBodyLimit caps request bodies.
const DefaultBodyLimit = 1 << 20

const (
	messageRequired     = "Message is required"
	internalServerError = "Internal Server Error"
)

//go:embed web/index.html
var indexHTML []byte

// Server is the HTTP front of the completion proxy.
type Server struct {
	app     *fiber.App
	service *Service
	logger  *slog.Logger
}

type chatRequest struct {
	Message string `json:"message"`
}

// NewServer builds the fiber app. sessions handles /ws/session upgrades and may be nil.
func NewServer(service *Service, sessions func(*websocket.Conn), logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{service: service, logger: logger.With("component", "http")}

	app := fiber.New(fiber.Config{
		AppName:               "voxchat",
		DisableStartupMessage: true,
		BodyLimit:             DefaultBodyLimit,
		ErrorHandler:          s.handleError,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	app.Get("/", s.handleIndex)
	app.Get("/healthz", s.handleHealth)

	api := app.Group("/api")
	api.Post("/chat", s.handleChat)
	api.Get("/history", s.handleHistory)

	if sessions != nil {
		app.Use("/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		app.Get("/ws/session", websocket.New(sessions))
	}

	s.app = app
	return s
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve accepts connections on listener until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(listener)
	}()
	s.logger.Info("proxy listening", "addr", listener.Addr().String(), "provider", s.service.Provider())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	c.Type("html", "utf-8")
	return c.Send(indexHTML)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"provider": s.service.Provider(),
	})
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": messageRequired})
	}

	reply, err := s.service.Chat(c.UserContext(), req.Message)
	switch {
	case errors.Is(err, ErrMessageRequired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": messageRequired})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": internalServerError})
	}
	return c.JSON(fiber.Map{"response": reply})
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	rows, ok, err := s.service.History(c.UserContext())
	if !ok {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "history log is not configured"})
	}
	if err != nil {
		s.logger.Error("history read failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": internalServerError})
	}
	if rows == nil {
		rows = [][]string{}
	}
	return c.JSON(fiber.Map{"rows": rows})
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.Path(), "error", err)
		return c.Status(code).JSON(fiber.Map{"error": internalServerError})
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
