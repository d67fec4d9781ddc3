package api

import (
	"context"

	"github.com/fathima-sithara/relay-service/internal/auth"
	"github.com/fathima-sithara/relay-service/internal/config"
	"github.com/fathima-sithara/relay-service/internal/metrics"
	"github.com/fathima-sithara/relay-service/internal/middleware"
	"github.com/fathima-sithara/relay-service/internal/presence"
	"github.com/fathima-sithara/relay-service/internal/repository"
	"github.com/fathima-sithara/relay-service/internal/service"
	"github.com/fathima-sithara/relay-service/internal/ws"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	Config        *config.Config
	Messages      *service.MessageService
	Conversations *service.ConversationService
	Users         repository.UserDirectory
	Presence      presence.Tracker
	Verifier      auth.Verifier
	WS            *ws.Server
	Relay         *ws.Relay
	Metrics       *metrics.Metrics
	Log           *zap.Logger
}

// NewServer builds the fiber app. ctx bounds background work such as rate
// limiter cleanup.
func NewServer(ctx context.Context, d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "relay",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler,
	})
	app.Use(middleware.ZapLogger(d.Log))
	app.Use(recover.New())

	h := NewHandlers(d)

	app.Get("/health", h.health)
	app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))

	guard := make([]fiber.Handler, 0, 2)
	if d.Config.HTTP.RateLimitPerMin > 0 {
		limiter := middleware.NewIPRateLimiter(ctx, d.Config.HTTP.RateLimitPerMin, d.Config.HTTP.RateLimitBurst, d.Log)
		guard = append(guard, limiter.Handler())
	}
	restAuth := middleware.Auth(d.Verifier, middleware.FromHeader, d.Log)
	route := func(handler fiber.Handler) []fiber.Handler {
		chain := append(append([]fiber.Handler{}, guard...), restAuth)
		return append(chain, handler)
	}

	// the socket is verified before upgrade so a refused caller is never registered
	wsChain := append(append([]fiber.Handler{}, guard...),
		ws.RequireUpgrade, middleware.Auth(d.Verifier, middleware.FromQueryOrHeader, d.Log), d.WS.Handler())
	app.Get("/ws", wsChain...)

	app.Get("/conversations", route(h.listConversations)...)
	app.Get("/chats/:contactId", route(h.history)...)
	app.Post("/messages", route(h.sendMessage)...)
	app.Get("/users", route(h.listUsers)...)
	app.Get("/users/:id", route(h.getUser)...)
	app.Get("/presence/:userId", route(h.presence)...)

	return app
}
