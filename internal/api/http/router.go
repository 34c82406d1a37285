package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/marketplace-service/internal/api/http/handlers"
	"github.com/spec-kit/marketplace-service/internal/auth"
	"github.com/spec-kit/marketplace-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health        *handlers.HealthHandler
	Onboarding    *handlers.OnboardingHandler
	Tickets       *handlers.TicketsHandler
	Notifications *handlers.NotificationsHandler
	Chat          *handlers.ChatHandler
	Authenticator *auth.Authenticator
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1")
	api.Post("/onboarding", cfg.Onboarding.Submit)

	protected := api.Group("", cfg.Authenticator.Handle, auth.RequireAnyRole())

	admin := auth.RequireModerator(domain.ModeratorRoleAdmin)
	moderator := auth.RequireModerator()
	user := auth.RequireUser()

	protected.Get("/onboarding", moderator, cfg.Onboarding.ListPending)
	protected.Get("/onboarding/:id", moderator, cfg.Onboarding.Get)
	protected.Post("/onboarding/:id/decision", admin, cfg.Onboarding.Decide)

	protected.Post("/tickets", user, cfg.Tickets.CreateTicket)
	protected.Get("/tickets", user, cfg.Tickets.ListTickets)
	protected.Get("/tickets/:id", cfg.Tickets.GetTicket)
	protected.Patch("/tickets/:id/status", moderator, cfg.Tickets.UpdateStatus)
	protected.Post("/products/:id/favorite", user, cfg.Tickets.ToggleFavorite)

	protected.Get("/notifications", cfg.Notifications.List)
	protected.Get("/notifications/unread-count", cfg.Notifications.UnreadCount)
	protected.Post("/notifications/read-all", cfg.Notifications.MarkAllRead)
	protected.Post("/notifications/:id/read", cfg.Notifications.MarkRead)
	protected.Patch("/notifications/:id", cfg.Notifications.SetReadState)
	protected.Put("/devices/token", cfg.Notifications.RegisterDevice)

	protected.Get("/chat/history", cfg.Chat.ListHistory)
	protected.Post("/chat/history", cfg.Chat.CreateHistory)
	protected.Post("/chat/history/:userId/read", moderator, cfg.Chat.MarkRead)
	protected.Get("/chat/messages/:peerId", cfg.Chat.ListMessages)
	protected.Post("/chat/messages", cfg.Chat.SendMessage)

	push := protected.Group("/admin/push", admin)
	push.Post("/devices", cfg.Notifications.PushDevices)
	push.Post("/topics/:topic", cfg.Notifications.PushTopic)
	push.Post("/topics/:topic/subscribers", cfg.Notifications.SubscribeTopic)
	push.Delete("/topics/:topic/subscribers", cfg.Notifications.UnsubscribeTopic)
}
