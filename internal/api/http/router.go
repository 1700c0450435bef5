package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deskline/support-desk/internal/api/http/handlers"
	"github.com/deskline/support-desk/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Relationships  *handlers.RelationshipsHandler
	SLA            *handlers.SLAHandler
	Channels       *handlers.ChannelsHandler
	Chat           *handlers.ChatHandler
	Webhooks       *handlers.WebhooksHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	// Public surfaces: the chat widget and provider callbacks.
	chat := app.Group("/chat/:channelId")
	chat.Get("/availability", cfg.Chat.Availability)
	chat.Post("/", cfg.Chat.StartChat)
	chat.Post("/:chatId/messages", cfg.Chat.VisitorMessage)

	hooks := app.Group("/webhooks")
	hooks.Post("/email/:channelId", cfg.Webhooks.InboundEmail)
	hooks.Post("/phone/:channelId/voice", cfg.Webhooks.IncomingCall)
	hooks.Post("/phone/:channelId/voicemail", cfg.Webhooks.Voicemail)
	hooks.Post("/phone/:channelId/sms", cfg.Webhooks.InboundSMS)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireRole())
	staff := auth.RequireStaff()
	admin := auth.RequireAdmin()

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/transitions", cfg.Tickets.ListTransitions)
	tickets.Patch("/:id/status", cfg.Tickets.UpdateStatus)
	tickets.Patch("/:id/priority", staff, cfg.Tickets.UpdatePriority)
	tickets.Patch("/:id/assignee", staff, cfg.Tickets.AssignTicket)
	tickets.Get("/:id/messages", cfg.Tickets.ListMessages)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)
	tickets.Get("/:id/history", cfg.Tickets.ListHistory)
	tickets.Get("/:id/sla", cfg.Tickets.GetSLAStatus)
	tickets.Put("/:id/sla-policy", staff, cfg.Tickets.AssignSLAPolicy)
	tickets.Post("/:id/sms", staff, cfg.Webhooks.SendSMS)

	tickets.Get("/:id/relationships", cfg.Relationships.GetRelationships)
	tickets.Post("/:id/relationships", staff, cfg.Relationships.CreateRelationship)
	tickets.Delete("/:id/relationships/:childId", staff, cfg.Relationships.DeleteRelationship)
	tickets.Post("/:id/merge", staff, cfg.Relationships.MergeTickets)

	policies := api.Group("/sla-policies", staff)
	policies.Get("/", cfg.SLA.ListPolicies)
	policies.Get("/defaults", cfg.SLA.DefaultPolicies)
	policies.Get("/:id", cfg.SLA.GetPolicy)
	policies.Post("/", admin, cfg.SLA.CreatePolicy)
	policies.Put("/:id", admin, cfg.SLA.UpdatePolicy)
	policies.Delete("/:id", admin, cfg.SLA.DeletePolicy)
	api.Post("/sla/evaluate", admin, cfg.SLA.EvaluateBreaches)
	api.Get("/statistics/tickets", staff, cfg.SLA.Statistics)

	channels := api.Group("/channels", admin)
	channels.Get("/", cfg.Channels.ListChannels)
	channels.Get("/:id", cfg.Channels.GetChannel)
	channels.Post("/", cfg.Channels.CreateChannel)
	channels.Put("/:id", cfg.Channels.UpdateChannel)
	channels.Delete("/:id", cfg.Channels.DeleteChannel)

	chats := api.Group("/chats/:channelId", staff)
	chats.Post("/:chatId/messages", cfg.Chat.AgentMessage)
	chats.Post("/:chatId/end", cfg.Chat.EndChat)
}
