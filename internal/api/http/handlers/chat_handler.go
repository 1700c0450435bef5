package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/deskline/support-desk/internal/api/dto"
	"github.com/deskline/support-desk/internal/auth"
	"github.com/deskline/support-desk/internal/channels"
	"github.com/deskline/support-desk/internal/domain"
)

// ChatHandler serves the chat widget and the agent side of conversations.
type ChatHandler struct {
	registry *channels.Registry
	clock    func() time.Time
}

// NewChatHandler constructs handler. A nil clock uses time.Now.
func NewChatHandler(registry *channels.Registry, clock func() time.Time) *ChatHandler {
	if clock == nil {
		clock = time.Now
	}
	return &ChatHandler{registry: registry, clock: clock}
}

// Availability GET /chat/:channelId/availability.
func (h *ChatHandler) Availability(c *fiber.Ctx) error {
	adapter, err := h.registry.Chat(c.UserContext(), c.Params("channelId"))
	if err != nil {
		return err
	}
	resp := dto.ChatAvailabilityResponse{
		Available:   adapter.IsAvailable(h.clock()),
		WidgetTitle: adapter.Config().WidgetTitle,
	}
	if !resp.Available {
		resp.OfflineMessage = adapter.OfflineMessage()
	}
	return c.JSON(fiber.Map{"data": resp})
}

// StartChat POST /chat/:channelId. Opening hours are advisory; the widget decides what to show.
func (h *ChatHandler) StartChat(c *fiber.Ctx) error {
	adapter, err := h.registry.Chat(c.UserContext(), c.Params("channelId"))
	if err != nil {
		return err
	}
	var req dto.StartChatRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := adapter.StartChat(c.UserContext(), channels.ChatStart{
		VisitorName:    req.VisitorName,
		VisitorEmail:   req.VisitorEmail,
		InitialMessage: req.InitialMessage,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"data": result,
		"meta": fiber.Map{"available": adapter.IsAvailable(h.clock())},
	})
}

// VisitorMessage POST /chat/:channelId/:chatId/messages.
func (h *ChatHandler) VisitorMessage(c *fiber.Ctx) error {
	return h.postMessage(c, domain.SenderVisitor)
}

// AgentMessage POST /chats/:channelId/:chatId/messages.
func (h *ChatHandler) AgentMessage(c *fiber.Ctx) error {
	return h.postMessage(c, domain.SenderAgent)
}

func (h *ChatHandler) postMessage(c *fiber.Ctx, sender domain.SenderType) error {
	adapter, err := h.registry.Chat(c.UserContext(), c.Params("channelId"))
	if err != nil {
		return err
	}
	var req dto.ChatMessageRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	msg, err := adapter.SendMessage(c.UserContext(), channels.ChatMessage{
		ChatID:     c.Params("chatId"),
		Content:    req.Content,
		SenderType: sender,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketMessageResponse(msg)})
}

// EndChat POST /chats/:channelId/:chatId/end.
func (h *ChatHandler) EndChat(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	adapter, err := h.registry.Chat(c.UserContext(), c.Params("channelId"))
	if err != nil {
		return err
	}
	var req dto.EndChatRequest
	if len(c.Body()) > 0 {
		if err := bind(c, &req); err != nil {
			return err
		}
	}
	ticket, err := adapter.EndChat(c.UserContext(), c.Params("chatId"), actor, req.Summary)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}
