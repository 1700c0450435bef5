package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deskline/support-desk/internal/api/dto"
	"github.com/deskline/support-desk/internal/auth"
	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/service"
	apperrors "github.com/deskline/support-desk/pkg/util/errorutil"
)

// ChannelsHandler administers ingestion channels.
type ChannelsHandler struct {
	service *service.ChannelService
}

// NewChannelsHandler constructs handler.
func NewChannelsHandler(channels *service.ChannelService) *ChannelsHandler {
	return &ChannelsHandler{service: channels}
}

// ListChannels GET /channels.
func (h *ChannelsHandler) ListChannels(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	channels, err := h.service.ListChannels(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewChannelList(channels)})
}

// GetChannel GET /channels/:id.
func (h *ChannelsHandler) GetChannel(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	channel, err := h.service.GetChannel(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewChannelResponse(channel)})
}

// CreateChannel POST /channels.
func (h *ChannelsHandler) CreateChannel(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.ChannelRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	input, err := channelInput(req)
	if err != nil {
		return err
	}
	channel, err := h.service.CreateChannel(c.UserContext(), input, actor)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewChannelResponse(channel)})
}

// UpdateChannel PUT /channels/:id. Masked secrets echoed back keep their stored value.
func (h *ChannelsHandler) UpdateChannel(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.ChannelRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	input, err := channelInput(req)
	if err != nil {
		return err
	}
	existing, err := h.service.GetChannel(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	dto.RestoreSecrets(&input.Config, existing.Config)

	channel, err := h.service.UpdateChannel(c.UserContext(), c.Params("id"), input, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewChannelResponse(channel)})
}

// DeleteChannel DELETE /channels/:id.
func (h *ChannelsHandler) DeleteChannel(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteChannel(c.UserContext(), c.Params("id"), actor); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func channelInput(req dto.ChannelRequest) (service.ChannelInput, error) {
	cfg, err := domain.UnmarshalConfig(req.Type, req.Config)
	if err != nil {
		return service.ChannelInput{}, apperrors.NewValidationError("invalid channel config", map[string]any{"config": err.Error()})
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return service.ChannelInput{Name: req.Name, Type: req.Type, IsActive: active, Config: cfg}, nil
}
