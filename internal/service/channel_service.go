package service

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/deskline/support-desk/internal/calendar"
	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/repository"
	apperrors "github.com/deskline/support-desk/pkg/util/errorutil"
)

// ChannelService administers ingestion channels.
type ChannelService struct {
	core
	validate *validator.Validate
}

// ChannelInput is the writable part of a channel.
type ChannelInput struct {
	Name     string
	Type     domain.ChannelType
	IsActive bool
	Config   domain.ChannelConfig
}

// NewChannelService constructs the service.
func NewChannelService(deps Dependencies) *ChannelService {
	return &ChannelService{core: newCore(deps), validate: validator.New()}
}

// ListChannels returns all channels, active or not.
func (s *ChannelService) ListChannels(ctx context.Context, actor domain.Actor) ([]domain.Channel, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	channels, err := s.store.Channels().List(ctx)
	if err != nil {
		return nil, err
	}
	if channels == nil {
		channels = []domain.Channel{}
	}
	return channels, nil
}

// GetChannel fetches one channel.
func (s *ChannelService) GetChannel(ctx context.Context, id string, actor domain.Actor) (*domain.Channel, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	channel, err := s.store.Channels().GetByID(ctx, id)
	if err != nil {
		return nil, channelErr(id, err)
	}
	return channel, nil
}

// CreateChannel stores a new channel.
func (s *ChannelService) CreateChannel(ctx context.Context, input ChannelInput, actor domain.Actor) (*domain.Channel, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	now := s.now()
	channel := &domain.Channel{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(input.Name),
		Type:      input.Type,
		IsActive:  input.IsActive,
		Config:    input.Config,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Channels().Create(ctx, channel); err != nil {
		return nil, err
	}
	return channel, nil
}

// UpdateChannel changes name, config and activation. The type is fixed at creation.
func (s *ChannelService) UpdateChannel(ctx context.Context, id string, input ChannelInput, actor domain.Actor) (*domain.Channel, error) {
	channel, err := s.GetChannel(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if input.Type != "" && input.Type != channel.Type {
		return nil, apperrors.NewValidationError("channel type cannot change", map[string]any{"type": input.Type})
	}
	input.Type = channel.Type
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	channel.Name = strings.TrimSpace(input.Name)
	channel.IsActive = input.IsActive
	channel.Config = input.Config
	channel.UpdatedAt = s.now()
	if err := s.store.Channels().Update(ctx, channel); err != nil {
		return nil, channelErr(id, err)
	}
	return channel, nil
}

// DeleteChannel removes a channel. Messages keep their content and lose the channel reference.
func (s *ChannelService) DeleteChannel(ctx context.Context, id string, actor domain.Actor) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.store.Channels().Delete(ctx, id); err != nil {
		return channelErr(id, err)
	}
	return nil
}

func (s *ChannelService) validateInput(input ChannelInput) error {
	details := map[string]any{}
	if strings.TrimSpace(input.Name) == "" {
		details["name"] = "required"
	}
	if !input.Type.Valid() {
		details["type"] = "must be email, chat or phone"
	} else if !input.Config.Matches(input.Type) {
		details["config"] = "config does not match channel type"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid channel", details)
	}

	var err error
	switch input.Type {
	case domain.ChannelTypeEmail:
		err = s.validate.Struct(input.Config.Email)
	case domain.ChannelTypePhone:
		err = s.validate.Struct(input.Config.Phone)
	case domain.ChannelTypeChat:
		err = validateOperatingHours(input.Config.Chat.OperatingHours)
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
		return apperrors.NewValidationError("invalid channel config", details)
	}
	return err
}

func validateOperatingHours(hours *domain.OperatingHours) error {
	if hours == nil {
		return nil
	}
	if _, err := calendar.FromOperatingHours(*hours); err != nil {
		return apperrors.NewValidationError("invalid operating hours", map[string]any{"operating_hours": err.Error()})
	}
	return nil
}

func channelErr(id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("channel", map[string]any{"channel_id": id})
	}
	return err
}
