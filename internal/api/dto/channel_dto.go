package dto

import (
	"encoding/json"
	"time"

	"github.com/deskline/support-desk/internal/domain"
)

const redacted = "********"

// ChannelRequest creates or replaces a channel. Config is the flat object for Type.
type ChannelRequest struct {
	Name     string             `json:"name" validate:"required,max=255"`
	Type     domain.ChannelType `json:"type" validate:"required,oneof=email chat phone"`
	IsActive *bool              `json:"is_active"`
	Config   json.RawMessage    `json:"config"`
}

// ChannelResponse represents a channel with secrets masked.
type ChannelResponse struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Type      domain.ChannelType `json:"type"`
	IsActive  bool               `json:"is_active"`
	Config    json.RawMessage    `json:"config"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// NewChannelResponse maps a channel.
func NewChannelResponse(ch *domain.Channel) ChannelResponse {
	cfg := ch.Config
	if cfg.Email != nil {
		email := *cfg.Email
		if email.SMTPPass != "" {
			email.SMTPPass = redacted
		}
		cfg.Email = &email
	}
	if cfg.Phone != nil {
		phone := *cfg.Phone
		if phone.AuthToken != "" {
			phone.AuthToken = redacted
		}
		cfg.Phone = &phone
	}
	raw, err := domain.MarshalConfig(cfg)
	if err != nil {
		raw = []byte("{}")
	}
	return ChannelResponse{
		ID:        ch.ID,
		Name:      ch.Name,
		Type:      ch.Type,
		IsActive:  ch.IsActive,
		Config:    raw,
		CreatedAt: ch.CreatedAt,
		UpdatedAt: ch.UpdatedAt,
	}
}

// NewChannelList maps channels.
func NewChannelList(channels []domain.Channel) []ChannelResponse {
	items := make([]ChannelResponse, 0, len(channels))
	for i := range channels {
		items = append(items, NewChannelResponse(&channels[i]))
	}
	return items
}

// StartChatRequest opens a visitor conversation.
type StartChatRequest struct {
	VisitorName    string `json:"visitor_name" validate:"required,max=255"`
	VisitorEmail   string `json:"visitor_email" validate:"omitempty,email"`
	InitialMessage string `json:"initial_message" validate:"required"`
}

// ChatMessageRequest posts into a conversation.
type ChatMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

// EndChatRequest closes a conversation.
type EndChatRequest struct {
	Summary string `json:"summary"`
}

// ChatAvailabilityResponse reports whether agents are online.
type ChatAvailabilityResponse struct {
	Available      bool   `json:"available"`
	WidgetTitle    string `json:"widget_title,omitempty"`
	OfflineMessage string `json:"offline_message,omitempty"`
}

// InboundEmailRequest is the normalized payload posted by the mail gateway.
type InboundEmailRequest struct {
	MessageID  string   `json:"message_id"`
	From       string   `json:"from" validate:"required,email"`
	To         string   `json:"to"`
	Subject    string   `json:"subject"`
	Text       string   `json:"text"`
	HTML       string   `json:"html"`
	InReplyTo  string   `json:"in_reply_to"`
	References []string `json:"references"`
}

// SendSMSRequest sends an outbound text from a ticket.
type SendSMSRequest struct {
	ChannelID string `json:"channel_id" validate:"required"`
	To        string `json:"to" validate:"required,e164"`
	Body      string `json:"body" validate:"required,max=1600"`
}

// RestoreSecrets replaces masked secrets in cfg with the stored values.
func RestoreSecrets(cfg *domain.ChannelConfig, stored domain.ChannelConfig) {
	if cfg.Email != nil && cfg.Email.SMTPPass == redacted && stored.Email != nil {
		cfg.Email.SMTPPass = stored.Email.SMTPPass
	}
	if cfg.Phone != nil && cfg.Phone.AuthToken == redacted && stored.Phone != nil {
		cfg.Phone.AuthToken = stored.Phone.AuthToken
	}
}
