package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ChannelType selects the adapter and the shape of the channel config.
type ChannelType string

const (
	ChannelTypeEmail ChannelType = "email"
	ChannelTypeChat  ChannelType = "chat"
	ChannelTypePhone ChannelType = "phone"
)

func (t ChannelType) Valid() bool {
	return t == ChannelTypeEmail || t == ChannelTypeChat || t == ChannelTypePhone
}

// Channel is a configured ingestion endpoint.
type Channel struct {
	ID        string
	Name      string
	Type      ChannelType
	IsActive  bool
	Config    ChannelConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChannelConfig holds exactly one variant, matching the channel type.
type ChannelConfig struct {
	Email *EmailConfig
	Chat  *ChatConfig
	Phone *PhoneConfig
}

// EmailConfig configures inbound mail and auto-responses.
type EmailConfig struct {
	InboundAddress       string `json:"inbound_address" validate:"omitempty,email"`
	SMTPHost             string `json:"smtp_host"`
	SMTPPort             int    `json:"smtp_port"`
	SMTPSecure           bool   `json:"smtp_secure"`
	SMTPUser             string `json:"smtp_user"`
	SMTPPass             string `json:"smtp_pass"`
	FromAddress          string `json:"from_address" validate:"omitempty,email"`
	AutoResponseTemplate string `json:"auto_response_template"`
}

// ChatConfig configures the chat widget.
type ChatConfig struct {
	WidgetTitle    string          `json:"widget_title"`
	OperatingHours *OperatingHours `json:"operating_hours,omitempty"`
	OfflineMessage string          `json:"offline_message"`
}

// OperatingHours maps lowercase weekday names to opening windows.
type OperatingHours struct {
	Timezone string                `json:"timezone"`
	Schedule map[string]HoursRange `json:"schedule"`
}

// HoursRange is an inclusive HH:MM window.
type HoursRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// PhoneConfig configures the Twilio-backed phone channel.
type PhoneConfig struct {
	AccountSID           string `json:"account_sid"`
	AuthToken            string `json:"auth_token"`
	PhoneNumber          string `json:"phone_number" validate:"omitempty,e164"`
	VoicemailGreeting    string `json:"voicemail_greeting"`
	TranscriptionEnabled bool   `json:"transcription_enabled"`
	RecordingEnabled     bool   `json:"recording_enabled"`
	SMSEnabled           bool   `json:"sms_enabled"`
}

// Matches reports whether the populated variant agrees with t.
func (c ChannelConfig) Matches(t ChannelType) bool {
	switch t {
	case ChannelTypeEmail:
		return c.Email != nil && c.Chat == nil && c.Phone == nil
	case ChannelTypeChat:
		return c.Chat != nil && c.Email == nil && c.Phone == nil
	case ChannelTypePhone:
		return c.Phone != nil && c.Email == nil && c.Chat == nil
	}
	return false
}

// MarshalConfig encodes the active variant as a flat JSON object.
func MarshalConfig(c ChannelConfig) ([]byte, error) {
	switch {
	case c.Email != nil:
		return json.Marshal(c.Email)
	case c.Chat != nil:
		return json.Marshal(c.Chat)
	case c.Phone != nil:
		return json.Marshal(c.Phone)
	}
	return []byte("{}"), nil
}

// UnmarshalConfig decodes raw JSON into the variant selected by t.
func UnmarshalConfig(t ChannelType, raw []byte) (ChannelConfig, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	var cfg ChannelConfig
	switch t {
	case ChannelTypeEmail:
		cfg.Email = &EmailConfig{}
		return cfg, json.Unmarshal(raw, cfg.Email)
	case ChannelTypeChat:
		cfg.Chat = &ChatConfig{}
		return cfg, json.Unmarshal(raw, cfg.Chat)
	case ChannelTypePhone:
		cfg.Phone = &PhoneConfig{}
		return cfg, json.Unmarshal(raw, cfg.Phone)
	}
	return cfg, fmt.Errorf("unknown channel type %q", t)
}
