// Package channels turns inbound chat, email and phone interactions into
// ticket creations or appends.
package channels

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/repository"
	"github.com/deskline/support-desk/internal/service"
	"github.com/deskline/support-desk/internal/worker"
	apperrors "github.com/deskline/support-desk/pkg/util/errorutil"
)

// InboundKind discriminates InboundEvent.
type InboundKind string

const (
	KindChatStart   InboundKind = "chat.start"
	KindChatMessage InboundKind = "chat.message"
	KindEmail       InboundKind = "email"
	KindCall        InboundKind = "phone.call"
	KindVoicemail   InboundKind = "phone.voicemail"
	KindSMS         InboundKind = "phone.sms"
)

// InboundEvent carries exactly the payload named by Kind.
type InboundEvent struct {
	Kind        InboundKind
	ChatStart   *ChatStart
	ChatMessage *ChatMessage
	Email       *InboundEmail
	Call        *IncomingCall
	Voicemail   *Voicemail
	SMS         *InboundSMS
}

// IngestResult identifies the ticket an inbound event landed on.
type IngestResult struct {
	TicketID  string `json:"ticket_id"`
	MessageID string `json:"message_id,omitempty"`
	// Created is set when the event opened a new ticket.
	Created bool `json:"created"`
	// Duplicate is set when the event was a redelivery and nothing was written.
	Duplicate bool `json:"duplicate"`
}

// Adapter is the capability shared by every channel type.
type Adapter interface {
	Type() domain.ChannelType
	ChannelID() string
	Ingest(ctx context.Context, event InboundEvent) (IngestResult, error)
	AppendMessage(ctx context.Context, ticketID, content string, sender domain.SenderType) (*domain.TicketMessage, error)
}

// Outbound accepts fire-and-forget deliveries. *worker.Queue implements it.
type Outbound interface {
	Enqueue(ctx context.Context, task worker.Task) bool
}

// RegistryDependencies bundles what adapters need.
type RegistryDependencies struct {
	Channels repository.ChannelRepository
	Messages repository.TicketMessageRepository
	Tickets  *service.TicketService
	Outbound Outbound
	// NewMailer builds the SMTP sender for an email channel. Defaults to NewSMTPMailer.
	NewMailer func(cfg domain.EmailConfig, defaultFrom string) Mailer
	// NewSMSSender builds the SMS sender for a phone channel. Defaults to NewTwilioSender.
	NewSMSSender func(cfg domain.PhoneConfig) SMSSender
	DefaultFrom  string
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Registry resolves channel ids to adapters. It reads the channel on every
// call, so deactivation takes effect immediately.
type Registry struct {
	deps RegistryDependencies
}

// NewRegistry constructs a registry.
func NewRegistry(deps RegistryDependencies) *Registry {
	if deps.NewMailer == nil {
		deps.NewMailer = NewSMTPMailer
	}
	if deps.NewSMSSender == nil {
		deps.NewSMSSender = NewTwilioSender
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Registry{deps: deps}
}

// Resolve returns the adapter for an active channel. When want is set the
// channel must be of that type.
func (r *Registry) Resolve(ctx context.Context, channelID string, want domain.ChannelType) (Adapter, error) {
	channel, err := r.deps.Channels.GetByID(ctx, channelID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewChannelUnavailable(channelID, "channel not found")
		}
		return nil, err
	}
	if !channel.IsActive {
		return nil, apperrors.NewChannelUnavailable(channelID, "channel is inactive")
	}
	if want != "" && channel.Type != want {
		return nil, apperrors.NewChannelUnavailable(channelID, "channel is not a "+string(want)+" channel")
	}
	if !channel.Config.Matches(channel.Type) {
		return nil, apperrors.NewChannelUnavailable(channelID, "channel config does not match its type")
	}

	switch channel.Type {
	case domain.ChannelTypeChat:
		return &ChatAdapter{base: r.base(channel), config: *channel.Config.Chat}, nil
	case domain.ChannelTypeEmail:
		cfg := *channel.Config.Email
		return &EmailAdapter{base: r.base(channel), config: cfg, mailer: r.deps.NewMailer(cfg, r.deps.DefaultFrom)}, nil
	case domain.ChannelTypePhone:
		cfg := *channel.Config.Phone
		return &PhoneAdapter{base: r.base(channel), config: cfg, sms: r.deps.NewSMSSender(cfg)}, nil
	}
	return nil, apperrors.NewChannelUnavailable(channelID, "unsupported channel type")
}

// Chat resolves an active chat channel.
func (r *Registry) Chat(ctx context.Context, channelID string) (*ChatAdapter, error) {
	a, err := r.Resolve(ctx, channelID, domain.ChannelTypeChat)
	if err != nil {
		return nil, err
	}
	return a.(*ChatAdapter), nil
}

// Email resolves an active email channel.
func (r *Registry) Email(ctx context.Context, channelID string) (*EmailAdapter, error) {
	a, err := r.Resolve(ctx, channelID, domain.ChannelTypeEmail)
	if err != nil {
		return nil, err
	}
	return a.(*EmailAdapter), nil
}

// Phone resolves an active phone channel.
func (r *Registry) Phone(ctx context.Context, channelID string) (*PhoneAdapter, error) {
	a, err := r.Resolve(ctx, channelID, domain.ChannelTypePhone)
	if err != nil {
		return nil, err
	}
	return a.(*PhoneAdapter), nil
}

func (r *Registry) base(channel *domain.Channel) base {
	return base{
		channelID: channel.ID,
		tickets:   r.deps.Tickets,
		messages:  r.deps.Messages,
		outbound:  r.deps.Outbound,
		clock:     r.deps.Clock,
		logger:    r.deps.Logger.With(zap.String("channel_id", channel.ID), zap.String("channel_type", string(channel.Type))),
	}
}

// base holds what every adapter shares.
type base struct {
	channelID string
	tickets   *service.TicketService
	messages  repository.TicketMessageRepository
	outbound  Outbound
	clock     func() time.Time
	logger    *zap.Logger
}

func (b base) ChannelID() string {
	return b.channelID
}

// channelRef returns the channel id as a nullable message column.
func (b base) channelRef() *string {
	id := b.channelID
	return &id
}

// enqueue hands a delivery to the outbound worker; without one it is only logged.
func (b base) enqueue(ctx context.Context, task worker.Task) {
	if b.outbound == nil {
		b.logger.Warn("no outbound worker configured; delivery skipped", zap.String("task", task.Name))
		return
	}
	b.outbound.Enqueue(ctx, task)
}

// findExisting looks up an already stored message by external id.
func (b base) findExisting(ctx context.Context, lookup repository.MessageLookup) (IngestResult, bool, error) {
	msg, err := b.messages.FindByMetadata(ctx, lookup)
	if errors.Is(err, repository.ErrNotFound) {
		return IngestResult{}, false, nil
	}
	if err != nil {
		return IngestResult{}, false, err
	}
	return IngestResult{TicketID: msg.TicketID, MessageID: msg.ID, Duplicate: true}, true, nil
}

// findIn looks up a message inside a transaction.
func findIn(ctx context.Context, tx repository.Store, lookup repository.MessageLookup) (*domain.TicketMessage, error) {
	msg, err := tx.Messages().FindByMetadata(ctx, lookup)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return msg, err
}

// recoverDuplicate turns a unique-index race on redelivery into the stored result.
func (b base) recoverDuplicate(ctx context.Context, err error, lookup repository.MessageLookup) (IngestResult, error) {
	if !errors.Is(err, repository.ErrDuplicate) {
		return IngestResult{}, err
	}
	result, found, lookupErr := b.findExisting(ctx, lookup)
	if lookupErr != nil {
		return IngestResult{}, lookupErr
	}
	if !found {
		return IngestResult{}, err
	}
	return result, nil
}

func unsupported(kind InboundKind, channel domain.ChannelType) error {
	return apperrors.NewValidationError("event kind not supported by channel",
		map[string]any{"kind": kind, "channel_type": channel})
}
