package channels

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deskline/support-desk/internal/calendar"
	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/lifecycle"
	"github.com/deskline/support-desk/internal/service"
	apperrors "github.com/deskline/support-desk/pkg/util/errorutil"
)

// ChatStart opens a conversation from the widget.
type ChatStart struct {
	VisitorName    string
	VisitorEmail   string
	InitialMessage string
}

// ChatMessage is a line posted into an open conversation.
type ChatMessage struct {
	ChatID     string
	Content    string
	SenderType domain.SenderType
}

// ChatAdapter backs the web chat widget. A chat is a ticket whose messages
// carry message_type chat.
type ChatAdapter struct {
	base
	config domain.ChatConfig
}

func (a *ChatAdapter) Type() domain.ChannelType {
	return domain.ChannelTypeChat
}

// Config returns the widget settings.
func (a *ChatAdapter) Config() domain.ChatConfig {
	return a.config
}

func (a *ChatAdapter) Ingest(ctx context.Context, event InboundEvent) (IngestResult, error) {
	switch {
	case event.Kind == KindChatStart && event.ChatStart != nil:
		return a.StartChat(ctx, *event.ChatStart)
	case event.Kind == KindChatMessage && event.ChatMessage != nil:
		msg, err := a.SendMessage(ctx, *event.ChatMessage)
		if err != nil {
			return IngestResult{}, err
		}
		return IngestResult{TicketID: msg.TicketID, MessageID: msg.ID}, nil
	}
	return IngestResult{}, unsupported(event.Kind, domain.ChannelTypeChat)
}

func (a *ChatAdapter) AppendMessage(ctx context.Context, ticketID, content string, sender domain.SenderType) (*domain.TicketMessage, error) {
	return a.SendMessage(ctx, ChatMessage{ChatID: ticketID, Content: content, SenderType: sender})
}

// StartChat creates the chat ticket and its opening visitor message.
func (a *ChatAdapter) StartChat(ctx context.Context, start ChatStart) (IngestResult, error) {
	name := strings.TrimSpace(start.VisitorName)
	if name == "" {
		return IngestResult{}, apperrors.NewValidationError("visitor name is required", map[string]any{"visitor_name": "required"})
	}
	email := strings.TrimSpace(start.VisitorEmail)

	input := service.TicketCreateInput{
		Title:       "Chat with " + name,
		Description: start.InitialMessage,
		Priority:    domain.TicketPriorityMedium,
		Metadata: domain.Metadata{
			domain.MetaIsVisitor:    true,
			domain.MetaVisitorName:  name,
			domain.MetaVisitorEmail: email,
			domain.MetaChannelType:  string(domain.ChannelTypeChat),
			domain.MetaChannelID:    a.channelID,
		},
	}
	first := &service.MessageInput{
		SenderType: domain.SenderVisitor,
		Kind:       domain.MessageKindChat,
		Content:    start.InitialMessage,
		ChannelID:  a.channelRef(),
		Metadata: domain.Metadata{
			domain.MsgVisitorName:  name,
			domain.MsgVisitorEmail: email,
		},
	}

	var result IngestResult
	err := a.tickets.Ingest(ctx, func(w *service.TicketWriter) error {
		ticket, msg, err := w.Create(domain.SystemActor, input, first)
		if err != nil {
			return err
		}
		result = IngestResult{TicketID: ticket.ID, MessageID: msg.ID, Created: true}
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}
	a.logger.Info("chat started", zap.String("ticket_id", result.TicketID))
	return result, nil
}

// SendMessage posts a visitor or agent line. Closed chats reject messages and
// agent lines need an assignee, which becomes the sender.
func (a *ChatAdapter) SendMessage(ctx context.Context, in ChatMessage) (*domain.TicketMessage, error) {
	sender := in.SenderType
	if sender == "" {
		sender = domain.SenderVisitor
	}
	if sender != domain.SenderVisitor && sender != domain.SenderAgent {
		return nil, apperrors.NewValidationError("chat sender must be visitor or agent", map[string]any{"sender_type": sender})
	}

	var msg *domain.TicketMessage
	err := a.tickets.Ingest(ctx, func(w *service.TicketWriter) error {
		ticket, err := a.lockChat(w, in.ChatID)
		if err != nil {
			return err
		}
		message := service.MessageInput{
			SenderType: sender,
			Kind:       domain.MessageKindChat,
			Content:    in.Content,
			ChannelID:  a.channelRef(),
		}
		if sender == domain.SenderAgent {
			if ticket.AssignedTo == nil {
				return apperrors.NewNoAgentAssigned(in.ChatID)
			}
			agent := *ticket.AssignedTo
			message.SenderID = &agent
		} else {
			message.Metadata = domain.Metadata{
				domain.MsgVisitorName:  ticket.Metadata.String(domain.MetaVisitorName),
				domain.MsgVisitorEmail: ticket.Metadata.String(domain.MetaVisitorEmail),
			}
		}
		msg, err = w.Append(ticket.ID, message, domain.SystemActor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// EndChat appends an optional summary from the closing agent and walks the
// ticket to closed through the transition table.
func (a *ChatAdapter) EndChat(ctx context.Context, chatID string, actor domain.Actor, summary string) (*domain.Ticket, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("only staff can end a chat")
	}
	summary = strings.TrimSpace(summary)

	var ticket *domain.Ticket
	err := a.tickets.Ingest(ctx, func(w *service.TicketWriter) error {
		current, err := a.lockChat(w, chatID)
		if err != nil {
			return err
		}
		if summary != "" {
			_, err := w.Append(current.ID, service.MessageInput{
				SenderID:   actor.IDPtr(),
				SenderType: domain.SenderAgent,
				Kind:       domain.MessageKindChat,
				Content:    "Chat ended. Summary: " + summary,
				ChannelID:  a.channelRef(),
			}, actor)
			if err != nil {
				return err
			}
		}

		path, ok := lifecycle.PathTo(current.Status, domain.TicketStatusClosed, actor.Role)
		if !ok {
			return apperrors.NewInvalidTransition(string(current.Status), string(domain.TicketStatusClosed))
		}
		comment := summary
		if comment == "" {
			comment = "Chat ended"
		}
		ticket = current
		for _, step := range path {
			ticket, err = w.ChangeStatus(chatID, step.To, actor, comment)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// IsAvailable reports whether now falls inside the operating hours. A chat
// channel without a schedule is always available.
func (a *ChatAdapter) IsAvailable(now time.Time) bool {
	hours := a.config.OperatingHours
	if hours == nil || len(hours.Schedule) == 0 {
		return true
	}
	cal, err := calendar.FromOperatingHours(*hours)
	if err != nil {
		a.logger.Warn("invalid operating hours; treating chat as available", zap.Error(err))
		return true
	}
	return cal.IsOpen(now)
}

// OfflineMessage is shown by the widget outside operating hours.
func (a *ChatAdapter) OfflineMessage() string {
	return a.config.OfflineMessage
}

// lockChat loads an open chat ticket of this channel.
func (a *ChatAdapter) lockChat(w *service.TicketWriter, chatID string) (*domain.Ticket, error) {
	ticket, err := w.Lock(chatID)
	if err != nil {
		return nil, err
	}
	if ticket.Metadata.String(domain.MetaChannelType) != string(domain.ChannelTypeChat) ||
		ticket.Metadata.String(domain.MetaChannelID) != a.channelID {
		return nil, apperrors.NewTicketNotFound(chatID)
	}
	if ticket.Status == domain.TicketStatusClosed {
		return nil, apperrors.NewChatClosed(chatID)
	}
	return ticket, nil
}
