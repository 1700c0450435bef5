package channels

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/repository"
	"github.com/deskline/support-desk/internal/service"
	"github.com/deskline/support-desk/internal/worker"
	apperrors "github.com/deskline/support-desk/pkg/util/errorutil"
)

const defaultEmailTitle = "Email Inquiry"

// InboundEmail is a parsed message delivered by the mail provider.
type InboundEmail struct {
	MessageID  string   `json:"message_id"`
	From       string   `json:"from"`
	To         string   `json:"to"`
	Subject    string   `json:"subject"`
	Text       string   `json:"text"`
	HTML       string   `json:"html"`
	InReplyTo  string   `json:"in_reply_to"`
	References []string `json:"references"`
}

// EmailAdapter threads inbound mail onto tickets and sends auto-responses.
type EmailAdapter struct {
	base
	config domain.EmailConfig
	mailer Mailer
}

func (a *EmailAdapter) Type() domain.ChannelType {
	return domain.ChannelTypeEmail
}

func (a *EmailAdapter) Ingest(ctx context.Context, event InboundEvent) (IngestResult, error) {
	if event.Kind == KindEmail && event.Email != nil {
		return a.ProcessIncomingEmail(ctx, *event.Email)
	}
	return IngestResult{}, unsupported(event.Kind, domain.ChannelTypeEmail)
}

func (a *EmailAdapter) AppendMessage(ctx context.Context, ticketID, content string, sender domain.SenderType) (*domain.TicketMessage, error) {
	var msg *domain.TicketMessage
	err := a.tickets.Ingest(ctx, func(w *service.TicketWriter) error {
		var err error
		msg, err = w.Append(ticketID, service.MessageInput{
			SenderType: sender,
			Kind:       domain.MessageKindEmail,
			Content:    content,
			ChannelID:  a.channelRef(),
		}, domain.SystemActor)
		return err
	})
	return msg, err
}

// ProcessIncomingEmail appends the email to the thread it replies to, or opens
// a new ticket. A redelivered Message-ID returns the stored result unchanged.
func (a *EmailAdapter) ProcessIncomingEmail(ctx context.Context, email InboundEmail) (IngestResult, error) {
	from := strings.TrimSpace(email.From)
	if from == "" {
		return IngestResult{}, apperrors.NewValidationError("sender address is required", map[string]any{"from": "required"})
	}
	content := strings.TrimSpace(email.Text)
	if content == "" {
		content = strings.TrimSpace(email.Subject)
	}
	if content == "" {
		return IngestResult{}, apperrors.NewValidationError("email has no text content", nil)
	}
	messageID := strings.TrimSpace(email.MessageID)
	dedup := repository.MessageLookup{Key: domain.MsgEmailMessageID, Values: []string{messageID}}

	if messageID != "" {
		result, found, err := a.findExisting(ctx, dedup)
		if err != nil {
			return IngestResult{}, err
		}
		if found {
			a.logger.Info("duplicate email ignored", zap.String("message_id", messageID))
			return result, nil
		}
	}

	title := strings.TrimSpace(email.Subject)
	if title == "" {
		title = defaultEmailTitle
	}
	metadata := domain.Metadata{
		domain.MsgEmailFrom:    from,
		domain.MsgEmailSubject: email.Subject,
	}
	if messageID != "" {
		metadata[domain.MsgEmailMessageID] = messageID
	}
	if v := strings.TrimSpace(email.InReplyTo); v != "" {
		metadata[domain.MsgEmailInReplyTo] = v
	}
	if len(email.References) > 0 {
		metadata[domain.MsgEmailReferences] = append([]string(nil), email.References...)
	}
	if email.HTML != "" {
		metadata[domain.MsgEmailHTML] = email.HTML
	}
	message := service.MessageInput{
		SenderType: domain.SenderCustomer,
		Kind:       domain.MessageKindEmail,
		Content:    content,
		ChannelID:  a.channelRef(),
		Metadata:   metadata,
	}

	var result IngestResult
	err := a.tickets.Ingest(ctx, func(w *service.TicketWriter) error {
		ticketID, err := threadTicket(ctx, w, email)
		if err != nil {
			return err
		}
		if ticketID != "" {
			msg, err := w.Append(ticketID, message, domain.SystemActor)
			if err != nil {
				return err
			}
			result = IngestResult{TicketID: msg.TicketID, MessageID: msg.ID}
			return nil
		}
		ticket, msg, err := w.Create(domain.SystemActor, service.TicketCreateInput{
			Title:       title,
			Description: content,
			Priority:    domain.TicketPriorityMedium,
			Metadata: domain.Metadata{
				domain.MetaChannelType: string(domain.ChannelTypeEmail),
				domain.MetaChannelID:   a.channelID,
				domain.MetaEmailFrom:   from,
			},
		}, &message)
		if err != nil {
			return err
		}
		result = IngestResult{TicketID: ticket.ID, MessageID: msg.ID, Created: true}
		return nil
	})
	if err != nil {
		if messageID == "" {
			return IngestResult{}, err
		}
		return a.recoverDuplicate(ctx, err, dedup)
	}

	if result.Created {
		a.sendAutoResponse(ctx, from, title, messageID, result.TicketID)
	}
	return result, nil
}

// threadTicket finds the ticket an email replies to. In-Reply-To is tried
// first, then References from newest to oldest.
func threadTicket(ctx context.Context, w *service.TicketWriter, email InboundEmail) (string, error) {
	var candidates []string
	if v := strings.TrimSpace(email.InReplyTo); v != "" {
		candidates = append(candidates, v)
	}
	for i := len(email.References) - 1; i >= 0; i-- {
		if v := strings.TrimSpace(email.References[i]); v != "" {
			candidates = append(candidates, v)
		}
	}
	for _, id := range candidates {
		for _, key := range []string{domain.MsgEmailMessageID, domain.MsgEmailInReplyTo} {
			msg, err := findIn(ctx, w.Store(), repository.MessageLookup{Key: key, Values: []string{id}})
			if err != nil {
				return "", err
			}
			if msg != nil {
				return msg.TicketID, nil
			}
		}
	}
	return "", nil
}

// sendAutoResponse acknowledges a new ticket when the channel has a template.
func (a *EmailAdapter) sendAutoResponse(ctx context.Context, to, subject, inReplyTo, ticketID string) {
	body := strings.TrimSpace(a.config.AutoResponseTemplate)
	if body == "" || a.mailer == nil {
		return
	}
	out := OutboundEmail{
		To:        to,
		Subject:   "Re: " + subject,
		Body:      body,
		InReplyTo: inReplyTo,
	}
	a.enqueue(ctx, worker.Task{
		Name:     "email.auto_response",
		TicketID: ticketID,
		Run: func(ctx context.Context) error {
			return a.mailer.Send(ctx, out)
		},
	})
}
