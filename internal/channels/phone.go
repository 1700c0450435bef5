package channels

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/repository"
	"github.com/deskline/support-desk/internal/service"
	"github.com/deskline/support-desk/internal/worker"
	apperrors "github.com/deskline/support-desk/pkg/util/errorutil"
)

// smsThreadStatuses are the statuses an inbound SMS may attach to.
var smsThreadStatuses = []domain.TicketStatus{
	domain.TicketStatusNew,
	domain.TicketStatusOpen,
	domain.TicketStatusPending,
}

// IncomingCall is the telephony provider's call-start callback.
type IncomingCall struct {
	CallSID   string
	From      string
	To        string
	StartedAt time.Time
}

// Voicemail is a recording left after an unanswered call.
type Voicemail struct {
	CallSID       string
	From          string
	RecordingURL  string
	Transcription string
}

// InboundSMS is a text message received on the channel number.
type InboundSMS struct {
	MessageSID string
	From       string
	To         string
	Body       string
}

// PhoneAdapter records calls, voicemails and SMS conversations.
type PhoneAdapter struct {
	base
	config domain.PhoneConfig
	sms    SMSSender
}

func (a *PhoneAdapter) Type() domain.ChannelType {
	return domain.ChannelTypePhone
}

// Config returns the channel settings.
func (a *PhoneAdapter) Config() domain.PhoneConfig {
	return a.config
}

// ValidateSignature checks a provider webhook signature.
func (a *PhoneAdapter) ValidateSignature(url string, params map[string]string, signature string) bool {
	return ValidateTwilioSignature(a.config, url, params, signature)
}

func (a *PhoneAdapter) Ingest(ctx context.Context, event InboundEvent) (IngestResult, error) {
	switch {
	case event.Kind == KindCall && event.Call != nil:
		return a.HandleIncomingCall(ctx, *event.Call)
	case event.Kind == KindVoicemail && event.Voicemail != nil:
		return a.HandleVoicemail(ctx, *event.Voicemail)
	case event.Kind == KindSMS && event.SMS != nil:
		return a.HandleSMS(ctx, *event.SMS)
	}
	return IngestResult{}, unsupported(event.Kind, domain.ChannelTypePhone)
}

func (a *PhoneAdapter) AppendMessage(ctx context.Context, ticketID, content string, sender domain.SenderType) (*domain.TicketMessage, error) {
	var msg *domain.TicketMessage
	err := a.tickets.Ingest(ctx, func(w *service.TicketWriter) error {
		var err error
		msg, err = w.Append(ticketID, service.MessageInput{
			SenderType: sender,
			Kind:       domain.MessageKindSMS,
			Content:    content,
			ChannelID:  a.channelRef(),
		}, domain.SystemActor)
		return err
	})
	return msg, err
}

// HandleIncomingCall opens a high priority ticket for the call. A repeated
// callback for the same call returns the existing ticket.
func (a *PhoneAdapter) HandleIncomingCall(ctx context.Context, call IncomingCall) (IngestResult, error) {
	sid := strings.TrimSpace(call.CallSID)
	if sid == "" {
		return IngestResult{}, apperrors.NewValidationError("call sid is required", map[string]any{"call_sid": "required"})
	}
	dedup := repository.MessageLookup{Key: domain.MsgCallSID, Values: []string{sid}, MessageType: domain.MessageKindCall}
	if result, found, err := a.findExisting(ctx, dedup); err != nil || found {
		return result, err
	}

	caller := strings.TrimSpace(call.From)
	startedAt := call.StartedAt
	if startedAt.IsZero() {
		startedAt = a.clock()
	}
	var result IngestResult
	err := a.tickets.Ingest(ctx, func(w *service.TicketWriter) error {
		ticket, msg, err := w.Create(domain.SystemActor, service.TicketCreateInput{
			Title:       "Phone call from " + orUnknown(caller),
			Description: "Incoming call to " + call.To,
			Priority:    domain.TicketPriorityHigh,
			Metadata:    a.ticketMetadata(caller),
		}, &service.MessageInput{
			SenderType: domain.SenderSystem,
			Kind:       domain.MessageKindCall,
			Content:    "Incoming call received from " + orUnknown(caller),
			ChannelID:  a.channelRef(),
			Metadata: domain.Metadata{
				domain.MsgCallSID:       sid,
				domain.MsgCallerNumber:  caller,
				domain.MsgCalledNumber:  call.To,
				domain.MsgCallStartedAt: startedAt.UTC().Format(time.RFC3339),
			},
		})
		if err != nil {
			return err
		}
		result = IngestResult{TicketID: ticket.ID, MessageID: msg.ID, Created: true}
		return nil
	})
	if err != nil {
		return a.recoverDuplicate(ctx, err, dedup)
	}
	a.logger.Info("incoming call recorded", zap.String("ticket_id", result.TicketID), zap.String("call_sid", sid))
	return result, nil
}

// HandleVoicemail attaches a voicemail to the ticket of its call, creating a
// ticket when the call was never recorded.
func (a *PhoneAdapter) HandleVoicemail(ctx context.Context, vm Voicemail) (IngestResult, error) {
	sid := strings.TrimSpace(vm.CallSID)
	if sid == "" {
		return IngestResult{}, apperrors.NewValidationError("call sid is required", map[string]any{"call_sid": "required"})
	}
	dedup := repository.MessageLookup{Key: domain.MsgCallSID, Values: []string{sid}, MessageType: domain.MessageKindVoicemail}
	if result, found, err := a.findExisting(ctx, dedup); err != nil || found {
		return result, err
	}

	content := strings.TrimSpace(vm.Transcription)
	if content == "" {
		content = "Voicemail received (no transcription available)"
	}
	message := service.MessageInput{
		SenderType: domain.SenderCustomer,
		Kind:       domain.MessageKindVoicemail,
		Content:    content,
		ChannelID:  a.channelRef(),
		Metadata: domain.Metadata{
			domain.MsgCallSID:       sid,
			domain.MsgRecordingURL:  vm.RecordingURL,
			domain.MsgTranscription: vm.Transcription,
		},
	}

	var result IngestResult
	err := a.tickets.Ingest(ctx, func(w *service.TicketWriter) error {
		call, err := findIn(ctx, w.Store(), repository.MessageLookup{Key: domain.MsgCallSID, Values: []string{sid}})
		if err != nil {
			return err
		}
		if call != nil {
			msg, err := w.Append(call.TicketID, message, domain.SystemActor)
			if err != nil {
				return err
			}
			result = IngestResult{TicketID: msg.TicketID, MessageID: msg.ID}
			return nil
		}
		caller := strings.TrimSpace(vm.From)
		ticket, msg, err := w.Create(domain.SystemActor, service.TicketCreateInput{
			Title:       "Voicemail from " + orUnknown(caller),
			Description: content,
			Priority:    domain.TicketPriorityHigh,
			Metadata:    a.ticketMetadata(caller),
		}, &message)
		if err != nil {
			return err
		}
		result = IngestResult{TicketID: ticket.ID, MessageID: msg.ID, Created: true}
		return nil
	})
	if err != nil {
		return a.recoverDuplicate(ctx, err, dedup)
	}
	return result, nil
}

// HandleSMS appends to the caller's most recent unresolved ticket or opens a new one.
func (a *PhoneAdapter) HandleSMS(ctx context.Context, sms InboundSMS) (IngestResult, error) {
	from := strings.TrimSpace(sms.From)
	if from == "" {
		return IngestResult{}, apperrors.NewValidationError("sender number is required", map[string]any{"from": "required"})
	}
	sid := strings.TrimSpace(sms.MessageSID)
	dedup := repository.MessageLookup{Key: domain.MsgMessageSID, Values: []string{sid}}
	if sid != "" {
		if result, found, err := a.findExisting(ctx, dedup); err != nil || found {
			return result, err
		}
	}

	metadata := domain.Metadata{
		domain.MsgFromNumber: from,
		domain.MsgToNumber:   sms.To,
	}
	if sid != "" {
		metadata[domain.MsgMessageSID] = sid
	}
	message := service.MessageInput{
		SenderType: domain.SenderCustomer,
		Kind:       domain.MessageKindSMS,
		Content:    sms.Body,
		ChannelID:  a.channelRef(),
		Metadata:   metadata,
	}

	var result IngestResult
	err := a.tickets.Ingest(ctx, func(w *service.TicketWriter) error {
		existing, err := w.Store().Tickets().FindLatestByPhone(ctx, from, smsThreadStatuses)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return err
		}
		if existing != nil {
			msg, err := w.Append(existing.ID, message, domain.SystemActor)
			if err != nil {
				return err
			}
			result = IngestResult{TicketID: msg.TicketID, MessageID: msg.ID}
			return nil
		}
		ticket, msg, err := w.Create(domain.SystemActor, service.TicketCreateInput{
			Title:       "SMS from " + from,
			Description: sms.Body,
			Priority:    domain.TicketPriorityMedium,
			Metadata:    a.ticketMetadata(from),
		}, &message)
		if err != nil {
			return err
		}
		result = IngestResult{TicketID: ticket.ID, MessageID: msg.ID, Created: true}
		return nil
	})
	if err != nil {
		if sid == "" {
			return IngestResult{}, err
		}
		return a.recoverDuplicate(ctx, err, dedup)
	}
	return result, nil
}

// SendSMS records an agent reply on the ticket and hands delivery to the
// outbound worker after the message is stored.
func (a *PhoneAdapter) SendSMS(ctx context.Context, ticketID, to, body string, actor domain.Actor) (*domain.TicketMessage, error) {
	if !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("only staff can send sms")
	}
	if !a.config.SMSEnabled {
		return nil, apperrors.NewChannelUnavailable(a.channelID, "sms is disabled")
	}
	to = strings.TrimSpace(to)
	if to == "" {
		return nil, apperrors.NewValidationError("recipient number is required", map[string]any{"to": "required"})
	}

	var msg *domain.TicketMessage
	err := a.tickets.Ingest(ctx, func(w *service.TicketWriter) error {
		var err error
		msg, err = w.Append(ticketID, service.MessageInput{
			SenderID:   actor.IDPtr(),
			SenderType: domain.SenderAgent,
			Kind:       domain.MessageKindSMS,
			Content:    body,
			ChannelID:  a.channelRef(),
			Metadata: domain.Metadata{
				domain.MsgFromNumber: a.config.PhoneNumber,
				domain.MsgToNumber:   to,
			},
		}, actor)
		return err
	})
	if err != nil {
		return nil, err
	}

	from := a.config.PhoneNumber
	content := msg.Content
	a.enqueue(ctx, worker.Task{
		Name:     "sms.send",
		TicketID: ticketID,
		Run: func(ctx context.Context) error {
			return a.sms.SendSMS(ctx, to, from, content)
		},
	})
	return msg, nil
}

func (a *PhoneAdapter) ticketMetadata(phone string) domain.Metadata {
	md := domain.Metadata{
		domain.MetaChannelType: string(domain.ChannelTypePhone),
		domain.MetaChannelID:   a.channelID,
	}
	if phone != "" {
		md[domain.MetaPhoneNumber] = phone
	}
	return md
}

func orUnknown(number string) string {
	if number == "" {
		return "unknown caller"
	}
	return number
}
