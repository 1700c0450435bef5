package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/deskline/support-desk/internal/events"
)

// NotificationService writes an audit log line for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketMerged, n.handleTicketMerged)
	n.dispatcher.Subscribe(events.EventTicketSLAChanged, n.handleTicketSLAChanged)
}

func (n *NotificationService) handleTicketCreated(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketStatusChanged(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketStatusChanged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketAssigned", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketMerged(ctx context.Context, event events.Event) error {
	n.logger.Info("TicketMerged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleTicketSLAChanged(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketSLAChangedPayload)
	if ok && (payload.FirstResponseSLABreached || payload.ResolutionSLABreached) {
		n.logger.Warn("TicketSLABreached",
			zap.String("ticket_id", event.TicketID),
			zap.Bool("first_response_breach", payload.FirstResponseSLABreached),
			zap.Bool("resolution_breach", payload.ResolutionSLABreached))
		return nil
	}
	n.logger.Info("TicketSLAChanged", zap.String("ticket_id", event.TicketID))
	return nil
}
