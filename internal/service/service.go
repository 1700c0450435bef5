package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/events"
	"github.com/deskline/support-desk/internal/repository"
	"github.com/deskline/support-desk/internal/sla"
	apperrors "github.com/deskline/support-desk/pkg/util/errorutil"
)

const tracerName = "github.com/deskline/support-desk/internal/service"

// Dependencies bundles collaborators shared by the services.
type Dependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Calculator *sla.Calculator
	Clock      func() time.Time
	Logger     *zap.Logger
}

// core carries the plumbing every service needs.
type core struct {
	store      repository.Store
	dispatcher events.Dispatcher
	calculator *sla.Calculator
	clock      func() time.Time
	logger     *zap.Logger
	tracer     trace.Tracer
}

func newCore(deps Dependencies) core {
	c := core{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		calculator: deps.Calculator,
		clock:      deps.Clock,
		logger:     deps.Logger,
		tracer:     otel.Tracer(tracerName),
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.calculator == nil {
		c.calculator = sla.NewCalculator(nil)
	}
	return c
}

func (c core) now() time.Time {
	return c.clock().UTC()
}

func (c core) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span before ending it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// publish sends events after a successful commit.
func (c core) publish(ctx context.Context, evts []events.Event) {
	if c.dispatcher == nil {
		return
	}
	for _, event := range evts {
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.Timestamp.IsZero() {
			event.Timestamp = c.now()
		}
		if err := c.dispatcher.Publish(ctx, event); err != nil {
			c.logger.Warn("publish event failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		}
	}
}

// lockTicket loads a ticket for update, translating a miss into TicketNotFound.
func lockTicket(ctx context.Context, tx repository.Store, id string) (*domain.Ticket, error) {
	ticket, err := tx.Tickets().LockByID(ctx, id)
	if err != nil {
		return nil, ticketErr(id, err)
	}
	return ticket, nil
}

func getTicket(ctx context.Context, store repository.Store, id string) (*domain.Ticket, error) {
	ticket, err := store.Tickets().GetByID(ctx, id)
	if err != nil {
		return nil, ticketErr(id, err)
	}
	return ticket, nil
}

// ensureNotMerged rejects writes to a ticket absorbed by a merge.
func ensureNotMerged(ticket *domain.Ticket) error {
	if into := ticket.MergedInto(); into != "" {
		return apperrors.NewConflict("ticket has been merged", map[string]any{"ticket_id": ticket.ID, "merged_into": into})
	}
	return nil
}

func ticketErr(id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewTicketNotFound(id)
	}
	return err
}

// canView reports whether actor may read ticket. Staff see everything; customers see their own tickets.
func canView(actor domain.Actor, ticket *domain.Ticket) bool {
	if actor.Role.IsStaff() {
		return true
	}
	return actor.ID != "" && ticket.CreatedBy != nil && *ticket.CreatedBy == actor.ID
}

func requireStaff(actor domain.Actor) error {
	if !actor.Role.IsStaff() {
		return apperrors.NewForbidden("staff role required")
	}
	return nil
}

func requireAdmin(actor domain.Actor) error {
	if actor.Role != domain.RoleAdmin {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

func (c core) historyEntry(ticketID string, actor domain.Actor, change domain.TicketChangeType, oldValue, newValue map[string]any) *domain.TicketHistory {
	return &domain.TicketHistory{
		ID:            uuid.NewString(),
		TicketID:      ticketID,
		ChangedByID:   actor.IDPtr(),
		ChangedByRole: actor.Role,
		ChangeType:    change,
		OldValue:      oldValue,
		NewValue:      newValue,
		CreatedAt:     c.now(),
	}
}

func ticketEvent(t events.EventType, op events.Op, ticketID string, actor domain.Actor, payload any) events.Event {
	return events.Event{
		Type:     t,
		Op:       op,
		Table:    events.TableTickets,
		TicketID: ticketID,
		Actor:    events.ActorFrom(actor),
		Payload:  payload,
	}
}

// stringPreview shortens body to at most max runes, never splitting a rune.
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

func strPtr(s string) *string {
	return &s
}

func derefString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
