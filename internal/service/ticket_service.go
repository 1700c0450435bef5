package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/events"
	"github.com/deskline/support-desk/internal/lifecycle"
	"github.com/deskline/support-desk/internal/repository"
	"github.com/deskline/support-desk/internal/sla"
	apperrors "github.com/deskline/support-desk/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	core
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	SLAPolicyID *string
	Metadata    domain.Metadata
}

// MessageInput describes a message appended to a thread.
type MessageInput struct {
	SenderID   *string
	SenderType domain.SenderType
	Kind       domain.MessageKind
	Content    string
	IsInternal bool
	ChannelID  *string
	Metadata   domain.Metadata
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	AssigneeID *string
	Unassigned bool
	CreatedBy  *string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	SearchTerm *string
	Limit      int
	Offset     int
}

// NewTicketService constructs the service.
func NewTicketService(deps Dependencies) *TicketService {
	return &TicketService{core: newCore(deps)}
}

// CreateTicket creates a ticket in status new with default or explicit SLA deadlines.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	ticket, _, err := s.CreateTicketWithMessage(ctx, actor, input, nil)
	return ticket, err
}

// CreateTicketWithMessage creates a ticket and, when first is set, its opening message in one transaction.
func (s *TicketService) CreateTicketWithMessage(ctx context.Context, actor domain.Actor, input TicketCreateInput, first *MessageInput) (ticket *domain.Ticket, msg *domain.TicketMessage, err error) {
	err = s.Ingest(ctx, func(w *TicketWriter) error {
		var err error
		ticket, msg, err = w.Create(actor, input, first)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return ticket, msg, nil
}

// Ingest runs fn in one transaction. Events collected by the writer are published after commit.
func (s *TicketService) Ingest(ctx context.Context, fn func(w *TicketWriter) error) (err error) {
	ctx, span := s.startSpan(ctx, "TicketService.Ingest")
	defer func() { endSpan(span, err) }()

	var w *TicketWriter
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		w = &TicketWriter{ctx: ctx, svc: s, tx: tx}
		return fn(w)
	})
	if err != nil {
		return err
	}
	s.publish(ctx, w.events)
	return nil
}

// UpdateTicketStatus moves a ticket along the transition table.
func (s *TicketService) UpdateTicketStatus(ctx context.Context, ticketID string, newStatus domain.TicketStatus, actor domain.Actor, comment string) (ticket *domain.Ticket, err error) {
	if !newStatus.Valid() {
		return nil, apperrors.NewValidationError("invalid status", map[string]any{"status": newStatus})
	}
	err = s.Ingest(ctx, func(w *TicketWriter) error {
		current, err := lockTicket(ctx, w.tx, ticketID)
		if err != nil {
			return err
		}
		if !canView(actor, current) {
			return apperrors.NewForbidden("access denied")
		}
		ticket, err = w.changeStatus(current, newStatus, actor, comment)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// UpdateTicketPriority changes priority and recomputes default SLA deadlines.
func (s *TicketService) UpdateTicketPriority(ctx context.Context, ticketID string, priority domain.TicketPriority, actor domain.Actor) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}
	var ticket *domain.Ticket
	err := s.Ingest(ctx, func(w *TicketWriter) error {
		var err error
		ticket, err = lockTicket(ctx, w.tx, ticketID)
		if err != nil {
			return err
		}
		if ticket.Priority == priority {
			return nil
		}
		oldPriority := ticket.Priority
		ticket.Priority = priority
		if ticket.SLAPolicyID == nil {
			s.calculator.Apply(ticket, sla.DefaultPolicy(priority))
		}
		ticket.UpdatedAt = s.now()
		if err := w.tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		entry := s.historyEntry(ticket.ID, actor, domain.ChangeTypePriority,
			map[string]any{"priority": oldPriority}, map[string]any{"priority": priority})
		if err := w.tx.History().Create(ctx, entry); err != nil {
			return err
		}
		w.emit(ticketEvent(events.EventTicketPriorityChanged, events.OpUpdate, ticket.ID, actor,
			events.TicketPriorityChangedPayload{OldPriority: oldPriority, NewPriority: priority}))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// AssignTicket sets or clears the assignee. Assigning opens the ticket and
// unassigning returns it to new; this does not go through the transition table.
func (s *TicketService) AssignTicket(ctx context.Context, ticketID string, agentID *string, actor domain.Actor) (*domain.Ticket, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if agentID != nil && strings.TrimSpace(*agentID) == "" {
		return nil, apperrors.NewValidationError("agent id must not be blank", nil)
	}
	var ticket *domain.Ticket
	err := s.Ingest(ctx, func(w *TicketWriter) error {
		var err error
		ticket, err = lockTicket(ctx, w.tx, ticketID)
		if err != nil {
			return err
		}
		if err := ensureNotMerged(ticket); err != nil {
			return err
		}
		oldAssignee, oldStatus := ticket.AssignedTo, ticket.Status
		ticket.AssignedTo = agentID
		ticket.Status = domain.TicketStatusNew
		if agentID != nil {
			ticket.Status = domain.TicketStatusOpen
		}
		ticket.UpdatedAt = s.now()
		if err := w.tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}

		entry := s.historyEntry(ticket.ID, actor, domain.ChangeTypeAssignee,
			map[string]any{"assigned_to": derefString(oldAssignee)},
			map[string]any{"assigned_to": derefString(agentID)})
		if err := w.tx.History().Create(ctx, entry); err != nil {
			return err
		}
		w.emit(ticketEvent(events.EventTicketAssigned, events.OpUpdate, ticket.ID, actor,
			events.TicketAssignedPayload{AssignedTo: agentID, Status: ticket.Status}))

		if oldStatus != ticket.Status {
			entry := s.historyEntry(ticket.ID, actor, domain.ChangeTypeStatus,
				map[string]any{"status": oldStatus},
				map[string]any{"status": ticket.Status, "comment": "assignment"})
			if err := w.tx.History().Create(ctx, entry); err != nil {
				return err
			}
			w.emit(ticketEvent(events.EventTicketStatusChanged, events.OpUpdate, ticket.ID, actor,
				events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: ticket.Status}))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// AddMessage appends a message written by an authenticated caller.
func (s *TicketService) AddMessage(ctx context.Context, actor domain.Actor, ticketID, content string, isInternal bool) (*domain.TicketMessage, error) {
	if isInternal && !actor.Role.IsStaff() {
		return nil, apperrors.NewForbidden("customers cannot post internal notes")
	}
	in := MessageInput{
		SenderID:   actor.IDPtr(),
		SenderType: domain.SenderCustomer,
		Content:    content,
		IsInternal: isInternal,
	}
	if actor.Role.IsStaff() {
		in.SenderType = domain.SenderAgent
	}
	if isInternal {
		in.Kind = domain.MessageKindNote
	}

	var msg *domain.TicketMessage
	err := s.Ingest(ctx, func(w *TicketWriter) error {
		ticket, err := lockTicket(ctx, w.tx, ticketID)
		if err != nil {
			return err
		}
		if !canView(actor, ticket) {
			return apperrors.NewForbidden("access denied")
		}
		if err := ensureNotMerged(ticket); err != nil {
			return err
		}
		msg, err = w.appendTo(ticket, in, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// GetTicket fetches a ticket the actor may see.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	ticket, err := getTicket(ctx, s.store, ticketID)
	if err != nil {
		return nil, err
	}
	if !canView(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	return ticket, nil
}

// ListTickets returns tickets matching filter. Customers only see their own.
func (s *TicketService) ListTickets(ctx context.Context, actor domain.Actor, filter TicketListFilter) ([]domain.Ticket, error) {
	repoFilter := repository.TicketFilter{
		CreatedBy:  filter.CreatedBy,
		AssigneeID: filter.AssigneeID,
		Unassigned: filter.Unassigned,
		Statuses:   filter.Statuses,
		Priorities: filter.Priorities,
		SearchTerm: filter.SearchTerm,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}
	if !actor.Role.IsStaff() {
		if actor.ID == "" {
			return nil, apperrors.NewForbidden("access denied")
		}
		repoFilter.CreatedBy = strPtr(actor.ID)
	}
	tickets, err := s.store.Tickets().ListWithFilter(ctx, repoFilter)
	if err != nil {
		return nil, err
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	return tickets, nil
}

// ListMessages returns the thread oldest first. Internal notes are hidden from customers.
func (s *TicketService) ListMessages(ctx context.Context, ticketID string, actor domain.Actor) ([]domain.TicketMessage, error) {
	if _, err := s.GetTicket(ctx, ticketID, actor); err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	filtered := make([]domain.TicketMessage, 0, len(msgs))
	for _, msg := range msgs {
		if msg.IsInternal && !actor.Role.IsStaff() {
			continue
		}
		filtered = append(filtered, msg)
	}
	return filtered, nil
}

// ListHistory returns audit entries. Customers only see status and assignee changes.
func (s *TicketService) ListHistory(ctx context.Context, ticketID string, actor domain.Actor, limit, offset int) ([]domain.TicketHistory, error) {
	if _, err := s.GetTicket(ctx, ticketID, actor); err != nil {
		return nil, err
	}
	history, err := s.store.History().ListByTicket(ctx, ticketID, limit, offset)
	if err != nil {
		return nil, err
	}
	allowed := []domain.TicketHistory{}
	for _, entry := range history {
		if actor.Role.IsStaff() || entry.ChangeType == domain.ChangeTypeStatus || entry.ChangeType == domain.ChangeTypeAssignee {
			allowed = append(allowed, entry)
		}
	}
	return allowed, nil
}

// AvailableTransitions lists the moves actor may make from the ticket's current status.
func (s *TicketService) AvailableTransitions(ctx context.Context, ticketID string, actor domain.Actor) ([]lifecycle.StatusTransition, error) {
	ticket, err := s.GetTicket(ctx, ticketID, actor)
	if err != nil {
		return nil, err
	}
	return lifecycle.AvailableTransitions(ticket.Status, actor.Role), nil
}

// TicketWriter performs ticket writes inside one transaction.
type TicketWriter struct {
	ctx    context.Context
	svc    *TicketService
	tx     repository.Store
	events []events.Event
}

// Store exposes the transactional store for lookups.
func (w *TicketWriter) Store() repository.Store {
	return w.tx
}

// Lock reads a ticket for update.
func (w *TicketWriter) Lock(ticketID string) (*domain.Ticket, error) {
	return lockTicket(w.ctx, w.tx, ticketID)
}

func (w *TicketWriter) emit(evts ...events.Event) {
	w.events = append(w.events, evts...)
}

// Create inserts a ticket in status new and, when first is set, its opening message.
func (w *TicketWriter) Create(actor domain.Actor, input TicketCreateInput, first *MessageInput) (*domain.Ticket, *domain.TicketMessage, error) {
	s := w.svc
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, nil, apperrors.NewValidationError("title is required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, nil, apperrors.NewValidationError("invalid priority", map[string]any{"priority": priority})
	}

	policy := sla.DefaultPolicy(priority)
	if input.SLAPolicyID != nil {
		explicit, err := w.tx.SLAPolicies().GetByID(w.ctx, *input.SLAPolicyID)
		if err != nil {
			return nil, nil, policyErr(*input.SLAPolicyID, err)
		}
		policy = *explicit
	}

	now := s.now()
	ticket := &domain.Ticket{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Status:      domain.TicketStatusNew,
		Priority:    priority,
		CreatedBy:   actor.IDPtr(),
		SLAPolicyID: input.SLAPolicyID,
		Metadata:    input.Metadata.Clone(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// merged_into is only ever set by a merge.
	delete(ticket.Metadata, domain.MetaMergedInto)
	s.calculator.Apply(ticket, policy)

	if err := w.tx.Tickets().Create(w.ctx, ticket); err != nil {
		return nil, nil, err
	}
	w.emit(ticketEvent(events.EventTicketCreated, events.OpInsert, ticket.ID, actor,
		events.TicketCreatedPayload{
			Title:    ticket.Title,
			Status:   ticket.Status,
			Priority: ticket.Priority,
			Channel:  ticket.Metadata.String(domain.MetaChannelType),
		}))

	if first == nil {
		return ticket, nil, nil
	}
	msg, err := w.appendTo(ticket, *first, actor)
	if err != nil {
		return nil, nil, err
	}
	return ticket, msg, nil
}

// maxMergeHops bounds how far Append follows merged_into links.
const maxMergeHops = 8

// Append adds a message to an existing ticket. A ticket absorbed by a merge
// forwards the message to the ticket it was merged into.
func (w *TicketWriter) Append(ticketID string, in MessageInput, actor domain.Actor) (*domain.TicketMessage, error) {
	ticket, err := lockTicket(w.ctx, w.tx, ticketID)
	if err != nil {
		return nil, err
	}
	for hops := 0; ticket.MergedInto() != ""; hops++ {
		if hops == maxMergeHops {
			return nil, ensureNotMerged(ticket)
		}
		if ticket, err = lockTicket(w.ctx, w.tx, ticket.MergedInto()); err != nil {
			return nil, err
		}
	}
	return w.appendTo(ticket, in, actor)
}

// ChangeStatus validates and applies a status change through the transition table.
func (w *TicketWriter) ChangeStatus(ticketID string, newStatus domain.TicketStatus, actor domain.Actor, comment string) (*domain.Ticket, error) {
	ticket, err := lockTicket(w.ctx, w.tx, ticketID)
	if err != nil {
		return nil, err
	}
	return w.changeStatus(ticket, newStatus, actor, comment)
}

func (w *TicketWriter) changeStatus(ticket *domain.Ticket, newStatus domain.TicketStatus, actor domain.Actor, comment string) (*domain.Ticket, error) {
	s := w.svc
	if err := ensureNotMerged(ticket); err != nil {
		return nil, err
	}
	err := lifecycle.ValidateStatusChange(lifecycle.StatusChange{
		Current: ticket.Status,
		New:     newStatus,
		Role:    actor.Role,
		Comment: comment,
	})
	if err != nil {
		return nil, err
	}
	oldStatus := ticket.Status
	ticket.Status = newStatus
	ticket.UpdatedAt = s.now()
	if err := w.tx.Tickets().Update(w.ctx, ticket); err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	newValue := map[string]any{"status": newStatus}
	if comment != "" {
		newValue["comment"] = comment
	}
	entry := s.historyEntry(ticket.ID, actor, domain.ChangeTypeStatus, map[string]any{"status": oldStatus}, newValue)
	if err := w.tx.History().Create(w.ctx, entry); err != nil {
		return nil, err
	}
	w.emit(ticketEvent(events.EventTicketStatusChanged, events.OpUpdate, ticket.ID, actor,
		events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: newStatus, Comment: comment}))
	return ticket, nil
}

func (w *TicketWriter) appendTo(ticket *domain.Ticket, in MessageInput, actor domain.Actor) (*domain.TicketMessage, error) {
	s := w.svc
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, apperrors.NewValidationError("message content is required", nil)
	}
	senderType := in.SenderType
	if senderType == "" {
		senderType = domain.SenderCustomer
	}
	metadata := in.Metadata.Clone()
	metadata[domain.MsgSenderType] = string(senderType)
	if in.Kind != "" {
		metadata[domain.MsgMessageType] = string(in.Kind)
	}

	now := s.now()
	msg := &domain.TicketMessage{
		ID:         uuid.NewString(),
		TicketID:   ticket.ID,
		SenderID:   in.SenderID,
		Content:    content,
		IsInternal: in.IsInternal,
		ChannelID:  in.ChannelID,
		Metadata:   metadata,
		CreatedAt:  now,
	}
	if err := w.tx.Messages().Create(w.ctx, msg); err != nil {
		return nil, err
	}

	if senderType == domain.SenderAgent && !in.IsInternal && ticket.FirstRespondedAt == nil {
		responded := now
		ticket.FirstRespondedAt = &responded
	}
	ticket.UpdatedAt = now
	if err := w.tx.Tickets().Update(w.ctx, ticket); err != nil {
		return nil, err
	}

	w.emit(events.Event{
		Type:     events.EventTicketMessageAdded,
		Op:       events.OpInsert,
		Table:    events.TableMessages,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			SenderType:  senderType,
			SenderID:    msg.SenderID,
			IsInternal:  msg.IsInternal,
			BodyPreview: stringPreview(msg.Content, 120),
		},
	})
	return msg, nil
}

func ticketIDAttr(id string) attribute.KeyValue {
	return attribute.String("ticket.id", id)
}
