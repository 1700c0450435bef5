package events

import (
	"time"

	"github.com/deskline/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketSLAChanged      EventType = "ticket_sla_changed"
	EventTicketMerged          EventType = "ticket_merged"
	EventTicketMessageAdded    EventType = "ticket_message_added"
	EventRelationshipChanged   EventType = "ticket_relationship_changed"
)

// Op is the row-level operation an event reports.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Table names the row set the event belongs to.
type Table string

const (
	TableTickets       Table = "tickets"
	TableMessages      Table = "ticket_messages"
	TableRelationships Table = "ticket_relationships"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	ID   string      `json:"id,omitempty"`
	Role domain.Role `json:"role,omitempty"`
}

// ActorFrom converts a domain actor.
func ActorFrom(a domain.Actor) Actor {
	return Actor{ID: a.ID, Role: a.Role}
}

// Event is one entry of the change feed, keyed by ticket id.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Op        Op        `json:"op"`
	Table     Table     `json:"table"`
	TicketID  string    `json:"ticket_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title    string                `json:"title"`
	Status   domain.TicketStatus   `json:"status"`
	Priority domain.TicketPriority `json:"priority"`
	Channel  string                `json:"channel,omitempty"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssignedTo *string             `json:"assigned_to,omitempty"`
	Status     domain.TicketStatus `json:"status"`
}

// TicketSLAChangedPayload payload.
type TicketSLAChangedPayload struct {
	SLAPolicyID              *string    `json:"sla_policy_id,omitempty"`
	FirstResponseDeadline    *time.Time `json:"first_response_deadline,omitempty"`
	ResolutionDeadline       *time.Time `json:"resolution_deadline,omitempty"`
	FirstResponseSLABreached bool       `json:"first_response_breach"`
	ResolutionSLABreached    bool       `json:"resolution_breach"`
}

// TicketMergedPayload payload.
type TicketMergedPayload struct {
	PrimaryID     string `json:"primary_id"`
	SecondaryID   string `json:"secondary_id"`
	MovedMessages int64  `json:"moved_messages"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID   string            `json:"message_id"`
	SenderType  domain.SenderType `json:"sender_type"`
	SenderID    *string           `json:"sender_id,omitempty"`
	IsInternal  bool              `json:"is_internal"`
	BodyPreview string            `json:"body_preview"`
}

// RelationshipChangedPayload payload.
type RelationshipChangedPayload struct {
	ParentTicketID   string                  `json:"parent_ticket_id"`
	ChildTicketID    string                  `json:"child_ticket_id"`
	RelationshipType domain.RelationshipType `json:"relationship_type,omitempty"`
}
