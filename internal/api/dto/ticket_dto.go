package dto

import (
	"time"

	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/lifecycle"
	"github.com/deskline/support-desk/internal/sla"
)

// CreateTicketRequest payload. Message, when set, becomes the first thread entry.
type CreateTicketRequest struct {
	Title       string                `json:"title" validate:"required,max=255"`
	Description string                `json:"description" validate:"required"`
	Priority    domain.TicketPriority `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	SLAPolicyID *string               `json:"sla_policy_id" validate:"omitempty,uuid"`
	Metadata    domain.Metadata       `json:"metadata"`
	Message     string                `json:"message"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status  domain.TicketStatus `json:"status" validate:"required,oneof=new open pending resolved closed"`
	Comment string              `json:"comment"`
}

// UpdatePriorityRequest payload.
type UpdatePriorityRequest struct {
	Priority domain.TicketPriority `json:"priority" validate:"required,oneof=low medium high urgent"`
}

// AssignTicketRequest payload. A null assignee_id unassigns.
type AssignTicketRequest struct {
	AssigneeID *string `json:"assignee_id"`
}

// CreateMessageRequest payload.
type CreateMessageRequest struct {
	Content    string `json:"content" validate:"required"`
	IsInternal bool   `json:"is_internal"`
}

// AssignSLAPolicyRequest payload. A null policy_id restores the default for the ticket priority.
type AssignSLAPolicyRequest struct {
	PolicyID *string `json:"policy_id" validate:"omitempty,uuid"`
}

// TicketResponse represents a ticket.
type TicketResponse struct {
	ID                       string                `json:"id"`
	Title                    string                `json:"title"`
	Description              string                `json:"description"`
	Status                   domain.TicketStatus   `json:"status"`
	Priority                 domain.TicketPriority `json:"priority"`
	CreatedBy                *string               `json:"created_by"`
	AssignedTo               *string               `json:"assigned_to"`
	SLAPolicyID              *string               `json:"sla_policy_id"`
	FirstResponseDeadline    *time.Time            `json:"first_response_deadline"`
	ResolutionDeadline       *time.Time            `json:"resolution_deadline"`
	FirstResponseSLABreached bool                  `json:"first_response_sla_breached"`
	ResolutionSLABreached    bool                  `json:"resolution_sla_breached"`
	FirstRespondedAt         *time.Time            `json:"first_responded_at"`
	Metadata                 domain.Metadata       `json:"metadata"`
	CreatedAt                time.Time             `json:"created_at"`
	UpdatedAt                time.Time             `json:"updated_at"`
}

// TicketMessageResponse represents a thread message.
type TicketMessageResponse struct {
	ID         string            `json:"id"`
	TicketID   string            `json:"ticket_id"`
	SenderID   *string           `json:"sender_id"`
	SenderType domain.SenderType `json:"sender_type"`
	Content    string            `json:"content"`
	IsInternal bool              `json:"is_internal"`
	ChannelID  *string           `json:"channel_id"`
	Metadata   domain.Metadata   `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

// TicketHistoryResponse represents an audit entry.
type TicketHistoryResponse struct {
	ID            string                  `json:"id"`
	TicketID      string                  `json:"ticket_id"`
	ChangedByID   *string                 `json:"changed_by_id"`
	ChangedByRole domain.Role             `json:"changed_by_role"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	OldValue      map[string]any          `json:"old_value"`
	NewValue      map[string]any          `json:"new_value"`
	CreatedAt     time.Time               `json:"created_at"`
}

// SLATargetResponse is one SLA target. RemainingSeconds is negative once the deadline has passed.
type SLATargetResponse struct {
	Breached         bool       `json:"breached"`
	Deadline         *time.Time `json:"deadline"`
	RemainingSeconds *int64     `json:"remaining_seconds"`
}

// SLAStatusResponse is the SLA read model of a ticket.
type SLAStatusResponse struct {
	FirstResponse SLATargetResponse `json:"first_response"`
	Resolution    SLATargetResponse `json:"resolution"`
}

// TransitionResponse describes a transition the caller may take.
type TransitionResponse struct {
	To              domain.TicketStatus `json:"to"`
	RequiresComment bool                `json:"requires_comment"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:                       t.ID,
		Title:                    t.Title,
		Description:              t.Description,
		Status:                   t.Status,
		Priority:                 t.Priority,
		CreatedBy:                t.CreatedBy,
		AssignedTo:               t.AssignedTo,
		SLAPolicyID:              t.SLAPolicyID,
		FirstResponseDeadline:    t.FirstResponseDeadline,
		ResolutionDeadline:       t.ResolutionDeadline,
		FirstResponseSLABreached: t.FirstResponseSLABreached,
		ResolutionSLABreached:    t.ResolutionSLABreached,
		FirstRespondedAt:         t.FirstRespondedAt,
		Metadata:                 t.Metadata,
		CreatedAt:                t.CreatedAt,
		UpdatedAt:                t.UpdatedAt,
	}
}

// NewTicketList maps a ticket page.
func NewTicketList(tickets []domain.Ticket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, NewTicketResponse(&tickets[i]))
	}
	return items
}

// NewTicketMessageResponse maps a message.
func NewTicketMessageResponse(m *domain.TicketMessage) TicketMessageResponse {
	return TicketMessageResponse{
		ID:         m.ID,
		TicketID:   m.TicketID,
		SenderID:   m.SenderID,
		SenderType: m.SenderType(),
		Content:    m.Content,
		IsInternal: m.IsInternal,
		ChannelID:  m.ChannelID,
		Metadata:   m.Metadata,
		CreatedAt:  m.CreatedAt,
	}
}

// NewTicketMessageList maps a thread.
func NewTicketMessageList(msgs []domain.TicketMessage) []TicketMessageResponse {
	items := make([]TicketMessageResponse, 0, len(msgs))
	for i := range msgs {
		items = append(items, NewTicketMessageResponse(&msgs[i]))
	}
	return items
}

// NewTicketHistoryList maps audit entries.
func NewTicketHistoryList(entries []domain.TicketHistory) []TicketHistoryResponse {
	items := make([]TicketHistoryResponse, 0, len(entries))
	for _, h := range entries {
		items = append(items, TicketHistoryResponse{
			ID:            h.ID,
			TicketID:      h.TicketID,
			ChangedByID:   h.ChangedByID,
			ChangedByRole: h.ChangedByRole,
			ChangeType:    h.ChangeType,
			OldValue:      h.OldValue,
			NewValue:      h.NewValue,
			CreatedAt:     h.CreatedAt,
		})
	}
	return items
}

// NewSLAStatusResponse maps the SLA read model.
func NewSLAStatusResponse(s sla.Status) SLAStatusResponse {
	return SLAStatusResponse{
		FirstResponse: newSLATarget(s.FirstResponse),
		Resolution:    newSLATarget(s.Resolution),
	}
}

func newSLATarget(t sla.Target) SLATargetResponse {
	out := SLATargetResponse{Breached: t.Breached, Deadline: t.Deadline}
	if t.Remaining != nil {
		secs := int64(t.Remaining.Seconds())
		out.RemainingSeconds = &secs
	}
	return out
}

// NewTransitionList maps available transitions.
func NewTransitionList(ts []lifecycle.StatusTransition) []TransitionResponse {
	items := make([]TransitionResponse, 0, len(ts))
	for _, t := range ts {
		items = append(items, TransitionResponse{To: t.To, RequiresComment: t.RequiresComment})
	}
	return items
}
