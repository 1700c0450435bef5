package dto

import (
	"time"

	"github.com/deskline/support-desk/internal/domain"
)

// CreateRelationshipRequest adds an edge from the path ticket to ChildTicketID.
type CreateRelationshipRequest struct {
	ChildTicketID    string                  `json:"child_ticket_id" validate:"required"`
	RelationshipType domain.RelationshipType `json:"relationship_type" validate:"required,oneof=link duplicate"`
}

// MergeTicketsRequest folds SecondaryTicketID into the path ticket.
type MergeTicketsRequest struct {
	SecondaryTicketID string `json:"secondary_ticket_id" validate:"required"`
}

// RelationshipResponse represents an edge.
type RelationshipResponse struct {
	ID               string                  `json:"id"`
	ParentTicketID   string                  `json:"parent_ticket_id"`
	ChildTicketID    string                  `json:"child_ticket_id"`
	RelationshipType domain.RelationshipType `json:"relationship_type"`
	CreatedBy        *string                 `json:"created_by"`
	CreatedAt        time.Time               `json:"created_at"`
}

// RelationshipsResponse is the neighborhood of a ticket.
type RelationshipsResponse struct {
	Parents       []RelationshipResponse `json:"parents"`
	Children      []RelationshipResponse `json:"children"`
	MergedInto    *string                `json:"merged_into"`
	MergedTickets []RelationshipResponse `json:"merged_tickets"`
}

// MergeResponse reports a merge.
type MergeResponse struct {
	Primary       TicketResponse       `json:"primary"`
	Secondary     TicketResponse       `json:"secondary"`
	Relationship  RelationshipResponse `json:"relationship"`
	MovedMessages int64                `json:"moved_messages"`
}

// NewRelationshipResponse maps an edge.
func NewRelationshipResponse(r *domain.TicketRelationship) RelationshipResponse {
	return RelationshipResponse{
		ID:               r.ID,
		ParentTicketID:   r.ParentTicketID,
		ChildTicketID:    r.ChildTicketID,
		RelationshipType: r.RelationshipType,
		CreatedBy:        r.CreatedBy,
		CreatedAt:        r.CreatedAt,
	}
}

func relationshipList(rels []domain.TicketRelationship) []RelationshipResponse {
	items := make([]RelationshipResponse, 0, len(rels))
	for i := range rels {
		items = append(items, NewRelationshipResponse(&rels[i]))
	}
	return items
}

// NewRelationshipsResponse maps a neighborhood.
func NewRelationshipsResponse(r *domain.TicketRelationships) RelationshipsResponse {
	return RelationshipsResponse{
		Parents:       relationshipList(r.Parents),
		Children:      relationshipList(r.Children),
		MergedInto:    r.MergedInto,
		MergedTickets: relationshipList(r.MergedTickets),
	}
}
