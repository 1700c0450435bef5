package domain

import "time"

// RelationshipType classifies a directed edge between tickets.
type RelationshipType string

const (
	RelationshipLink      RelationshipType = "link"
	RelationshipDuplicate RelationshipType = "duplicate"
	RelationshipMerge     RelationshipType = "merge"
)

func (t RelationshipType) Valid() bool {
	return t == RelationshipLink || t == RelationshipDuplicate || t == RelationshipMerge
}

// TicketRelationship is a directed edge parent -> child.
type TicketRelationship struct {
	ID               string
	ParentTicketID   string
	ChildTicketID    string
	RelationshipType RelationshipType
	CreatedBy        *string
	CreatedAt        time.Time
}

// TicketRelationships is the graph neighborhood of one ticket.
type TicketRelationships struct {
	Parents       []TicketRelationship
	Children      []TicketRelationship
	MergedInto    *string
	MergedTickets []TicketRelationship
}
