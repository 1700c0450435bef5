package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/events"
	"github.com/deskline/support-desk/internal/repository"
	apperrors "github.com/deskline/support-desk/pkg/util/errorutil"
)

// peerTypes are the edge types callers may create and delete directly.
// Merge edges are written only by MergeTickets.
var peerTypes = []domain.RelationshipType{domain.RelationshipLink, domain.RelationshipDuplicate}

// RelationshipService maintains the ticket graph.
type RelationshipService struct {
	core
}

// MergeResult reports the outcome of a merge.
type MergeResult struct {
	Primary       *domain.Ticket
	Secondary     *domain.Ticket
	Relationship  *domain.TicketRelationship
	MovedMessages int64
}

// NewRelationshipService constructs the service.
func NewRelationshipService(deps Dependencies) *RelationshipService {
	return &RelationshipService{core: newCore(deps)}
}

// CreateRelationship adds a link or duplicate edge parent -> child.
func (s *RelationshipService) CreateRelationship(ctx context.Context, parentID, childID string, relType domain.RelationshipType, actor domain.Actor) (*domain.TicketRelationship, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if relType != domain.RelationshipLink && relType != domain.RelationshipDuplicate {
		return nil, apperrors.NewValidationError("relationship type must be link or duplicate",
			map[string]any{"relationship_type": relType})
	}
	if parentID == childID {
		return nil, apperrors.NewValidationError("a ticket cannot be related to itself", map[string]any{"ticket_id": parentID})
	}

	rel := &domain.TicketRelationship{
		ID:               uuid.NewString(),
		ParentTicketID:   parentID,
		ChildTicketID:    childID,
		RelationshipType: relType,
		CreatedBy:        actor.IDPtr(),
		CreatedAt:        s.now(),
	}
	err := s.store.WithinTx(ctx, func(tx repository.Store) error {
		if _, err := getTicket(ctx, tx, parentID); err != nil {
			return err
		}
		if _, err := getTicket(ctx, tx, childID); err != nil {
			return err
		}
		exists, err := tx.Relationships().Exists(ctx, parentID, childID, relType)
		if err != nil {
			return err
		}
		if exists {
			return apperrors.NewDuplicateEdge(parentID, childID, string(relType))
		}
		if err := tx.Relationships().Create(ctx, rel); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.NewDuplicateEdge(parentID, childID, string(relType))
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, relationshipEvents(rel, events.OpInsert, actor))
	return rel, nil
}

// DeleteRelationship removes the link and duplicate edges between the pair.
func (s *RelationshipService) DeleteRelationship(ctx context.Context, parentID, childID string, actor domain.Actor) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	removed, err := s.store.Relationships().DeleteBetween(ctx, parentID, childID, peerTypes)
	if err != nil {
		return err
	}
	if removed == 0 {
		return apperrors.NewRelationshipNotFound(parentID, childID)
	}
	s.publish(ctx, relationshipEvents(&domain.TicketRelationship{ParentTicketID: parentID, ChildTicketID: childID}, events.OpDelete, actor))
	return nil
}

// MergeTickets absorbs secondary into primary. The merge edge, the closing of
// secondary and the message move commit together or not at all.
func (s *RelationshipService) MergeTickets(ctx context.Context, primaryID, secondaryID string, actor domain.Actor) (result *MergeResult, err error) {
	ctx, span := s.startSpan(ctx, "RelationshipService.MergeTickets", ticketIDAttr(primaryID))
	defer func() { endSpan(span, err) }()

	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if primaryID == secondaryID {
		return nil, apperrors.NewSelfMerge(primaryID)
	}

	var evts []events.Event
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		evts = nil
		primary, err := lockTicket(ctx, tx, primaryID)
		if err != nil {
			return err
		}
		secondary, err := lockTicket(ctx, tx, secondaryID)
		if err != nil {
			return err
		}
		if into := secondary.MergedInto(); into != "" {
			return apperrors.NewConflict("ticket has already been merged", map[string]any{"ticket_id": secondaryID, "merged_into": into})
		}
		if into := primary.MergedInto(); into != "" {
			return apperrors.NewConflict("primary ticket has been merged into another ticket", map[string]any{"ticket_id": primaryID, "merged_into": into})
		}
		exists, err := tx.Relationships().Exists(ctx, primaryID, secondaryID, domain.RelationshipMerge)
		if err != nil {
			return err
		}
		if exists {
			return apperrors.NewDuplicateEdge(primaryID, secondaryID, string(domain.RelationshipMerge))
		}

		now := s.now()
		rel := &domain.TicketRelationship{
			ID:               uuid.NewString(),
			ParentTicketID:   primaryID,
			ChildTicketID:    secondaryID,
			RelationshipType: domain.RelationshipMerge,
			CreatedBy:        actor.IDPtr(),
			CreatedAt:        now,
		}
		if err := tx.Relationships().Create(ctx, rel); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return apperrors.NewDuplicateEdge(primaryID, secondaryID, string(domain.RelationshipMerge))
			}
			return err
		}

		oldStatus := secondary.Status
		secondary.Status = domain.TicketStatusClosed
		secondary.Metadata = secondary.Metadata.Clone()
		secondary.Metadata[domain.MetaMergedInto] = primaryID
		secondary.UpdatedAt = now
		if err := tx.Tickets().Update(ctx, secondary); err != nil {
			return err
		}

		moved, err := tx.Messages().ReassignTicket(ctx, secondaryID, primaryID)
		if err != nil {
			return err
		}

		primary.UpdatedAt = now
		if err := tx.Tickets().Update(ctx, primary); err != nil {
			return err
		}

		for _, entry := range []*domain.TicketHistory{
			s.historyEntry(secondaryID, actor, domain.ChangeTypeMerge,
				map[string]any{"status": oldStatus},
				map[string]any{"status": domain.TicketStatusClosed, "merged_into": primaryID}),
			s.historyEntry(primaryID, actor, domain.ChangeTypeMerge,
				nil,
				map[string]any{"merged_ticket": secondaryID, "moved_messages": moved}),
		} {
			if err := tx.History().Create(ctx, entry); err != nil {
				return err
			}
		}

		payload := events.TicketMergedPayload{PrimaryID: primaryID, SecondaryID: secondaryID, MovedMessages: moved}
		evts = append(evts,
			ticketEvent(events.EventTicketMerged, events.OpUpdate, primaryID, actor, payload),
			ticketEvent(events.EventTicketMerged, events.OpUpdate, secondaryID, actor, payload),
			ticketEvent(events.EventTicketStatusChanged, events.OpUpdate, secondaryID, actor,
				events.TicketStatusChangedPayload{OldStatus: oldStatus, NewStatus: domain.TicketStatusClosed, Comment: "merged"}),
		)
		result = &MergeResult{Primary: primary, Secondary: secondary, Relationship: rel, MovedMessages: moved}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, evts)
	return result, nil
}

// GetRelationships returns the peer edges of a ticket with merges reported separately.
func (s *RelationshipService) GetRelationships(ctx context.Context, ticketID string, actor domain.Actor) (*domain.TicketRelationships, error) {
	ticket, err := getTicket(ctx, s.store, ticketID)
	if err != nil {
		return nil, err
	}
	if !canView(actor, ticket) {
		return nil, apperrors.NewForbidden("access denied")
	}
	edges, err := s.store.Relationships().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}

	out := &domain.TicketRelationships{
		Parents:       []domain.TicketRelationship{},
		Children:      []domain.TicketRelationship{},
		MergedTickets: []domain.TicketRelationship{},
	}
	if into := ticket.MergedInto(); into != "" {
		out.MergedInto = &into
	}
	for _, edge := range edges {
		switch {
		case edge.RelationshipType == domain.RelationshipMerge:
			if edge.ParentTicketID == ticketID {
				out.MergedTickets = append(out.MergedTickets, edge)
			}
		case edge.ChildTicketID == ticketID:
			out.Parents = append(out.Parents, edge)
		case edge.ParentTicketID == ticketID:
			out.Children = append(out.Children, edge)
		}
	}
	return out, nil
}

func relationshipEvents(rel *domain.TicketRelationship, op events.Op, actor domain.Actor) []events.Event {
	payload := events.RelationshipChangedPayload{
		ParentTicketID:   rel.ParentTicketID,
		ChildTicketID:    rel.ChildTicketID,
		RelationshipType: rel.RelationshipType,
	}
	out := make([]events.Event, 0, 2)
	for _, id := range []string{rel.ParentTicketID, rel.ChildTicketID} {
		out = append(out, events.Event{
			Type:     events.EventRelationshipChanged,
			Op:       op,
			Table:    events.TableRelationships,
			TicketID: id,
			Actor:    events.ActorFrom(actor),
			Payload:  payload,
		})
	}
	return out
}
