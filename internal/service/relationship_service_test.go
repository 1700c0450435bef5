package service

import (
	"context"
	"errors"
	"testing"

	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/events"
	apperrors "github.com/deskline/support-desk/pkg/util/errorutil"
)

func TestMergeTickets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	primary := env.createTicket(t, customer, "primary", "")
	secondary := env.createTicket(t, customer, "secondary", "")
	for _, content := range []string{"one", "two"} {
		if _, err := env.tickets.AddMessage(ctx, customer, secondary.ID, content, false); err != nil {
			t.Fatal(err)
		}
	}

	result, err := env.relationships.MergeTickets(ctx, primary.ID, secondary.ID, agent)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if result.MovedMessages != 2 {
		t.Fatalf("moved %d messages, want 2", result.MovedMessages)
	}
	merged := env.reload(t, secondary.ID)
	if merged.Status != domain.TicketStatusClosed || merged.MergedInto() != primary.ID {
		t.Fatalf("secondary not closed into primary: %s %q", merged.Status, merged.MergedInto())
	}
	msgs, err := env.store.Messages().ListByTicket(ctx, primary.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 {
		t.Fatalf("primary has %d messages, want 2", len(msgs))
	}

	rels, err := env.relationships.GetRelationships(ctx, primary.ID, agent)
	if err != nil {
		t.Fatal(err)
	}
	if len(rels.MergedTickets) != 1 || rels.MergedTickets[0].ChildTicketID != secondary.ID {
		t.Fatalf("unexpected merged tickets %+v", rels.MergedTickets)
	}
	secRels, err := env.relationships.GetRelationships(ctx, secondary.ID, agent)
	if err != nil {
		t.Fatal(err)
	}
	if secRels.MergedInto == nil || *secRels.MergedInto != primary.ID {
		t.Fatal("secondary should report merged_into")
	}
	if env.log.count(events.EventTicketMerged) != 2 {
		t.Fatalf("expected merged events for both tickets, got %v", env.log.types())
	}

	third := env.createTicket(t, customer, "third", "")
	if _, err := env.relationships.MergeTickets(ctx, third.ID, secondary.ID, agent); !errors.Is(err, apperrors.ErrConflict) {
		t.Fatalf("merging an already merged ticket should conflict, got %v", err)
	}
}

func TestMergeTicketsRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	primary := env.createTicket(t, customer, "primary", "")
	secondary := env.createTicket(t, customer, "secondary", "")
	if _, err := env.tickets.AddMessage(ctx, customer, secondary.ID, "keep me", false); err != nil {
		t.Fatal(err)
	}
	before := len(env.log.types())

	boom := errors.New("disk full")
	env.store.FailOn("messages.ReassignTicket", boom)
	if _, err := env.relationships.MergeTickets(ctx, primary.ID, secondary.ID, agent); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	env.store.FailOn("messages.ReassignTicket", nil)

	if got := env.reload(t, secondary.ID); got.Status != domain.TicketStatusNew || got.MergedInto() != "" {
		t.Fatalf("secondary changed despite rollback: %s %q", got.Status, got.MergedInto())
	}
	exists, err := env.store.Relationships().Exists(ctx, primary.ID, secondary.ID, domain.RelationshipMerge)
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("merge edge survived rollback")
	}
	msgs, err := env.store.Messages().ListByTicket(ctx, secondary.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatal("messages moved despite rollback")
	}
	if len(env.log.types()) != before {
		t.Fatal("rolled back merge published events")
	}

	if _, err := env.relationships.MergeTickets(ctx, primary.ID, secondary.ID, agent); err != nil {
		t.Fatalf("merge after clearing failure: %v", err)
	}
}

func TestMergeTicketsRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ticket := env.createTicket(t, customer, "lonely", "")
	if _, err := env.tickets.AddMessage(ctx, customer, ticket.ID, "still here", false); err != nil {
		t.Fatal(err)
	}
	before := len(env.log.types())
	cases := []struct {
		name      string
		primary   string
		secondary string
		actor     domain.Actor
		want      error
	}{
		{"self merge", ticket.ID, ticket.ID, agent, apperrors.ErrSelfMerge},
		{"missing secondary", ticket.ID, "ghost", agent, apperrors.ErrTicketNotFound},
		{"missing primary", "ghost", ticket.ID, agent, apperrors.ErrTicketNotFound},
		{"customer", ticket.ID, "ghost", customer, apperrors.ErrForbidden},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.relationships.MergeTickets(ctx, tt.primary, tt.secondary, tt.actor); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}

			got := env.reload(t, ticket.ID)
			if got.Status != domain.TicketStatusNew || got.MergedInto() != "" {
				t.Fatalf("ticket changed: status=%s merged_into=%q", got.Status, got.MergedInto())
			}
			msgs, err := env.store.Messages().ListByTicket(ctx, ticket.ID)
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != 1 {
				t.Fatalf("ticket has %d messages, want 1", len(msgs))
			}
			rels, err := env.relationships.GetRelationships(ctx, ticket.ID, agent)
			if err != nil {
				t.Fatal(err)
			}
			if len(rels.Parents)+len(rels.Children)+len(rels.MergedTickets) != 0 || rels.MergedInto != nil {
				t.Fatalf("unexpected edges %+v", rels)
			}
			if got := len(env.log.types()); got != before {
				t.Fatalf("rejected merge published %d events", got-before)
			}
		})
	}
}

func TestMergedTicketRejectsWrites(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	primary := env.createTicket(t, customer, "primary", "")
	secondary := env.createTicket(t, customer, "secondary", "")
	if _, err := env.relationships.MergeTickets(ctx, primary.ID, secondary.ID, agent); err != nil {
		t.Fatal(err)
	}
	agentID := "agent-9"

	writes := []struct {
		name string
		run  func() error
	}{
		{"assign", func() error {
			_, err := env.tickets.AssignTicket(ctx, secondary.ID, &agentID, agent)
			return err
		}},
		{"unassign", func() error {
			_, err := env.tickets.AssignTicket(ctx, secondary.ID, nil, agent)
			return err
		}},
		{"reopen", func() error {
			_, err := env.tickets.UpdateTicketStatus(ctx, secondary.ID, domain.TicketStatusOpen, admin, "customer asked again")
			return err
		}},
		{"customer message", func() error {
			_, err := env.tickets.AddMessage(ctx, customer, secondary.ID, "hello?", false)
			return err
		}},
		{"agent note", func() error {
			_, err := env.tickets.AddMessage(ctx, agent, secondary.ID, "note", true)
			return err
		}},
	}
	for _, tt := range writes {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); !errors.Is(err, apperrors.ErrConflict) {
				t.Fatalf("expected conflict, got %v", err)
			}
			got := env.reload(t, secondary.ID)
			if got.Status != domain.TicketStatusClosed || got.MergedInto() != primary.ID || got.AssignedTo != nil {
				t.Fatalf("merged ticket changed: status=%s merged_into=%q assignee=%v", got.Status, got.MergedInto(), got.AssignedTo)
			}
			msgs, err := env.store.Messages().ListByTicket(ctx, secondary.ID)
			if err != nil {
				t.Fatal(err)
			}
			if len(msgs) != 0 {
				t.Fatalf("merged ticket gained %d messages", len(msgs))
			}
		})
	}
}

func TestAppendToMergedTicketLandsOnPrimary(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.createTicket(t, customer, "first", "")
	second := env.createTicket(t, customer, "second", "")
	third := env.createTicket(t, customer, "third", "")
	if _, err := env.relationships.MergeTickets(ctx, second.ID, first.ID, agent); err != nil {
		t.Fatal(err)
	}
	if _, err := env.relationships.MergeTickets(ctx, third.ID, second.ID, agent); err != nil {
		t.Fatal(err)
	}

	var msg *domain.TicketMessage
	err := env.tickets.Ingest(ctx, func(w *TicketWriter) error {
		var err error
		msg, err = w.Append(first.ID, MessageInput{SenderType: domain.SenderCustomer, Content: "reply to the old thread"}, domain.SystemActor)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if msg.TicketID != third.ID {
		t.Fatalf("message landed on %s, want %s", msg.TicketID, third.ID)
	}
	if got := env.reload(t, first.ID); got.Status != domain.TicketStatusClosed {
		t.Fatalf("absorbed ticket reopened: %s", got.Status)
	}
}

func TestCreateTicketIgnoresMergedIntoMetadata(t *testing.T) {
	env := newTestEnv(t)
	ticket, err := env.tickets.CreateTicket(context.Background(), customer, TicketCreateInput{
		Title:    "sneaky",
		Metadata: domain.Metadata{domain.MetaMergedInto: "elsewhere", "source": "web"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := env.reload(t, ticket.ID); got.MergedInto() != "" || got.Metadata.String("source") != "web" {
		t.Fatalf("unexpected metadata %+v", got.Metadata)
	}
}

func TestCreateAndDeleteRelationship(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createTicket(t, customer, "a", "")
	b := env.createTicket(t, customer, "b", "")

	if _, err := env.relationships.CreateRelationship(ctx, a.ID, b.ID, domain.RelationshipLink, agent); err != nil {
		t.Fatal(err)
	}
	if _, err := env.relationships.CreateRelationship(ctx, a.ID, b.ID, domain.RelationshipLink, agent); !errors.Is(err, apperrors.ErrDuplicateEdge) {
		t.Fatalf("expected duplicate edge, got %v", err)
	}
	if _, err := env.relationships.CreateRelationship(ctx, a.ID, b.ID, domain.RelationshipDuplicate, agent); err != nil {
		t.Fatalf("a different edge type is allowed: %v", err)
	}
	for _, bad := range []struct {
		parent, child string
		typ           domain.RelationshipType
		want          error
	}{
		{a.ID, a.ID, domain.RelationshipLink, apperrors.ErrValidation},
		{a.ID, b.ID, domain.RelationshipMerge, apperrors.ErrValidation},
		{a.ID, "ghost", domain.RelationshipLink, apperrors.ErrTicketNotFound},
	} {
		if _, err := env.relationships.CreateRelationship(ctx, bad.parent, bad.child, bad.typ, agent); !errors.Is(err, bad.want) {
			t.Fatalf("create %s->%s %s: expected %v, got %v", bad.parent, bad.child, bad.typ, bad.want, err)
		}
	}

	rels, err := env.relationships.GetRelationships(ctx, b.ID, agent)
	if err != nil {
		t.Fatal(err)
	}
	if len(rels.Parents) != 2 || len(rels.Children) != 0 {
		t.Fatalf("b should have two parent edges, got %+v", rels)
	}

	if err := env.relationships.DeleteRelationship(ctx, a.ID, b.ID, agent); err != nil {
		t.Fatal(err)
	}
	if err := env.relationships.DeleteRelationship(ctx, a.ID, b.ID, agent); !errors.Is(err, apperrors.ErrRelationshipNotFound) {
		t.Fatalf("expected relationship not found, got %v", err)
	}
	if got := env.log.count(events.EventRelationshipChanged); got != 6 {
		t.Fatalf("expected 6 relationship events (two per change), got %d", got)
	}
}

func TestDeleteRelationshipKeepsMergeEdges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	primary := env.createTicket(t, customer, "primary", "")
	secondary := env.createTicket(t, customer, "secondary", "")
	if _, err := env.relationships.MergeTickets(ctx, primary.ID, secondary.ID, agent); err != nil {
		t.Fatal(err)
	}
	if err := env.relationships.DeleteRelationship(ctx, primary.ID, secondary.ID, agent); !errors.Is(err, apperrors.ErrRelationshipNotFound) {
		t.Fatalf("merge edges are not deletable, got %v", err)
	}
}
