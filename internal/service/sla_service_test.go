package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deskline/support-desk/internal/domain"
	apperrors "github.com/deskline/support-desk/pkg/util/errorutil"
)

func TestSLAPolicyAdministration(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	input := SLAPolicyInput{
		Name:               "Gold",
		Priority:           []domain.TicketPriority{domain.TicketPriorityHigh},
		FirstResponseHours: 2,
		ResolutionHours:    6,
	}
	if _, err := env.sla.CreatePolicy(ctx, input, agent); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("agents cannot create policies, got %v", err)
	}
	for _, bad := range []SLAPolicyInput{
		{Name: "", Priority: input.Priority, FirstResponseHours: 1, ResolutionHours: 1},
		{Name: "x", Priority: input.Priority, FirstResponseHours: 0, ResolutionHours: 1},
		{Name: "x", Priority: []domain.TicketPriority{"critical"}, FirstResponseHours: 1, ResolutionHours: 1},
		{Name: "x", FirstResponseHours: 1, ResolutionHours: 1},
	} {
		if _, err := env.sla.CreatePolicy(ctx, bad, admin); !errors.Is(err, apperrors.ErrValidation) {
			t.Fatalf("expected validation error for %+v, got %v", bad, err)
		}
	}

	policy, err := env.sla.CreatePolicy(ctx, input, admin)
	if err != nil {
		t.Fatal(err)
	}
	input.ResolutionHours = 12
	updated, err := env.sla.UpdatePolicy(ctx, policy.ID, input, admin)
	if err != nil {
		t.Fatal(err)
	}
	if updated.ResolutionHours != 12 {
		t.Fatalf("update not applied: %+v", updated)
	}
	if err := env.sla.DeletePolicy(ctx, policy.ID, admin); err != nil {
		t.Fatal(err)
	}
	if _, err := env.sla.GetPolicy(ctx, policy.ID); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestAssignSLAPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	policy, err := env.sla.CreatePolicy(ctx, SLAPolicyInput{
		Name:               "Tight",
		Priority:           []domain.TicketPriority{domain.TicketPriorityMedium},
		FirstResponseHours: 1,
		ResolutionHours:    2,
	}, admin)
	if err != nil {
		t.Fatal(err)
	}
	ticket := env.createTicket(t, customer, "needs sla", domain.TicketPriorityMedium)

	env.clock.Advance(3 * time.Hour)
	assigned, err := env.sla.AssignSLAPolicy(ctx, ticket.ID, &policy.ID, agent)
	if err != nil {
		t.Fatal(err)
	}
	if !assigned.FirstResponseDeadline.Equal(ticket.CreatedAt.Add(time.Hour)) || !assigned.ResolutionDeadline.Equal(ticket.CreatedAt.Add(2*time.Hour)) {
		t.Fatalf("deadlines not anchored at creation: %s %s", assigned.FirstResponseDeadline, assigned.ResolutionDeadline)
	}

	status, err := env.sla.CalculateSLAStatus(ctx, ticket.ID, customer)
	if err != nil {
		t.Fatal(err)
	}
	if status.FirstResponse.Remaining == nil || *status.FirstResponse.Remaining != -2*time.Hour {
		t.Fatalf("expected first response overdue by 2h, got %v", status.FirstResponse.Remaining)
	}

	reverted, err := env.sla.AssignSLAPolicy(ctx, ticket.ID, nil, agent)
	if err != nil {
		t.Fatal(err)
	}
	if reverted.SLAPolicyID != nil || !reverted.ResolutionDeadline.Equal(ticket.CreatedAt.Add(24*time.Hour)) {
		t.Fatalf("nil policy should restore the default deadlines: %+v", reverted)
	}

	missing := "ghost"
	if _, err := env.sla.AssignSLAPolicy(ctx, ticket.ID, &missing, agent); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("expected policy not found, got %v", err)
	}
	if _, err := env.sla.AssignSLAPolicy(ctx, ticket.ID, nil, customer); !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("customers cannot assign policies, got %v", err)
	}
}

func TestEvaluateBreachesIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	urgent := env.createTicket(t, customer, "urgent", domain.TicketPriorityUrgent)
	answered := env.createTicket(t, customer, "answered", domain.TicketPriorityUrgent)
	if _, err := env.tickets.AddMessage(ctx, agent, answered.ID, "on it", false); err != nil {
		t.Fatal(err)
	}

	updates, err := env.sla.EvaluateBreaches(ctx, env.clock.Now().Add(30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 0 {
		t.Fatalf("nothing is due yet, got %+v", updates)
	}

	updates, err = env.sla.EvaluateBreaches(ctx, env.clock.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 1 || updates[0].TicketID != urgent.ID || !updates[0].FirstResponse || updates[0].Resolution {
		t.Fatalf("expected first response breach on %s only, got %+v", urgent.ID, updates)
	}

	updates, err = env.sla.EvaluateBreaches(ctx, env.clock.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 0 {
		t.Fatalf("re-evaluation must not report again, got %+v", updates)
	}

	// A late reply does not clear the flag.
	if _, err := env.tickets.AddMessage(ctx, agent, urgent.ID, "sorry for the wait", false); err != nil {
		t.Fatal(err)
	}
	updates, err = env.sla.EvaluateBreaches(ctx, env.clock.Now().Add(5*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(updates) != 2 {
		t.Fatalf("both tickets miss resolution, got %+v", updates)
	}
	got := env.reload(t, urgent.ID)
	if !got.FirstResponseSLABreached || !got.ResolutionSLABreached {
		t.Fatalf("flags not persisted: %+v", got)
	}
	if env.reload(t, answered.ID).FirstResponseSLABreached {
		t.Fatal("answered ticket met its first response target")
	}
}
