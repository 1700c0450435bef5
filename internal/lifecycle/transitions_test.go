package lifecycle

import (
	"errors"
	"testing"

	"github.com/deskline/support-desk/internal/domain"
	apperrors "github.com/deskline/support-desk/pkg/util/errorutil"
)

func TestAvailableTransitionsMatchTable(t *testing.T) {
	roles := []domain.Role{domain.RoleAdmin, domain.RoleAgent, domain.RoleCustomer}
	for _, status := range domain.AllTicketStatuses {
		for _, role := range roles {
			got := AvailableTransitions(status, role)
			var want []StatusTransition
			for _, entry := range Table() {
				if entry.From == status && entry.Allows(role) {
					want = append(want, entry)
				}
			}
			if len(got) != len(want) {
				t.Fatalf("AvailableTransitions(%s, %s) returned %d entries, want %d", status, role, len(got), len(want))
			}
			for i := range got {
				if got[i].From != want[i].From || got[i].To != want[i].To {
					t.Fatalf("AvailableTransitions(%s, %s)[%d] = %s->%s, want %s->%s",
						status, role, i, got[i].From, got[i].To, want[i].From, want[i].To)
				}
			}
		}
	}
}

func TestAvailableTransitionsOrder(t *testing.T) {
	got := AvailableTransitions(domain.TicketStatusOpen, domain.RoleAgent)
	if len(got) != 2 || got[0].To != domain.TicketStatusPending || got[1].To != domain.TicketStatusResolved {
		t.Fatalf("unexpected transitions from open: %+v", got)
	}
	if got := AvailableTransitions(domain.TicketStatusClosed, domain.RoleAgent); len(got) != 0 {
		t.Fatalf("agent should not reopen closed tickets, got %+v", got)
	}
	if got := AvailableTransitions(domain.TicketStatusNew, domain.RoleCustomer); len(got) != 0 {
		t.Fatalf("customer has no transitions from new, got %+v", got)
	}
}

func TestValidateStatusChange(t *testing.T) {
	cases := []struct {
		name   string
		change StatusChange
		want   error
	}{
		{"new to open by agent", StatusChange{Current: domain.TicketStatusNew, New: domain.TicketStatusOpen, Role: domain.RoleAgent}, nil},
		{"open to resolved needs comment", StatusChange{Current: domain.TicketStatusOpen, New: domain.TicketStatusResolved, Role: domain.RoleAgent}, apperrors.ErrCommentRequired},
		{"blank comment counts as missing", StatusChange{Current: domain.TicketStatusOpen, New: domain.TicketStatusPending, Role: domain.RoleAgent, Comment: "   "}, apperrors.ErrCommentRequired},
		{"open to resolved with comment", StatusChange{Current: domain.TicketStatusOpen, New: domain.TicketStatusResolved, Role: domain.RoleAdmin, Comment: "fixed"}, nil},
		{"customer reopens pending", StatusChange{Current: domain.TicketStatusPending, New: domain.TicketStatusOpen, Role: domain.RoleCustomer}, nil},
		{"customer cannot resolve", StatusChange{Current: domain.TicketStatusPending, New: domain.TicketStatusResolved, Role: domain.RoleCustomer, Comment: "done"}, apperrors.ErrForbidden},
		{"agent cannot reopen closed", StatusChange{Current: domain.TicketStatusClosed, New: domain.TicketStatusOpen, Role: domain.RoleAgent, Comment: "again"}, apperrors.ErrForbidden},
		{"admin reopens closed", StatusChange{Current: domain.TicketStatusClosed, New: domain.TicketStatusOpen, Role: domain.RoleAdmin, Comment: "again"}, nil},
		{"forbidden checked before comment", StatusChange{Current: domain.TicketStatusClosed, New: domain.TicketStatusOpen, Role: domain.RoleCustomer}, apperrors.ErrForbidden},
		{"same status", StatusChange{Current: domain.TicketStatusOpen, New: domain.TicketStatusOpen, Role: domain.RoleAdmin}, apperrors.ErrInvalidTransition},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStatusChange(tt.change)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// new -> closed shares its destination with resolved -> closed but is not an edge.
func TestValidateStatusChangeMatchesBothEnds(t *testing.T) {
	err := ValidateStatusChange(StatusChange{
		Current: domain.TicketStatusNew,
		New:     domain.TicketStatusClosed,
		Role:    domain.RoleAdmin,
		Comment: "closing",
	})
	if !errors.Is(err, apperrors.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}

	err = ValidateStatusChange(StatusChange{
		Current: domain.TicketStatusNew,
		New:     domain.TicketStatusOpen,
		Role:    domain.RoleCustomer,
	})
	if !errors.Is(err, apperrors.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestPathTo(t *testing.T) {
	path, ok := PathTo(domain.TicketStatusNew, domain.TicketStatusClosed, domain.RoleAgent)
	if !ok {
		t.Fatal("expected a path from new to closed")
	}
	want := []domain.TicketStatus{domain.TicketStatusOpen, domain.TicketStatusResolved, domain.TicketStatusClosed}
	if len(path) != len(want) {
		t.Fatalf("path length %d, want %d: %+v", len(path), len(want), path)
	}
	for i, step := range path {
		if step.To != want[i] {
			t.Fatalf("step %d goes to %s, want %s", i, step.To, want[i])
		}
	}

	if _, ok := PathTo(domain.TicketStatusNew, domain.TicketStatusClosed, domain.RoleCustomer); ok {
		t.Fatal("customer should have no path from new to closed")
	}
	if path, ok := PathTo(domain.TicketStatusClosed, domain.TicketStatusClosed, domain.RoleAgent); !ok || path != nil {
		t.Fatalf("expected empty path for same status, got %+v %v", path, ok)
	}
}
