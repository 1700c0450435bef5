package lifecycle

import (
	"strings"

	"github.com/deskline/support-desk/internal/domain"
	apperrors "github.com/deskline/support-desk/pkg/util/errorutil"
)

// StatusTransition is one allowed edge of the ticket status machine.
type StatusTransition struct {
	From            domain.TicketStatus `json:"from"`
	To              domain.TicketStatus `json:"to"`
	RequiresComment bool                `json:"requires_comment"`
	AllowedRoles    []domain.Role       `json:"allowed_roles"`
}

// Allows reports whether role may take this transition.
func (t StatusTransition) Allows(role domain.Role) bool {
	for _, allowed := range t.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}

var staff = []domain.Role{domain.RoleAdmin, domain.RoleAgent}

// table is ordered; callers rely on that order.
var table = []StatusTransition{
	{From: domain.TicketStatusNew, To: domain.TicketStatusOpen, AllowedRoles: staff},
	{From: domain.TicketStatusOpen, To: domain.TicketStatusPending, RequiresComment: true, AllowedRoles: staff},
	{From: domain.TicketStatusOpen, To: domain.TicketStatusResolved, RequiresComment: true, AllowedRoles: staff},
	{From: domain.TicketStatusPending, To: domain.TicketStatusOpen, AllowedRoles: []domain.Role{domain.RoleAdmin, domain.RoleAgent, domain.RoleCustomer}},
	{From: domain.TicketStatusPending, To: domain.TicketStatusResolved, RequiresComment: true, AllowedRoles: staff},
	{From: domain.TicketStatusResolved, To: domain.TicketStatusClosed, AllowedRoles: staff},
	{From: domain.TicketStatusResolved, To: domain.TicketStatusOpen, RequiresComment: true, AllowedRoles: []domain.Role{domain.RoleAdmin, domain.RoleAgent, domain.RoleCustomer}},
	{From: domain.TicketStatusClosed, To: domain.TicketStatusOpen, RequiresComment: true, AllowedRoles: []domain.Role{domain.RoleAdmin}},
}

// Table returns a copy of the full transition table.
func Table() []StatusTransition {
	out := make([]StatusTransition, len(table))
	copy(out, table)
	return out
}

// AvailableTransitions lists the transitions role may take from status, in table order.
func AvailableTransitions(status domain.TicketStatus, role domain.Role) []StatusTransition {
	out := []StatusTransition{}
	for _, t := range table {
		if t.From == status && t.Allows(role) {
			out = append(out, t)
		}
	}
	return out
}

// StatusChange is a requested status mutation.
type StatusChange struct {
	Current domain.TicketStatus
	New     domain.TicketStatus
	Role    domain.Role
	Comment string
}

// ValidateStatusChange checks a change against the table. The lookup matches
// on both ends of the edge.
func ValidateStatusChange(change StatusChange) error {
	t, ok := find(change.Current, change.New)
	if !ok {
		return apperrors.NewInvalidTransition(string(change.Current), string(change.New))
	}
	if !t.Allows(change.Role) {
		return apperrors.NewForbidden("role " + string(change.Role) + " may not change status from " +
			string(change.Current) + " to " + string(change.New))
	}
	if t.RequiresComment && strings.TrimSpace(change.Comment) == "" {
		return apperrors.NewCommentRequired(string(change.Current), string(change.New))
	}
	return nil
}

func find(from, to domain.TicketStatus) (StatusTransition, bool) {
	for _, t := range table {
		if t.From == from && t.To == to {
			return t, true
		}
	}
	return StatusTransition{}, false
}

// PathTo returns the shortest sequence of transitions role may take from one
// status to another. It returns nil when from == to and false when no path exists.
func PathTo(from, to domain.TicketStatus, role domain.Role) ([]StatusTransition, bool) {
	if from == to {
		return nil, true
	}
	prev := map[domain.TicketStatus]StatusTransition{}
	seen := map[domain.TicketStatus]bool{from: true}
	queue := []domain.TicketStatus{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, t := range AvailableTransitions(current, role) {
			if seen[t.To] {
				continue
			}
			seen[t.To] = true
			prev[t.To] = t
			if t.To == to {
				return unwind(prev, from, to), true
			}
			queue = append(queue, t.To)
		}
	}
	return nil, false
}

func unwind(prev map[domain.TicketStatus]StatusTransition, from, to domain.TicketStatus) []StatusTransition {
	var path []StatusTransition
	for at := to; at != from; {
		t := prev[at]
		path = append([]StatusTransition{t}, path...)
		at = t.From
	}
	return path
}
