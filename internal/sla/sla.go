package sla

import (
	"fmt"
	"time"

	"github.com/deskline/support-desk/internal/calendar"
	"github.com/deskline/support-desk/internal/domain"
)

type hours struct {
	firstResponse int
	resolution    int
}

var defaultHours = map[domain.TicketPriority]hours{
	domain.TicketPriorityUrgent: {firstResponse: 1, resolution: 4},
	domain.TicketPriorityHigh:   {firstResponse: 4, resolution: 8},
	domain.TicketPriorityMedium: {firstResponse: 8, resolution: 24},
	domain.TicketPriorityLow:    {firstResponse: 24, resolution: 48},
}

// DefaultPolicy returns the built-in policy used when a ticket has no explicit one.
// Unknown priorities fall back to medium.
func DefaultPolicy(priority domain.TicketPriority) domain.SLAPolicy {
	h, ok := defaultHours[priority]
	if !ok {
		priority = domain.TicketPriorityMedium
		h = defaultHours[priority]
	}
	return domain.SLAPolicy{
		Name:               fmt.Sprintf("Default %s priority policy", priority),
		Description:        fmt.Sprintf("Default SLA policy for %s priority tickets", priority),
		Priority:           []domain.TicketPriority{priority},
		FirstResponseHours: h.firstResponse,
		ResolutionHours:    h.resolution,
		BusinessHours:      true,
	}
}

// Calculator computes deadlines against a business calendar.
type Calculator struct {
	calendar *calendar.Calendar
}

// NewCalculator builds a calculator. A nil calendar means every deadline is wall-clock.
func NewCalculator(cal *calendar.Calendar) *Calculator {
	return &Calculator{calendar: cal}
}

// Deadlines returns first-response and resolution deadlines counted from createdAt.
func (c *Calculator) Deadlines(createdAt time.Time, policy domain.SLAPolicy) (time.Time, time.Time) {
	first := time.Duration(policy.FirstResponseHours) * time.Hour
	resolution := time.Duration(policy.ResolutionHours) * time.Hour
	if !policy.BusinessHours || c == nil || c.calendar == nil {
		return createdAt.Add(first), createdAt.Add(resolution)
	}
	return c.calendar.AddWorkingDuration(createdAt, first), c.calendar.AddWorkingDuration(createdAt, resolution)
}

// Apply recomputes the ticket deadlines. Breach flags are left untouched.
func (c *Calculator) Apply(ticket *domain.Ticket, policy domain.SLAPolicy) {
	first, resolution := c.Deadlines(ticket.CreatedAt, policy)
	ticket.FirstResponseDeadline = &first
	ticket.ResolutionDeadline = &resolution
}

// Target is the state of one SLA target.
type Target struct {
	Breached  bool
	Deadline  *time.Time
	Remaining *time.Duration
}

// Status is the SLA read model for a ticket.
type Status struct {
	FirstResponse Target
	Resolution    Target
}

// CalculateStatus reports stored breach flags and the signed time left until each deadline.
func CalculateStatus(ticket *domain.Ticket, now time.Time) Status {
	return Status{
		FirstResponse: target(ticket.FirstResponseSLABreached, ticket.FirstResponseDeadline, now),
		Resolution:    target(ticket.ResolutionSLABreached, ticket.ResolutionDeadline, now),
	}
}

func target(breached bool, deadline *time.Time, now time.Time) Target {
	t := Target{Breached: breached}
	if deadline != nil {
		d := *deadline
		remaining := d.Sub(now)
		t.Deadline = &d
		t.Remaining = &remaining
	}
	return t
}

// Evaluate returns the breach flags the ticket should carry at now.
// Flags already set stay set.
func Evaluate(ticket *domain.Ticket, now time.Time) (firstResponse, resolution bool) {
	firstResponse = ticket.FirstResponseSLABreached
	resolution = ticket.ResolutionSLABreached

	if d := ticket.FirstResponseDeadline; d != nil && now.After(*d) {
		if ticket.FirstRespondedAt == nil || ticket.FirstRespondedAt.After(*d) {
			firstResponse = true
		}
	}
	if d := ticket.ResolutionDeadline; d != nil && now.After(*d) && ticket.Status.Unresolved() {
		resolution = true
	}
	return firstResponse, resolution
}
