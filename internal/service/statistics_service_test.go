package service

import (
	"context"
	"testing"
	"time"

	"github.com/deskline/support-desk/internal/domain"
)

func TestGetTicketStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.createTicket(t, customer, "old", domain.TicketPriorityLow)
	env.clock.Advance(3 * 24 * time.Hour)
	env.createTicket(t, customer, "burning", domain.TicketPriorityUrgent)
	env.clock.Advance(5 * 24 * time.Hour)
	done := env.createTicket(t, customer, "done", domain.TicketPriorityMedium)
	if _, err := env.tickets.UpdateTicketStatus(ctx, done.ID, domain.TicketStatusOpen, agent, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.tickets.UpdateTicketStatus(ctx, done.ID, domain.TicketStatusResolved, agent, "fixed"); err != nil {
		t.Fatal(err)
	}

	stats, err := env.stats.GetTicketStatistics(ctx, env.clock.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(stats.StatusCounts) != len(domain.AllTicketStatuses) || stats.StatusCounts[domain.TicketStatusClosed] != 0 {
		t.Fatalf("every status should be reported: %v", stats.StatusCounts)
	}
	if stats.StatusCounts[domain.TicketStatusNew] != 2 || stats.StatusCounts[domain.TicketStatusResolved] != 1 {
		t.Fatalf("unexpected status counts %v", stats.StatusCounts)
	}
	if stats.NewTickets != 2 || stats.OpenTickets != 0 || stats.UrgentTickets != 1 || stats.ResolvedToday != 1 {
		t.Fatalf("unexpected counters %+v", stats)
	}
	want := domain.TicketAgeBuckets{UnderOneDay: 0, OneToSevenDay: 1, OverSevenDays: 1}
	if stats.AgeBuckets != want {
		t.Fatalf("age buckets %+v, want %+v", stats.AgeBuckets, want)
	}

	tomorrow, err := env.stats.GetTicketStatistics(ctx, env.clock.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if tomorrow.ResolvedToday != 0 {
		t.Fatal("resolvedToday resets at UTC midnight")
	}
}

func TestGetTicketStatisticsEmpty(t *testing.T) {
	env := newTestEnv(t)
	stats, err := env.stats.GetTicketStatistics(context.Background(), env.clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(stats.PriorityCounts) != len(domain.AllTicketPriorities) {
		t.Fatalf("priorities should be zero-filled: %v", stats.PriorityCounts)
	}
}
