package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/repository"
)

func seedTicket(t *testing.T, s *Store, id string, created time.Time) {
	t.Helper()
	err := s.Tickets().Create(context.Background(), &domain.Ticket{
		ID:        id,
		Title:     "ticket " + id,
		Status:    domain.TicketStatusNew,
		Priority:  domain.TicketPriorityMedium,
		Metadata:  domain.Metadata{},
		CreatedAt: created,
		UpdatedAt: created,
	})
	if err != nil {
		t.Fatalf("seed ticket: %v", err)
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedTicket(t, s, "t1", time.Now())

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(tx repository.Store) error {
		ticket, err := tx.Tickets().LockByID(ctx, "t1")
		if err != nil {
			return err
		}
		ticket.Status = domain.TicketStatusClosed
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	ticket, err := s.Tickets().GetByID(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if ticket.Status != domain.TicketStatusNew {
		t.Fatalf("rolled back write is visible: status %s", ticket.Status)
	}
}

func TestFailOnInjectsErrors(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedTicket(t, s, "t1", time.Now())

	injected := errors.New("injected")
	s.FailOn("tickets.GetByID", injected)
	if _, err := s.Tickets().GetByID(ctx, "t1"); !errors.Is(err, injected) {
		t.Fatalf("expected injected error, got %v", err)
	}
	s.FailOn("tickets.GetByID", nil)
	if _, err := s.Tickets().GetByID(ctx, "t1"); err != nil {
		t.Fatalf("expected injection cleared, got %v", err)
	}
}

func TestUpdateNeverClearsBreachFlags(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedTicket(t, s, "t1", time.Now())
	if err := s.Tickets().MarkBreached(ctx, "t1", true, false); err != nil {
		t.Fatal(err)
	}
	stale := &domain.Ticket{ID: "t1", Status: domain.TicketStatusOpen, Priority: domain.TicketPriorityHigh}
	if err := s.Tickets().Update(ctx, stale); err != nil {
		t.Fatal(err)
	}
	if !stale.FirstResponseSLABreached {
		t.Fatal("update should report the stored breach flag back")
	}
	got, _ := s.Tickets().GetByID(ctx, "t1")
	if !got.FirstResponseSLABreached {
		t.Fatal("breach flag was cleared")
	}
}

func TestMessageUniqueKeys(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedTicket(t, s, "t1", time.Now())

	first := &domain.TicketMessage{ID: "m1", TicketID: "t1", Metadata: domain.Metadata{domain.MsgCallSID: "CA1", domain.MsgMessageType: "call"}}
	if err := s.Messages().Create(ctx, first); err != nil {
		t.Fatal(err)
	}
	again := &domain.TicketMessage{ID: "m2", TicketID: "t1", Metadata: domain.Metadata{domain.MsgCallSID: "CA1", domain.MsgMessageType: "call"}}
	if err := s.Messages().Create(ctx, again); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	voicemail := &domain.TicketMessage{ID: "m3", TicketID: "t1", Metadata: domain.Metadata{domain.MsgCallSID: "CA1", domain.MsgMessageType: "voicemail"}}
	if err := s.Messages().Create(ctx, voicemail); err != nil {
		t.Fatalf("voicemail for the same call should be accepted: %v", err)
	}
	orphan := &domain.TicketMessage{ID: "m4", TicketID: "missing"}
	if err := s.Messages().Create(ctx, orphan); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found for unknown ticket, got %v", err)
	}
}

func TestFindLatestByPhonePrefersNewest(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new", "closed"} {
		ticket := &domain.Ticket{
			ID:        id,
			Status:    domain.TicketStatusOpen,
			Metadata:  domain.Metadata{domain.MetaPhoneNumber: "+15550001"},
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if id == "closed" {
			ticket.Status = domain.TicketStatusClosed
		}
		if err := s.Tickets().Create(ctx, ticket); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.Tickets().FindLatestByPhone(ctx, "+15550001", []domain.TicketStatus{domain.TicketStatusOpen})
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "new" {
		t.Fatalf("expected newest open ticket, got %s", got.ID)
	}
	if _, err := s.Tickets().FindLatestByPhone(ctx, "+19999", []domain.TicketStatus{domain.TicketStatusOpen}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListBreachCandidates(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(d)
		return &v
	}
	tickets := []domain.Ticket{
		{ID: "answered-in-time", FirstResponseDeadline: at(-2 * time.Hour), FirstRespondedAt: at(-3 * time.Hour)},
		{ID: "answered-late", FirstResponseDeadline: at(-2 * time.Hour), FirstRespondedAt: at(-time.Hour)},
		{ID: "unanswered", FirstResponseDeadline: at(-time.Hour)},
		{ID: "already-flagged", FirstResponseDeadline: at(-time.Hour), FirstResponseSLABreached: true},
		{ID: "not-due", FirstResponseDeadline: at(time.Hour)},
		{ID: "resolved-late", ResolutionDeadline: at(-time.Hour), Status: domain.TicketStatusResolved},
		{ID: "open-late", ResolutionDeadline: at(-time.Hour), Status: domain.TicketStatusOpen},
	}
	for i := range tickets {
		ticket := tickets[i]
		if ticket.Status == "" {
			ticket.Status = domain.TicketStatusNew
		}
		ticket.Title = ticket.ID
		ticket.Priority = domain.TicketPriorityMedium
		ticket.Metadata = domain.Metadata{}
		ticket.CreatedAt = now.Add(time.Duration(i-10) * time.Hour)
		ticket.UpdatedAt = ticket.CreatedAt
		if err := s.Tickets().Create(ctx, &ticket); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.Tickets().ListBreachCandidates(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	ids := map[string]bool{}
	for _, ticket := range got {
		ids[ticket.ID] = true
	}
	want := []string{"answered-late", "unanswered", "open-late"}
	if len(ids) != len(want) {
		t.Fatalf("candidates %v, want %v", ids, want)
	}
	for _, id := range want {
		if !ids[id] {
			t.Fatalf("candidates %v missing %s", ids, id)
		}
	}
}
