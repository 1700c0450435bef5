// Package memstore is an in-process repository.Store. Transactions run
// against a snapshot that replaces the live state only when fn succeeds.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/repository"
)

type state struct {
	tickets       map[string]*domain.Ticket
	ticketSeq     map[string]int
	messages      []*domain.TicketMessage
	relationships []*domain.TicketRelationship
	channels      map[string]*domain.Channel
	policies      map[string]*domain.SLAPolicy
	history       []*domain.TicketHistory
	seq           int
}

func newState() *state {
	return &state{
		tickets:   map[string]*domain.Ticket{},
		ticketSeq: map[string]int{},
		channels:  map[string]*domain.Channel{},
		policies:  map[string]*domain.SLAPolicy{},
	}
}

func (s *state) clone() *state {
	cp := newState()
	cp.seq = s.seq
	for id, t := range s.tickets {
		cp.tickets[id] = t.Clone()
		cp.ticketSeq[id] = s.ticketSeq[id]
	}
	for _, m := range s.messages {
		cp.messages = append(cp.messages, m.Clone())
	}
	for _, r := range s.relationships {
		rel := *r
		cp.relationships = append(cp.relationships, &rel)
	}
	for id, c := range s.channels {
		ch := *c
		cp.channels[id] = &ch
	}
	for id, p := range s.policies {
		policy := *p
		policy.Priority = append([]domain.TicketPriority(nil), p.Priority...)
		cp.policies[id] = &policy
	}
	for _, h := range s.history {
		entry := *h
		cp.history = append(cp.history, &entry)
	}
	return cp
}

// Store implements repository.Store in memory.
type Store struct {
	mu       sync.Mutex
	st       *state
	failures map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState(), failures: map[string]error{}}
}

// FailOn makes every later call of op (for example "messages.ReassignTicket") return err.
// A nil err clears the injection.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) root() *view {
	return &view{store: s}
}

func (s *Store) Tickets() repository.TicketRepository             { return tickets{s.root()} }
func (s *Store) Messages() repository.TicketMessageRepository     { return messages{s.root()} }
func (s *Store) Relationships() repository.RelationshipRepository { return relationships{s.root()} }
func (s *Store) Channels() repository.ChannelRepository           { return channels{s.root()} }
func (s *Store) SLAPolicies() repository.SLAPolicyRepository      { return policies{s.root()} }
func (s *Store) History() repository.TicketHistoryRepository      { return history{s.root()} }

func (s *Store) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	return s.root().WithinTx(ctx, fn)
}

// view is either the live store or a transaction snapshot.
type view struct {
	store *Store
	tx    *state
}

func (v *view) Tickets() repository.TicketRepository             { return tickets{v} }
func (v *view) Messages() repository.TicketMessageRepository     { return messages{v} }
func (v *view) Relationships() repository.RelationshipRepository { return relationships{v} }
func (v *view) Channels() repository.ChannelRepository           { return channels{v} }
func (v *view) SLAPolicies() repository.SLAPolicyRepository      { return policies{v} }
func (v *view) History() repository.TicketHistoryRepository      { return history{v} }

func (v *view) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	if v.tx != nil {
		return fn(v)
	}
	v.store.mu.Lock()
	defer v.store.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := v.store.st.clone()
	if err := fn(&view{store: v.store, tx: snapshot}); err != nil {
		return err
	}
	v.store.st = snapshot
	return nil
}

// do runs fn against the state this view sees, holding the store lock outside transactions.
func (v *view) do(ctx context.Context, op string, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st := v.tx
	if st == nil {
		v.store.mu.Lock()
		defer v.store.mu.Unlock()
		st = v.store.st
	}
	if err := v.store.failures[op]; err != nil {
		return err
	}
	return fn(st)
}

type tickets struct{ v *view }

func (r tickets) Create(ctx context.Context, ticket *domain.Ticket) error {
	return r.v.do(ctx, "tickets.Create", func(st *state) error {
		if _, exists := st.tickets[ticket.ID]; exists {
			return repository.ErrDuplicate
		}
		st.seq++
		st.tickets[ticket.ID] = ticket.Clone()
		st.ticketSeq[ticket.ID] = st.seq
		return nil
	})
}

func (r tickets) Update(ctx context.Context, ticket *domain.Ticket) error {
	return r.v.do(ctx, "tickets.Update", func(st *state) error {
		current, ok := st.tickets[ticket.ID]
		if !ok {
			return repository.ErrNotFound
		}
		next := ticket.Clone()
		next.CreatedBy = current.CreatedBy
		next.CreatedAt = current.CreatedAt
		next.FirstResponseSLABreached = current.FirstResponseSLABreached || ticket.FirstResponseSLABreached
		next.ResolutionSLABreached = current.ResolutionSLABreached || ticket.ResolutionSLABreached
		ticket.FirstResponseSLABreached = next.FirstResponseSLABreached
		ticket.ResolutionSLABreached = next.ResolutionSLABreached
		st.tickets[ticket.ID] = next
		return nil
	})
}

func (r tickets) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.v.do(ctx, "tickets.GetByID", func(st *state) error {
		t, ok := st.tickets[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = t.Clone()
		return nil
	})
	return out, err
}

func (r tickets) LockByID(ctx context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.v.do(ctx, "tickets.LockByID", func(st *state) error {
		t, ok := st.tickets[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = t.Clone()
		return nil
	})
	return out, err
}

func (r tickets) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.v.do(ctx, "tickets.ListWithFilter", func(st *state) error {
		matched := r.sorted(st, func(t *domain.Ticket) bool { return matches(t, filter) })
		limit := filter.Limit
		if limit <= 0 {
			limit = 20
		}
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		for i := offset; i < len(matched) && i < offset+limit; i++ {
			out = append(out, *matched[i].Clone())
		}
		return nil
	})
	return out, err
}

func (r tickets) FindLatestByPhone(ctx context.Context, phone string, statuses []domain.TicketStatus) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.v.do(ctx, "tickets.FindLatestByPhone", func(st *state) error {
		matched := r.sorted(st, func(t *domain.Ticket) bool {
			return t.Metadata.String(domain.MetaPhoneNumber) == phone && containsStatus(statuses, t.Status)
		})
		if len(matched) == 0 {
			return repository.ErrNotFound
		}
		out = matched[0].Clone()
		return nil
	})
	return out, err
}

func (r tickets) ListBreachCandidates(ctx context.Context, now time.Time) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.v.do(ctx, "tickets.ListBreachCandidates", func(st *state) error {
		for _, t := range r.sorted(st, func(t *domain.Ticket) bool {
			first := !t.FirstResponseSLABreached && t.FirstResponseDeadline != nil && t.FirstResponseDeadline.Before(now) &&
				(t.FirstRespondedAt == nil || t.FirstRespondedAt.After(*t.FirstResponseDeadline))
			resolution := !t.ResolutionSLABreached && t.ResolutionDeadline != nil && t.ResolutionDeadline.Before(now) && t.Status.Unresolved()
			return first || resolution
		}) {
			out = append(out, *t.Clone())
		}
		return nil
	})
	return out, err
}

func (r tickets) MarkBreached(ctx context.Context, id string, firstResponse, resolution bool) error {
	return r.v.do(ctx, "tickets.MarkBreached", func(st *state) error {
		t, ok := st.tickets[id]
		if !ok {
			return repository.ErrNotFound
		}
		t.FirstResponseSLABreached = t.FirstResponseSLABreached || firstResponse
		t.ResolutionSLABreached = t.ResolutionSLABreached || resolution
		return nil
	})
}

func (r tickets) ListStatRows(ctx context.Context) ([]repository.TicketStatRow, error) {
	var out []repository.TicketStatRow
	err := r.v.do(ctx, "tickets.ListStatRows", func(st *state) error {
		for _, t := range st.tickets {
			out = append(out, repository.TicketStatRow{
				Status:    t.Status,
				Priority:  t.Priority,
				CreatedAt: t.CreatedAt,
				UpdatedAt: t.UpdatedAt,
			})
		}
		return nil
	})
	return out, err
}

// sorted returns matching tickets newest first; insertion order breaks ties.
func (r tickets) sorted(st *state, keep func(*domain.Ticket) bool) []*domain.Ticket {
	var matched []*domain.Ticket
	for _, t := range st.tickets {
		if keep(t) {
			matched = append(matched, t)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return st.ticketSeq[a.ID] > st.ticketSeq[b.ID]
	})
	return matched
}

func matches(t *domain.Ticket, f repository.TicketFilter) bool {
	if f.CreatedBy != nil && (t.CreatedBy == nil || *t.CreatedBy != *f.CreatedBy) {
		return false
	}
	if f.AssigneeID != nil && (t.AssignedTo == nil || *t.AssignedTo != *f.AssigneeID) {
		return false
	}
	if f.Unassigned && t.AssignedTo != nil {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, t.Status) {
		return false
	}
	if len(f.Priorities) > 0 {
		found := false
		for _, p := range f.Priorities {
			if p == t.Priority {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*f.SearchTerm))
		if term != "" && !strings.Contains(strings.ToLower(t.Title), term) && !strings.Contains(strings.ToLower(t.Description), term) {
			return false
		}
	}
	return true
}

func containsStatus(statuses []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}

type messages struct{ v *view }

// uniqueMessageKeys mirrors the partial unique indexes on ticket_messages.
var uniqueMessageKeys = []string{domain.MsgEmailMessageID, domain.MsgMessageSID}

func (r messages) Create(ctx context.Context, msg *domain.TicketMessage) error {
	return r.v.do(ctx, "messages.Create", func(st *state) error {
		if _, ok := st.tickets[msg.TicketID]; !ok {
			return repository.ErrNotFound
		}
		for _, existing := range st.messages {
			if existing.ID == msg.ID {
				return repository.ErrDuplicate
			}
			for _, key := range uniqueMessageKeys {
				if v := msg.Metadata.String(key); v != "" && existing.Metadata.String(key) == v {
					return repository.ErrDuplicate
				}
			}
			if sid := msg.Metadata.String(domain.MsgCallSID); sid != "" &&
				existing.Metadata.String(domain.MsgCallSID) == sid &&
				existing.Metadata.String(domain.MsgMessageType) == msg.Metadata.String(domain.MsgMessageType) {
				return repository.ErrDuplicate
			}
		}
		st.messages = append(st.messages, msg.Clone())
		return nil
	})
}

func (r messages) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	var out []domain.TicketMessage
	err := r.v.do(ctx, "messages.ListByTicket", func(st *state) error {
		for _, m := range st.messages {
			if m.TicketID == ticketID {
				out = append(out, *m.Clone())
			}
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

func (r messages) FindByMetadata(ctx context.Context, lookup repository.MessageLookup) (*domain.TicketMessage, error) {
	var out *domain.TicketMessage
	err := r.v.do(ctx, "messages.FindByMetadata", func(st *state) error {
		for _, m := range st.messages {
			if lookup.MessageType != "" && m.Metadata.String(domain.MsgMessageType) != string(lookup.MessageType) {
				continue
			}
			value := m.Metadata.String(lookup.Key)
			if value == "" {
				continue
			}
			for _, want := range lookup.Values {
				if value == want && (out == nil || !m.CreatedAt.Before(out.CreatedAt)) {
					out = m
				}
			}
		}
		if out == nil {
			return repository.ErrNotFound
		}
		out = out.Clone()
		return nil
	})
	return out, err
}

func (r messages) ReassignTicket(ctx context.Context, fromTicketID, toTicketID string) (int64, error) {
	var moved int64
	err := r.v.do(ctx, "messages.ReassignTicket", func(st *state) error {
		for _, m := range st.messages {
			if m.TicketID == fromTicketID {
				m.TicketID = toTicketID
				moved++
			}
		}
		return nil
	})
	return moved, err
}

type relationships struct{ v *view }

func (r relationships) Create(ctx context.Context, rel *domain.TicketRelationship) error {
	return r.v.do(ctx, "relationships.Create", func(st *state) error {
		for _, existing := range st.relationships {
			if existing.ParentTicketID == rel.ParentTicketID && existing.ChildTicketID == rel.ChildTicketID &&
				existing.RelationshipType == rel.RelationshipType {
				return repository.ErrDuplicate
			}
		}
		cp := *rel
		st.relationships = append(st.relationships, &cp)
		return nil
	})
}

func (r relationships) Exists(ctx context.Context, parentID, childID string, relType domain.RelationshipType) (bool, error) {
	var found bool
	err := r.v.do(ctx, "relationships.Exists", func(st *state) error {
		for _, existing := range st.relationships {
			if existing.ParentTicketID == parentID && existing.ChildTicketID == childID && existing.RelationshipType == relType {
				found = true
				break
			}
		}
		return nil
	})
	return found, err
}

func (r relationships) DeleteBetween(ctx context.Context, parentID, childID string, types []domain.RelationshipType) (int64, error) {
	var removed int64
	err := r.v.do(ctx, "relationships.DeleteBetween", func(st *state) error {
		kept := st.relationships[:0]
		for _, existing := range st.relationships {
			if existing.ParentTicketID == parentID && existing.ChildTicketID == childID && containsType(types, existing.RelationshipType) {
				removed++
				continue
			}
			kept = append(kept, existing)
		}
		st.relationships = kept
		return nil
	})
	return removed, err
}

func (r relationships) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketRelationship, error) {
	var out []domain.TicketRelationship
	err := r.v.do(ctx, "relationships.ListByTicket", func(st *state) error {
		for _, existing := range st.relationships {
			if existing.ParentTicketID == ticketID || existing.ChildTicketID == ticketID {
				out = append(out, *existing)
			}
		}
		return nil
	})
	return out, err
}

func containsType(types []domain.RelationshipType, t domain.RelationshipType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

type channels struct{ v *view }

func (r channels) Create(ctx context.Context, channel *domain.Channel) error {
	return r.v.do(ctx, "channels.Create", func(st *state) error {
		if _, exists := st.channels[channel.ID]; exists {
			return repository.ErrDuplicate
		}
		cp := *channel
		st.channels[channel.ID] = &cp
		return nil
	})
}

func (r channels) Update(ctx context.Context, channel *domain.Channel) error {
	return r.v.do(ctx, "channels.Update", func(st *state) error {
		current, ok := st.channels[channel.ID]
		if !ok {
			return repository.ErrNotFound
		}
		cp := *channel
		cp.Type = current.Type
		cp.CreatedAt = current.CreatedAt
		st.channels[channel.ID] = &cp
		return nil
	})
}

func (r channels) Delete(ctx context.Context, id string) error {
	return r.v.do(ctx, "channels.Delete", func(st *state) error {
		if _, ok := st.channels[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.channels, id)
		for _, m := range st.messages {
			if m.ChannelID != nil && *m.ChannelID == id {
				m.ChannelID = nil
			}
		}
		return nil
	})
}

func (r channels) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	var out *domain.Channel
	err := r.v.do(ctx, "channels.GetByID", func(st *state) error {
		c, ok := st.channels[id]
		if !ok {
			return repository.ErrNotFound
		}
		cp := *c
		out = &cp
		return nil
	})
	return out, err
}

func (r channels) List(ctx context.Context) ([]domain.Channel, error) {
	var out []domain.Channel
	err := r.v.do(ctx, "channels.List", func(st *state) error {
		for _, c := range st.channels {
			out = append(out, *c)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
		return nil
	})
	return out, err
}

type policies struct{ v *view }

func (r policies) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	return r.v.do(ctx, "policies.Create", func(st *state) error {
		if _, exists := st.policies[policy.ID]; exists {
			return repository.ErrDuplicate
		}
		cp := *policy
		st.policies[policy.ID] = &cp
		return nil
	})
}

func (r policies) Update(ctx context.Context, policy *domain.SLAPolicy) error {
	return r.v.do(ctx, "policies.Update", func(st *state) error {
		current, ok := st.policies[policy.ID]
		if !ok {
			return repository.ErrNotFound
		}
		cp := *policy
		cp.CreatedAt = current.CreatedAt
		st.policies[policy.ID] = &cp
		return nil
	})
}

func (r policies) Delete(ctx context.Context, id string) error {
	return r.v.do(ctx, "policies.Delete", func(st *state) error {
		if _, ok := st.policies[id]; !ok {
			return repository.ErrNotFound
		}
		delete(st.policies, id)
		for _, t := range st.tickets {
			if t.SLAPolicyID != nil && *t.SLAPolicyID == id {
				t.SLAPolicyID = nil
			}
		}
		return nil
	})
}

func (r policies) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	var out *domain.SLAPolicy
	err := r.v.do(ctx, "policies.GetByID", func(st *state) error {
		p, ok := st.policies[id]
		if !ok {
			return repository.ErrNotFound
		}
		cp := *p
		out = &cp
		return nil
	})
	return out, err
}

func (r policies) List(ctx context.Context) ([]domain.SLAPolicy, error) {
	var out []domain.SLAPolicy
	err := r.v.do(ctx, "policies.List", func(st *state) error {
		for _, p := range st.policies {
			out = append(out, *p)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
		return nil
	})
	return out, err
}

type history struct{ v *view }

func (r history) Create(ctx context.Context, entry *domain.TicketHistory) error {
	return r.v.do(ctx, "history.Create", func(st *state) error {
		cp := *entry
		st.history = append(st.history, &cp)
		return nil
	})
}

func (r history) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error) {
	var out []domain.TicketHistory
	err := r.v.do(ctx, "history.ListByTicket", func(st *state) error {
		var all []domain.TicketHistory
		for _, h := range st.history {
			if h.TicketID == ticketID {
				all = append(all, *h)
			}
		}
		if limit <= 0 {
			limit = 20
		}
		if offset < 0 {
			offset = 0
		}
		for i := offset; i < len(all) && i < offset+limit; i++ {
			out = append(out, all[i])
		}
		return nil
	})
	return out, err
}
