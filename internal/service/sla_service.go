package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/events"
	"github.com/deskline/support-desk/internal/repository"
	"github.com/deskline/support-desk/internal/sla"
	apperrors "github.com/deskline/support-desk/pkg/util/errorutil"
)

// SLAService manages policies and ticket deadlines.
type SLAService struct {
	core
}

// SLAPolicyInput is the writable part of a policy.
type SLAPolicyInput struct {
	Name               string
	Description        string
	Priority           []domain.TicketPriority
	FirstResponseHours int
	ResolutionHours    int
	BusinessHours      bool
}

// BreachUpdate reports flags newly raised by EvaluateBreaches.
type BreachUpdate struct {
	TicketID      string `json:"ticket_id"`
	FirstResponse bool   `json:"first_response_breach"`
	Resolution    bool   `json:"resolution_breach"`
}

// NewSLAService constructs the service.
func NewSLAService(deps Dependencies) *SLAService {
	return &SLAService{core: newCore(deps)}
}

// DefaultPolicy exposes the built-in policy for a priority.
func (s *SLAService) DefaultPolicy(priority domain.TicketPriority) domain.SLAPolicy {
	return sla.DefaultPolicy(priority)
}

// ListPolicies returns all explicit policies.
func (s *SLAService) ListPolicies(ctx context.Context) ([]domain.SLAPolicy, error) {
	policies, err := s.store.SLAPolicies().List(ctx)
	if err != nil {
		return nil, err
	}
	if policies == nil {
		policies = []domain.SLAPolicy{}
	}
	return policies, nil
}

// GetPolicy fetches one policy.
func (s *SLAService) GetPolicy(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	policy, err := s.store.SLAPolicies().GetByID(ctx, id)
	if err != nil {
		return nil, policyErr(id, err)
	}
	return policy, nil
}

// CreatePolicy stores a new policy.
func (s *SLAService) CreatePolicy(ctx context.Context, input SLAPolicyInput, actor domain.Actor) (*domain.SLAPolicy, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validatePolicy(input); err != nil {
		return nil, err
	}
	now := s.now()
	policy := &domain.SLAPolicy{
		ID:                 uuid.NewString(),
		Name:               strings.TrimSpace(input.Name),
		Description:        strings.TrimSpace(input.Description),
		Priority:           input.Priority,
		FirstResponseHours: input.FirstResponseHours,
		ResolutionHours:    input.ResolutionHours,
		BusinessHours:      input.BusinessHours,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.SLAPolicies().Create(ctx, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

// UpdatePolicy replaces a policy's settings. Deadlines of tickets already
// using it are recomputed only when the policy is reassigned.
func (s *SLAService) UpdatePolicy(ctx context.Context, id string, input SLAPolicyInput, actor domain.Actor) (*domain.SLAPolicy, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validatePolicy(input); err != nil {
		return nil, err
	}
	policy, err := s.GetPolicy(ctx, id)
	if err != nil {
		return nil, err
	}
	policy.Name = strings.TrimSpace(input.Name)
	policy.Description = strings.TrimSpace(input.Description)
	policy.Priority = input.Priority
	policy.FirstResponseHours = input.FirstResponseHours
	policy.ResolutionHours = input.ResolutionHours
	policy.BusinessHours = input.BusinessHours
	policy.UpdatedAt = s.now()
	if err := s.store.SLAPolicies().Update(ctx, policy); err != nil {
		return nil, policyErr(id, err)
	}
	return policy, nil
}

// DeletePolicy removes a policy. Tickets that referenced it keep their deadlines.
func (s *SLAService) DeletePolicy(ctx context.Context, id string, actor domain.Actor) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.store.SLAPolicies().Delete(ctx, id); err != nil {
		return policyErr(id, err)
	}
	return nil
}

// AssignSLAPolicy attaches a policy, or reverts to the default when policyID is nil,
// and recomputes deadlines from the ticket's creation time. Breach flags are kept.
func (s *SLAService) AssignSLAPolicy(ctx context.Context, ticketID string, policyID *string, actor domain.Actor) (ticket *domain.Ticket, err error) {
	ctx, span := s.startSpan(ctx, "SLAService.AssignSLAPolicy", ticketIDAttr(ticketID))
	defer func() { endSpan(span, err) }()

	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	var evts []events.Event
	err = s.store.WithinTx(ctx, func(tx repository.Store) error {
		evts = nil
		var err error
		ticket, err = lockTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		policy := sla.DefaultPolicy(ticket.Priority)
		if policyID != nil {
			explicit, err := tx.SLAPolicies().GetByID(ctx, *policyID)
			if err != nil {
				return policyErr(*policyID, err)
			}
			policy = *explicit
		}

		oldPolicy := ticket.SLAPolicyID
		ticket.SLAPolicyID = policyID
		s.calculator.Apply(ticket, policy)
		ticket.UpdatedAt = s.now()
		if err := tx.Tickets().Update(ctx, ticket); err != nil {
			return err
		}
		entry := s.historyEntry(ticket.ID, actor, domain.ChangeTypeSLAPolicy,
			map[string]any{"sla_policy_id": derefString(oldPolicy)},
			map[string]any{"sla_policy_id": derefString(policyID)})
		if err := tx.History().Create(ctx, entry); err != nil {
			return err
		}
		evts = append(evts, ticketEvent(events.EventTicketSLAChanged, events.OpUpdate, ticket.ID, actor, slaPayload(ticket)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, evts)
	return ticket, nil
}

// CalculateSLAStatus is a read of the ticket's targets at the current time.
func (s *SLAService) CalculateSLAStatus(ctx context.Context, ticketID string, actor domain.Actor) (sla.Status, error) {
	ticket, err := getTicket(ctx, s.store, ticketID)
	if err != nil {
		return sla.Status{}, err
	}
	if !canView(actor, ticket) {
		return sla.Status{}, apperrors.NewForbidden("access denied")
	}
	return sla.CalculateStatus(ticket, s.now()), nil
}

// EvaluateBreaches raises breach flags for every ticket whose deadline passed at now.
// It is driven by an external scheduler and never clears a flag.
func (s *SLAService) EvaluateBreaches(ctx context.Context, now time.Time) (updates []BreachUpdate, err error) {
	ctx, span := s.startSpan(ctx, "SLAService.EvaluateBreaches")
	defer func() { endSpan(span, err) }()

	candidates, err := s.store.Tickets().ListBreachCandidates(ctx, now)
	if err != nil {
		return nil, err
	}
	updates = []BreachUpdate{}
	var evts []events.Event
	for i := range candidates {
		ticket := &candidates[i]
		first, resolution := sla.Evaluate(ticket, now)
		if first == ticket.FirstResponseSLABreached && resolution == ticket.ResolutionSLABreached {
			continue
		}
		if err := s.store.Tickets().MarkBreached(ctx, ticket.ID, first, resolution); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return updates, err
		}
		ticket.FirstResponseSLABreached = first
		ticket.ResolutionSLABreached = resolution
		updates = append(updates, BreachUpdate{TicketID: ticket.ID, FirstResponse: first, Resolution: resolution})
		evts = append(evts, ticketEvent(events.EventTicketSLAChanged, events.OpUpdate, ticket.ID, domain.SystemActor, slaPayload(ticket)))
		s.logger.Info("sla breached",
			zap.String("ticket_id", ticket.ID),
			zap.Bool("first_response", first),
			zap.Bool("resolution", resolution))
	}
	s.publish(ctx, evts)
	return updates, nil
}

func validatePolicy(input SLAPolicyInput) error {
	details := map[string]any{}
	if strings.TrimSpace(input.Name) == "" {
		details["name"] = "required"
	}
	if input.FirstResponseHours <= 0 {
		details["first_response_hours"] = "must be positive"
	}
	if input.ResolutionHours <= 0 {
		details["resolution_hours"] = "must be positive"
	}
	if len(input.Priority) == 0 {
		details["priority"] = "at least one priority is required"
	}
	seen := map[domain.TicketPriority]bool{}
	for _, p := range input.Priority {
		if !p.Valid() || seen[p] {
			details["priority"] = "must be a set of low, medium, high, urgent"
			break
		}
		seen[p] = true
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid sla policy", details)
	}
	return nil
}

func policyErr(id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("sla policy", map[string]any{"sla_policy_id": id})
	}
	return err
}

func slaPayload(ticket *domain.Ticket) events.TicketSLAChangedPayload {
	return events.TicketSLAChangedPayload{
		SLAPolicyID:              ticket.SLAPolicyID,
		FirstResponseDeadline:    ticket.FirstResponseDeadline,
		ResolutionDeadline:       ticket.ResolutionDeadline,
		FirstResponseSLABreached: ticket.FirstResponseSLABreached,
		ResolutionSLABreached:    ticket.ResolutionSLABreached,
	}
}
