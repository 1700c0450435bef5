package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/deskline/support-desk/internal/api/dto"
	"github.com/deskline/support-desk/internal/auth"
	"github.com/deskline/support-desk/internal/domain"
	"github.com/deskline/support-desk/internal/service"
)

// SLAHandler administers SLA policies and dashboard statistics.
type SLAHandler struct {
	sla   *service.SLAService
	stats *service.StatisticsService
	clock func() time.Time
}

// NewSLAHandler constructs handler. A nil clock uses time.Now.
func NewSLAHandler(slaService *service.SLAService, stats *service.StatisticsService, clock func() time.Time) *SLAHandler {
	if clock == nil {
		clock = time.Now
	}
	return &SLAHandler{sla: slaService, stats: stats, clock: clock}
}

// ListPolicies GET /sla-policies.
func (h *SLAHandler) ListPolicies(c *fiber.Ctx) error {
	policies, err := h.sla.ListPolicies(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSLAPolicyList(policies)})
}

// DefaultPolicies GET /sla-policies/defaults.
func (h *SLAHandler) DefaultPolicies(c *fiber.Ctx) error {
	defaults := make([]domain.SLAPolicy, 0, len(domain.AllTicketPriorities))
	for _, p := range domain.AllTicketPriorities {
		defaults = append(defaults, h.sla.DefaultPolicy(p))
	}
	return c.JSON(fiber.Map{"data": dto.NewSLAPolicyList(defaults)})
}

// GetPolicy GET /sla-policies/:id.
func (h *SLAHandler) GetPolicy(c *fiber.Ctx) error {
	policy, err := h.sla.GetPolicy(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSLAPolicyResponse(policy)})
}

// CreatePolicy POST /sla-policies.
func (h *SLAHandler) CreatePolicy(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.SLAPolicyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	policy, err := h.sla.CreatePolicy(c.UserContext(), policyInput(req), actor)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewSLAPolicyResponse(policy)})
}

// UpdatePolicy PUT /sla-policies/:id.
func (h *SLAHandler) UpdatePolicy(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.SLAPolicyRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	policy, err := h.sla.UpdatePolicy(c.UserContext(), c.Params("id"), policyInput(req), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSLAPolicyResponse(policy)})
}

// DeletePolicy DELETE /sla-policies/:id.
func (h *SLAHandler) DeletePolicy(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	if err := h.sla.DeletePolicy(c.UserContext(), c.Params("id"), actor); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// EvaluateBreaches POST /sla/evaluate raises breach flags on overdue tickets.
func (h *SLAHandler) EvaluateBreaches(c *fiber.Ctx) error {
	updates, err := h.sla.EvaluateBreaches(c.UserContext(), h.clock())
	if err != nil {
		return err
	}
	if updates == nil {
		updates = []service.BreachUpdate{}
	}
	return c.JSON(fiber.Map{"data": updates})
}

// Statistics GET /statistics/tickets.
func (h *SLAHandler) Statistics(c *fiber.Ctx) error {
	stats, err := h.stats.GetTicketStatistics(c.UserContext(), h.clock())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

func policyInput(req dto.SLAPolicyRequest) service.SLAPolicyInput {
	return service.SLAPolicyInput{
		Name:               req.Name,
		Description:        req.Description,
		Priority:           req.Priority,
		FirstResponseHours: req.FirstResponseHours,
		ResolutionHours:    req.ResolutionHours,
		BusinessHours:      req.BusinessHours,
	}
}
