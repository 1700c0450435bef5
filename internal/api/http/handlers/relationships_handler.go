package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/deskline/support-desk/internal/api/dto"
	"github.com/deskline/support-desk/internal/auth"
	"github.com/deskline/support-desk/internal/service"
)

// RelationshipsHandler exposes the ticket graph and merges.
type RelationshipsHandler struct {
	service *service.RelationshipService
}

// NewRelationshipsHandler constructs handler.
func NewRelationshipsHandler(relationships *service.RelationshipService) *RelationshipsHandler {
	return &RelationshipsHandler{service: relationships}
}

// GetRelationships GET /tickets/:id/relationships.
func (h *RelationshipsHandler) GetRelationships(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	rels, err := h.service.GetRelationships(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRelationshipsResponse(rels)})
}

// CreateRelationship POST /tickets/:id/relationships.
func (h *RelationshipsHandler) CreateRelationship(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateRelationshipRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	rel, err := h.service.CreateRelationship(c.UserContext(), c.Params("id"), req.ChildTicketID, req.RelationshipType, actor)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewRelationshipResponse(rel)})
}

// DeleteRelationship DELETE /tickets/:id/relationships/:childId.
func (h *RelationshipsHandler) DeleteRelationship(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteRelationship(c.UserContext(), c.Params("id"), c.Params("childId"), actor); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MergeTickets POST /tickets/:id/merge.
func (h *RelationshipsHandler) MergeTickets(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.MergeTicketsRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := h.service.MergeTickets(c.UserContext(), c.Params("id"), req.SecondaryTicketID, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MergeResponse{
		Primary:       dto.NewTicketResponse(result.Primary),
		Secondary:     dto.NewTicketResponse(result.Secondary),
		Relationship:  dto.NewRelationshipResponse(result.Relationship),
		MovedMessages: result.MovedMessages,
	}})
}
