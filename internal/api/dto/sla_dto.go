package dto

import (
	"time"

	"github.com/deskline/support-desk/internal/domain"
)

// SLAPolicyRequest creates or replaces a policy.
type SLAPolicyRequest struct {
	Name               string                  `json:"name" validate:"required,max=255"`
	Description        string                  `json:"description"`
	Priority           []domain.TicketPriority `json:"priority" validate:"required,min=1,dive,oneof=low medium high urgent"`
	FirstResponseHours int                     `json:"first_response_hours" validate:"gt=0"`
	ResolutionHours    int                     `json:"resolution_hours" validate:"gt=0"`
	BusinessHours      bool                    `json:"business_hours"`
}

// SLAPolicyResponse represents a policy. Builtin policies have no id.
type SLAPolicyResponse struct {
	ID                 string                  `json:"id,omitempty"`
	Name               string                  `json:"name"`
	Description        string                  `json:"description"`
	Priority           []domain.TicketPriority `json:"priority"`
	FirstResponseHours int                     `json:"first_response_hours"`
	ResolutionHours    int                     `json:"resolution_hours"`
	BusinessHours      bool                    `json:"business_hours"`
	CreatedAt          *time.Time              `json:"created_at,omitempty"`
	UpdatedAt          *time.Time              `json:"updated_at,omitempty"`
}

// NewSLAPolicyResponse maps a policy.
func NewSLAPolicyResponse(p *domain.SLAPolicy) SLAPolicyResponse {
	out := SLAPolicyResponse{
		ID:                 p.ID,
		Name:               p.Name,
		Description:        p.Description,
		Priority:           p.Priority,
		FirstResponseHours: p.FirstResponseHours,
		ResolutionHours:    p.ResolutionHours,
		BusinessHours:      p.BusinessHours,
	}
	if !p.CreatedAt.IsZero() {
		created, updated := p.CreatedAt, p.UpdatedAt
		out.CreatedAt, out.UpdatedAt = &created, &updated
	}
	return out
}

// NewSLAPolicyList maps policies.
func NewSLAPolicyList(policies []domain.SLAPolicy) []SLAPolicyResponse {
	items := make([]SLAPolicyResponse, 0, len(policies))
	for i := range policies {
		items = append(items, NewSLAPolicyResponse(&policies[i]))
	}
	return items
}
