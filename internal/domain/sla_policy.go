package domain

import "time"

// SLAPolicy defines response and resolution targets for a set of priorities.
type SLAPolicy struct {
	ID                 string
	Name               string
	Description        string
	Priority           []TicketPriority
	FirstResponseHours int
	ResolutionHours    int
	BusinessHours      bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AppliesTo reports whether the policy lists p.
func (p *SLAPolicy) AppliesTo(priority TicketPriority) bool {
	for _, candidate := range p.Priority {
		if candidate == priority {
			return true
		}
	}
	return false
}
