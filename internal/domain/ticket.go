package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusNew      TicketStatus = "new"
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusPending  TicketStatus = "pending"
	TicketStatusResolved TicketStatus = "resolved"
	TicketStatusClosed   TicketStatus = "closed"
)

// AllTicketStatuses lists statuses in lifecycle order.
var AllTicketStatuses = []TicketStatus{
	TicketStatusNew,
	TicketStatusOpen,
	TicketStatusPending,
	TicketStatusResolved,
	TicketStatusClosed,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, candidate := range AllTicketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Unresolved reports whether the ticket still needs work.
func (s TicketStatus) Unresolved() bool {
	return s == TicketStatusNew || s == TicketStatusOpen || s == TicketStatusPending
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// AllTicketPriorities lists priorities from least to most urgent.
var AllTicketPriorities = []TicketPriority{
	TicketPriorityLow,
	TicketPriorityMedium,
	TicketPriorityHigh,
	TicketPriorityUrgent,
}

func (p TicketPriority) Valid() bool {
	for _, candidate := range AllTicketPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// Well-known ticket metadata keys.
const (
	MetaIsVisitor    = "is_visitor"
	MetaVisitorName  = "visitor_name"
	MetaVisitorEmail = "visitor_email"
	MetaChannelType  = "channel_type"
	MetaChannelID    = "channel_id"
	MetaPhoneNumber  = "phone_number"
	MetaEmailFrom    = "email_from"
	MetaMergedInto   = "merged_into"
)

// Metadata is an open key/value bag persisted as JSON.
type Metadata map[string]any

// String returns the value for key when it is a string.
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// Clone returns a shallow copy safe to mutate.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID                       string
	Title                    string
	Description              string
	Status                   TicketStatus
	Priority                 TicketPriority
	CreatedBy                *string
	AssignedTo               *string
	SLAPolicyID              *string
	FirstResponseDeadline    *time.Time
	ResolutionDeadline       *time.Time
	FirstResponseSLABreached bool
	ResolutionSLABreached    bool
	FirstRespondedAt         *time.Time
	Metadata                 Metadata
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

// MergedInto returns the primary ticket id when this ticket was absorbed by a merge.
func (t *Ticket) MergedInto() string {
	return t.Metadata.String(MetaMergedInto)
}

// Clone returns a deep enough copy for transactional snapshots.
func (t *Ticket) Clone() *Ticket {
	cp := *t
	cp.Metadata = t.Metadata.Clone()
	return &cp
}

// TicketStatistics summarizes the ticket set for dashboards.
type TicketStatistics struct {
	StatusCounts   map[TicketStatus]int   `json:"statusCounts"`
	PriorityCounts map[TicketPriority]int `json:"priorityCounts"`
	NewTickets     int                    `json:"newTickets"`
	OpenTickets    int                    `json:"openTickets"`
	ResolvedToday  int                    `json:"resolvedToday"`
	UrgentTickets  int                    `json:"urgentTickets"`
	AgeBuckets     TicketAgeBuckets       `json:"ageBuckets"`
}

// TicketAgeBuckets groups unresolved tickets by age.
type TicketAgeBuckets struct {
	UnderOneDay   int `json:"under_1d"`
	OneToSevenDay int `json:"1d_to_7d"`
	OverSevenDays int `json:"over_7d"`
}
