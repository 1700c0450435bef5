package repository

import (
	"context"
	"errors"
	"time"

	"github.com/deskline/support-desk/internal/domain"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)

// TicketFilter captures listing parameters.
type TicketFilter struct {
	CreatedBy  *string
	AssigneeID *string
	Unassigned bool
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	SearchTerm *string
	Limit      int
	Offset     int
}

// TicketStatRow is the projection the statistics aggregator reads.
type TicketStatRow struct {
	Status    domain.TicketStatus
	Priority  domain.TicketPriority
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MessageLookup finds the newest message whose metadata[Key] is one of Values.
// MessageType narrows the match when set.
type MessageLookup struct {
	Key         string
	Values      []string
	MessageType domain.MessageKind
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update overwrites mutable columns. Breach flags are OR-ed with the stored values.
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// LockByID reads the row for update inside a transaction.
	LockByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	FindLatestByPhone(ctx context.Context, phone string, statuses []domain.TicketStatus) (*domain.Ticket, error)
	ListBreachCandidates(ctx context.Context, now time.Time) ([]domain.Ticket, error)
	MarkBreached(ctx context.Context, id string, firstResponse, resolution bool) error
	ListStatRows(ctx context.Context) ([]TicketStatRow, error)
}

// TicketMessageRepository manages ticket thread messages.
type TicketMessageRepository interface {
	Create(ctx context.Context, msg *domain.TicketMessage) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error)
	FindByMetadata(ctx context.Context, lookup MessageLookup) (*domain.TicketMessage, error)
	ReassignTicket(ctx context.Context, fromTicketID, toTicketID string) (int64, error)
}

// RelationshipRepository stores directed ticket edges.
type RelationshipRepository interface {
	Create(ctx context.Context, rel *domain.TicketRelationship) error
	Exists(ctx context.Context, parentID, childID string, relType domain.RelationshipType) (bool, error)
	DeleteBetween(ctx context.Context, parentID, childID string, types []domain.RelationshipType) (int64, error)
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketRelationship, error)
}

// ChannelRepository stores channel configuration.
type ChannelRepository interface {
	Create(ctx context.Context, channel *domain.Channel) error
	Update(ctx context.Context, channel *domain.Channel) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Channel, error)
	List(ctx context.Context) ([]domain.Channel, error)
}

// SLAPolicyRepository stores explicit SLA policies.
type SLAPolicyRepository interface {
	Create(ctx context.Context, policy *domain.SLAPolicy) error
	Update(ctx context.Context, policy *domain.SLAPolicy) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error)
	List(ctx context.Context) ([]domain.SLAPolicy, error)
}

// TicketHistoryRepository stores audit entries.
type TicketHistoryRepository interface {
	Create(ctx context.Context, history *domain.TicketHistory) error
	ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketHistory, error)
}

// Store groups the repositories and scopes them to a transaction on demand.
type Store interface {
	Tickets() TicketRepository
	Messages() TicketMessageRepository
	Relationships() RelationshipRepository
	Channels() ChannelRepository
	SLAPolicies() SLAPolicyRepository
	History() TicketHistoryRepository
	// WithinTx runs fn against a transactional view. Any error rolls back every write fn made.
	WithinTx(ctx context.Context, fn func(Store) error) error
}
