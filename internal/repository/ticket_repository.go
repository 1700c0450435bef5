package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/deskline/support-desk/internal/domain"
)

const ticketColumns = `id, title, description, status, priority, created_by, assigned_to, sla_policy_id,
               first_response_deadline, resolution_deadline, first_response_breach, resolution_breach,
               first_responded_at, metadata, created_at, updated_at`

type ticketRepository struct {
	db DBTX
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, title, description, status, priority, created_by, assigned_to, sla_policy_id,
            first_response_deadline, resolution_deadline, first_response_breach, resolution_breach,
            first_responded_at, metadata, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`
	_, err := r.db.Exec(ctx, query,
		ticket.ID,
		ticket.Title,
		ticket.Description,
		string(ticket.Status),
		string(ticket.Priority),
		ticket.CreatedBy,
		ticket.AssignedTo,
		ticket.SLAPolicyID,
		ticket.FirstResponseDeadline,
		ticket.ResolutionDeadline,
		ticket.FirstResponseSLABreached,
		ticket.ResolutionSLABreached,
		ticket.FirstRespondedAt,
		metadataOrEmpty(ticket.Metadata),
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	return translate(err)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET title=$1, description=$2, status=$3, priority=$4, assigned_to=$5, sla_policy_id=$6,
            first_response_deadline=$7, resolution_deadline=$8,
            first_response_breach = first_response_breach OR $9,
            resolution_breach = resolution_breach OR $10,
            first_responded_at=$11, metadata=$12, updated_at=$13
        WHERE id=$14
        RETURNING first_response_breach, resolution_breach`
	err := r.db.QueryRow(ctx, query,
		ticket.Title,
		ticket.Description,
		string(ticket.Status),
		string(ticket.Priority),
		ticket.AssignedTo,
		ticket.SLAPolicyID,
		ticket.FirstResponseDeadline,
		ticket.ResolutionDeadline,
		ticket.FirstResponseSLABreached,
		ticket.ResolutionSLABreached,
		ticket.FirstRespondedAt,
		metadataOrEmpty(ticket.Metadata),
		ticket.UpdatedAt,
		ticket.ID,
	).Scan(&ticket.FirstResponseSLABreached, &ticket.ResolutionSLABreached)
	return translate(err)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) LockByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) FindLatestByPhone(ctx context.Context, phone string, statuses []domain.TicketStatus) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE metadata->>'phone_number' = $1 AND status = ANY($2)
        ORDER BY created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, phone, statusStrings(statuses))
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, translate(err)
	}
	return ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CreatedBy != nil {
		args = append(args, *filter.CreatedBy)
		clauses = append(clauses, fmt.Sprintf("created_by=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "assigned_to IS NULL")
	}
	if len(filter.Statuses) > 0 {
		args = append(args, statusStrings(filter.Statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(filter.Priorities) > 0 {
		args = append(args, priorityStrings(filter.Priorities))
		clauses = append(clauses, fmt.Sprintf("priority = ANY($%d)", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(title) LIKE %s OR LOWER(description) LIKE %s)", placeholder, placeholder))
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListBreachCandidates(ctx context.Context, now time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE (first_response_breach = FALSE AND first_response_deadline < $1
               AND (first_responded_at IS NULL OR first_responded_at > first_response_deadline))
           OR (resolution_breach = FALSE AND resolution_deadline < $1 AND status IN ('new','open','pending'))`
	rows, err := r.db.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) MarkBreached(ctx context.Context, id string, firstResponse, resolution bool) error {
	const query = `
        UPDATE tickets SET first_response_breach = first_response_breach OR $1,
            resolution_breach = resolution_breach OR $2
        WHERE id=$3`
	cmd, err := r.db.Exec(ctx, query, firstResponse, resolution, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) ListStatRows(ctx context.Context) ([]TicketStatRow, error) {
	rows, err := r.db.Query(ctx, `SELECT status, priority, created_at, updated_at FROM tickets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []TicketStatRow
	for rows.Next() {
		var (
			row              TicketStatRow
			status, priority string
		)
		if err := rows.Scan(&status, &priority, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		row.Status = domain.TicketStatus(status)
		row.Priority = domain.TicketPriority(priority)
		result = append(result, row)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var (
		ticket           domain.Ticket
		status, priority string
	)
	if err := row.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&status,
		&priority,
		&ticket.CreatedBy,
		&ticket.AssignedTo,
		&ticket.SLAPolicyID,
		&ticket.FirstResponseDeadline,
		&ticket.ResolutionDeadline,
		&ticket.FirstResponseSLABreached,
		&ticket.ResolutionSLABreached,
		&ticket.FirstRespondedAt,
		&ticket.Metadata,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.Status = domain.TicketStatus(status)
	ticket.Priority = domain.TicketPriority(priority)
	if ticket.Metadata == nil {
		ticket.Metadata = domain.Metadata{}
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func statusStrings(statuses []domain.TicketStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func metadataOrEmpty(m domain.Metadata) domain.Metadata {
	if m == nil {
		return domain.Metadata{}
	}
	return m
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
