package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/deskline/support-desk/internal/domain"
)

type slaPolicyRepository struct {
	db DBTX
}

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        INSERT INTO sla_policies (id, name, description, priority, first_response_hours, resolution_hours, business_hours, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.db.Exec(ctx, query,
		policy.ID,
		policy.Name,
		policy.Description,
		priorityStrings(policy.Priority),
		policy.FirstResponseHours,
		policy.ResolutionHours,
		policy.BusinessHours,
		policy.CreatedAt,
		policy.UpdatedAt,
	)
	return translate(err)
}

func (r *slaPolicyRepository) Update(ctx context.Context, policy *domain.SLAPolicy) error {
	const query = `
        UPDATE sla_policies SET name=$1, description=$2, priority=$3, first_response_hours=$4,
            resolution_hours=$5, business_hours=$6, updated_at=$7
        WHERE id=$8`
	cmd, err := r.db.Exec(ctx, query,
		policy.Name,
		policy.Description,
		priorityStrings(policy.Priority),
		policy.FirstResponseHours,
		policy.ResolutionHours,
		policy.BusinessHours,
		policy.UpdatedAt,
		policy.ID,
	)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *slaPolicyRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM sla_policies WHERE id=$1`, id)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SLAPolicy, error) {
	const query = `
        SELECT id, name, description, priority, first_response_hours, resolution_hours, business_hours, created_at, updated_at
        FROM sla_policies WHERE id=$1`
	policy, err := scanPolicy(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return policy, nil
}

func (r *slaPolicyRepository) List(ctx context.Context) ([]domain.SLAPolicy, error) {
	const query = `
        SELECT id, name, description, priority, first_response_hours, resolution_hours, business_hours, created_at, updated_at
        FROM sla_policies ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SLAPolicy
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *policy)
	}
	return result, rows.Err()
}

func scanPolicy(row pgx.Row) (*domain.SLAPolicy, error) {
	var (
		policy     domain.SLAPolicy
		priorities []string
	)
	if err := row.Scan(
		&policy.ID,
		&policy.Name,
		&policy.Description,
		&priorities,
		&policy.FirstResponseHours,
		&policy.ResolutionHours,
		&policy.BusinessHours,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	for _, p := range priorities {
		policy.Priority = append(policy.Priority, domain.TicketPriority(p))
	}
	return &policy, nil
}

func priorityStrings(priorities []domain.TicketPriority) []string {
	out := make([]string, len(priorities))
	for i, p := range priorities {
		out[i] = string(p)
	}
	return out
}
