package repository

import (
	"context"

	"github.com/deskline/support-desk/internal/domain"
)

type relationshipRepository struct {
	db DBTX
}

func (r *relationshipRepository) Create(ctx context.Context, rel *domain.TicketRelationship) error {
	const query = `
        INSERT INTO ticket_relationships (id, parent_ticket_id, child_ticket_id, relationship_type, created_by, created_at)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.db.Exec(ctx, query,
		rel.ID,
		rel.ParentTicketID,
		rel.ChildTicketID,
		string(rel.RelationshipType),
		rel.CreatedBy,
		rel.CreatedAt,
	)
	return translate(err)
}

func (r *relationshipRepository) Exists(ctx context.Context, parentID, childID string, relType domain.RelationshipType) (bool, error) {
	const query = `
        SELECT EXISTS (SELECT 1 FROM ticket_relationships
        WHERE parent_ticket_id=$1 AND child_ticket_id=$2 AND relationship_type=$3)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, parentID, childID, string(relType)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *relationshipRepository) DeleteBetween(ctx context.Context, parentID, childID string, types []domain.RelationshipType) (int64, error) {
	const query = `
        DELETE FROM ticket_relationships
        WHERE parent_ticket_id=$1 AND child_ticket_id=$2 AND relationship_type = ANY($3)`
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	cmd, err := r.db.Exec(ctx, query, parentID, childID, names)
	if err != nil {
		return 0, translate(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *relationshipRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketRelationship, error) {
	const query = `
        SELECT id, parent_ticket_id, child_ticket_id, relationship_type, created_by, created_at
        FROM ticket_relationships
        WHERE parent_ticket_id=$1 OR child_ticket_id=$1
        ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketRelationship
	for rows.Next() {
		var (
			rel     domain.TicketRelationship
			relType string
		)
		if err := rows.Scan(&rel.ID, &rel.ParentTicketID, &rel.ChildTicketID, &relType, &rel.CreatedBy, &rel.CreatedAt); err != nil {
			return nil, err
		}
		rel.RelationshipType = domain.RelationshipType(relType)
		result = append(result, rel)
	}
	return result, rows.Err()
}
