package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/deskline/support-desk/internal/domain"
)

type ticketMessageRepository struct {
	db DBTX
}

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.TicketMessage) error {
	const query = `
        INSERT INTO ticket_messages (id, ticket_id, sender_id, content, is_internal, channel_id, metadata, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`
	_, err := r.db.Exec(ctx, query,
		msg.ID,
		msg.TicketID,
		msg.SenderID,
		msg.Content,
		msg.IsInternal,
		msg.ChannelID,
		metadataOrEmpty(msg.Metadata),
		msg.CreatedAt,
	)
	return translate(err)
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	const query = `
        SELECT id, ticket_id, sender_id, content, is_internal, channel_id, metadata, created_at
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *msg)
	}
	return result, rows.Err()
}

func (r *ticketMessageRepository) FindByMetadata(ctx context.Context, lookup MessageLookup) (*domain.TicketMessage, error) {
	const query = `
        SELECT id, ticket_id, sender_id, content, is_internal, channel_id, metadata, created_at
        FROM ticket_messages
        WHERE metadata->>$1 = ANY($2)
          AND ($3 = '' OR metadata->>'message_type' = $3)
        ORDER BY created_at DESC LIMIT 1`
	if len(lookup.Values) == 0 {
		return nil, ErrNotFound
	}
	msg, err := scanMessage(r.db.QueryRow(ctx, query, lookup.Key, lookup.Values, string(lookup.MessageType)))
	if err != nil {
		return nil, translate(err)
	}
	return msg, nil
}

func (r *ticketMessageRepository) ReassignTicket(ctx context.Context, fromTicketID, toTicketID string) (int64, error) {
	cmd, err := r.db.Exec(ctx, `UPDATE ticket_messages SET ticket_id=$1 WHERE ticket_id=$2`, toTicketID, fromTicketID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanMessage(row pgx.Row) (*domain.TicketMessage, error) {
	var msg domain.TicketMessage
	if err := row.Scan(
		&msg.ID,
		&msg.TicketID,
		&msg.SenderID,
		&msg.Content,
		&msg.IsInternal,
		&msg.ChannelID,
		&msg.Metadata,
		&msg.CreatedAt,
	); err != nil {
		return nil, err
	}
	if msg.Metadata == nil {
		msg.Metadata = domain.Metadata{}
	}
	return &msg, nil
}
