package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/deskline/support-desk/internal/domain"
)

type channelRepository struct {
	db DBTX
}

func (r *channelRepository) Create(ctx context.Context, channel *domain.Channel) error {
	raw, err := domain.MarshalConfig(channel.Config)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO channels (id, name, type, is_active, config, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err = r.db.Exec(ctx, query,
		channel.ID,
		channel.Name,
		string(channel.Type),
		channel.IsActive,
		raw,
		channel.CreatedAt,
		channel.UpdatedAt,
	)
	return translate(err)
}

func (r *channelRepository) Update(ctx context.Context, channel *domain.Channel) error {
	raw, err := domain.MarshalConfig(channel.Config)
	if err != nil {
		return err
	}
	const query = `UPDATE channels SET name=$1, is_active=$2, config=$3, updated_at=$4 WHERE id=$5`
	cmd, err := r.db.Exec(ctx, query, channel.Name, channel.IsActive, raw, channel.UpdatedAt, channel.ID)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *channelRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM channels WHERE id=$1`, id)
	if err != nil {
		return translate(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *channelRepository) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	const query = `SELECT id, name, type, is_active, config, created_at, updated_at FROM channels WHERE id=$1`
	channel, err := scanChannel(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return channel, nil
}

func (r *channelRepository) List(ctx context.Context) ([]domain.Channel, error) {
	const query = `SELECT id, name, type, is_active, config, created_at, updated_at FROM channels ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Channel
	for rows.Next() {
		channel, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *channel)
	}
	return result, rows.Err()
}

func scanChannel(row pgx.Row) (*domain.Channel, error) {
	var (
		channel     domain.Channel
		channelType string
		raw         []byte
	)
	if err := row.Scan(&channel.ID, &channel.Name, &channelType, &channel.IsActive, &raw, &channel.CreatedAt, &channel.UpdatedAt); err != nil {
		return nil, err
	}
	channel.Type = domain.ChannelType(channelType)
	cfg, err := domain.UnmarshalConfig(channel.Type, raw)
	if err != nil {
		return nil, err
	}
	channel.Config = cfg
	return &channel, nil
}
