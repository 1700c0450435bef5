package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type postgresStore struct {
	pool *pgxpool.Pool
	db   DBTX
}

// NewPostgresStore builds a Store backed by a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool, db: pool}
}

func (s *postgresStore) Tickets() TicketRepository         { return &ticketRepository{db: s.db} }
func (s *postgresStore) Messages() TicketMessageRepository { return &ticketMessageRepository{db: s.db} }
func (s *postgresStore) Relationships() RelationshipRepository {
	return &relationshipRepository{db: s.db}
}
func (s *postgresStore) Channels() ChannelRepository      { return &channelRepository{db: s.db} }
func (s *postgresStore) SLAPolicies() SLAPolicyRepository { return &slaPolicyRepository{db: s.db} }
func (s *postgresStore) History() TicketHistoryRepository { return &ticketHistoryRepository{db: s.db} }

func (s *postgresStore) WithinTx(ctx context.Context, fn func(Store) error) (err error) {
	if s.pool == nil {
		// already inside a transaction
		return fn(s)
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(&postgresStore{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const (
	uniqueViolation = "23505"
	// raised when a malformed id is compared against a UUID column
	invalidTextRepresentation = "22P02"
)

// translate maps driver errors onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return ErrDuplicate
		case invalidTextRepresentation:
			return ErrNotFound
		}
	}
	return err
}
