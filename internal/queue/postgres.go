package queue

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/domain"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/errors"
)

const codeUniqueViolation = "23505"

// PostgresStore keeps the queue in the "queue" table and ranks it with the
// get_queue_position stored procedure.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Enqueue(ctx context.Context, userID string) error {
	const stmt = `INSERT INTO queue (user_id, status) VALUES ($1, $2);`

	_, err := s.db.Exec(ctx, stmt, userID, domain.QueueStatusWaiting)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("already queued: user=%s", userID),
			errors.WithCause(err),
		)
	}

	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}

	return nil
}

func (s *PostgresStore) Status(ctx context.Context, userID string) (domain.QueueStatus, error) {
	const stmt = `SELECT position, total FROM get_queue_position($1);`

	var st domain.QueueStatus
	err := s.db.QueryRow(ctx, stmt, userID).Scan(&st.Position, &st.Total)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.QueueStatus{}, nil
	}
	if err != nil {
		return domain.QueueStatus{}, fmt.Errorf("get_queue_position: %w", err)
	}

	st.InQueue = true
	return st, nil
}
