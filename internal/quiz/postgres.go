package quiz

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/domain"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// PostgresStore reads the "questions" table and the "answered_history" table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) AnsweredQuestionIDs(ctx context.Context, userID string) ([]string, error) {
	const stmt = `SELECT question_id FROM answered_history WHERE user_id = $1;`

	rows, err := s.db.Query(ctx, stmt, userID)
	if err != nil {
		return nil, fmt.Errorf("select answered history: %w", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect answered history: %w", err)
	}

	return ids, nil
}

func (s *PostgresStore) UnseenQuestions(ctx context.Context, difficulty string, exclude []string, limit int) ([]domain.Question, error) {
	stmt, args, err := unseenQuestionsQuery(difficulty, exclude, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build unseen questions query: %w", err)
	}

	rows, err := s.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}

	qs, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Question, error) {
		var q domain.Question
		if err := r.Scan(&q.ID, &q.Difficulty, &q.Content); err != nil {
			return domain.Question{}, err
		}
		return q, nil
	})
	if err != nil {
		return nil, fmt.Errorf("collect questions: %w", err)
	}

	return qs, nil
}

func unseenQuestionsQuery(difficulty string, exclude []string, limit int) squirrel.SelectBuilder {
	return psql.Select("id", "difficulty", "content").
		From("questions").
		Where(squirrel.Eq{"difficulty": difficulty}).
		Where(squirrel.NotEq{"id": exclude}).
		Limit(uint64(limit))
}

func (s *PostgresStore) RecordAnswered(ctx context.Context, userID string, questionIDs []string) error {
	if len(questionIDs) == 0 {
		return nil
	}

	stmt, args, err := recordAnsweredQuery(userID, questionIDs).ToSql()
	if err != nil {
		return fmt.Errorf("build history insert: %w", err)
	}

	if _, err := s.db.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert answered history: %w", err)
	}

	return nil
}

func recordAnsweredQuery(userID string, questionIDs []string) squirrel.InsertBuilder {
	q := psql.Insert("answered_history").Columns("user_id", "question_id")
	for _, id := range questionIDs {
		q = q.Values(userID, id)
	}
	return q.Suffix("ON CONFLICT (user_id, question_id) DO NOTHING")
}
