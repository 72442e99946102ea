package profile

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/domain"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/errors"
)

const insertDefaultProfileStmt = `INSERT INTO profiles (id, level, xp, lives) VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING;`

// PostgresStore keeps profiles in the "profiles" table.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	const stmt = `SELECT level, xp, lives FROM profiles WHERE id = $1;`

	p := domain.Profile{UserID: userID}
	err := s.db.QueryRow(ctx, stmt, userID).Scan(&p.Level, &p.XP, &p.Lives)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, errors.New(errors.CodeNotFound, errors.WithMessagef("profile not found: user=%s", userID))
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("select profile: %w", err)
	}

	return p, nil
}

// EnsureProfile inserts and reads back in two statements so that a row committed by a
// concurrent first access is visible to the read.
func (s *PostgresStore) EnsureProfile(ctx context.Context, userID string) (domain.Profile, error) {
	d := domain.NewProfile(userID)
	if _, err := s.db.Exec(ctx, insertDefaultProfileStmt, d.UserID, d.Level, d.XP, d.Lives); err != nil {
		return domain.Profile{}, fmt.Errorf("insert profile: %w", err)
	}

	return s.GetProfile(ctx, userID)
}

func (s *PostgresStore) AdvanceLevel(ctx context.Context, userID string, reward int) (domain.Profile, error) {
	const stmt = `
UPDATE profiles
SET level = level + 1, xp = xp + $2, updated_at = now()
WHERE id = $1
RETURNING level, xp, lives;`

	p := domain.Profile{UserID: userID}
	err := s.db.QueryRow(ctx, stmt, userID, reward).Scan(&p.Level, &p.XP, &p.Lives)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, errors.New(errors.CodeNotFound, errors.WithMessagef("profile not found: user=%s", userID))
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("advance level: %w", err)
	}

	return p, nil
}

func (s *PostgresStore) LoseLife(ctx context.Context, userID string) (domain.Profile, error) {
	const stmt = `
INSERT INTO profiles (id, level, xp, lives) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET lives = GREATEST(profiles.lives - 1, 0), updated_at = now()
RETURNING level, xp, lives;`

	d := domain.NewProfile(userID)
	p := domain.Profile{UserID: userID}
	err := s.db.QueryRow(ctx, stmt, d.UserID, d.Level, d.XP, d.Lives-1).Scan(&p.Level, &p.XP, &p.Lives)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("lose life: %w", err)
	}

	return p, nil
}

// RPCLedger delegates XP addition to the add_xp stored procedure, which owns atomicity and the level curve.
type RPCLedger struct {
	db *pgxpool.Pool
}

func NewRPCLedger(db *pgxpool.Pool) *RPCLedger {
	return &RPCLedger{db: db}
}

func (l *RPCLedger) AddXP(ctx context.Context, userID string, amount int) (domain.XPResult, error) {
	const stmt = `SELECT new_level, new_xp, leveled_up FROM add_xp($1, $2);`

	res := domain.XPResult{UserID: userID}
	err := l.db.QueryRow(ctx, stmt, userID, amount).Scan(&res.NewLevel, &res.NewXP, &res.LeveledUp)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.XPResult{}, fmt.Errorf("add_xp: returned no rows")
	}
	if err != nil {
		return domain.XPResult{}, fmt.Errorf("add_xp: %w", err)
	}

	return res, nil
}

// TxLedger computes XP and levels in-process inside a transaction holding the profile row lock.
type TxLedger struct {
	db       *pgxpool.Pool
	perLevel int
}

func NewTxLedger(db *pgxpool.Pool, xpPerLevel int) *TxLedger {
	return &TxLedger{db: db, perLevel: xpPerLevel}
}

func (l *TxLedger) AddXP(ctx context.Context, userID string, amount int) (res domain.XPResult, err error) {
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, tx.Rollback(ctx))
		}
	}()

	d := domain.NewProfile(userID)
	if _, err = tx.Exec(ctx, insertDefaultProfileStmt, d.UserID, d.Level, d.XP, d.Lives); err != nil {
		return res, fmt.Errorf("insert profile: %w", err)
	}

	var level, xp int
	if err = tx.QueryRow(ctx, `SELECT level, xp FROM profiles WHERE id = $1 FOR UPDATE;`, userID).Scan(&level, &xp); err != nil {
		return res, fmt.Errorf("lock profile: %w", err)
	}

	res = domain.XPResult{
		UserID: userID,
		NewXP:  xp + amount,
	}
	res.NewLevel = LevelForXP(level, res.NewXP, l.perLevel)
	res.LeveledUp = res.NewLevel > level

	const updStmt = `UPDATE profiles SET level = $2, xp = $3, updated_at = now() WHERE id = $1;`
	if _, err = tx.Exec(ctx, updStmt, userID, res.NewLevel, res.NewXP); err != nil {
		return res, fmt.Errorf("update profile: %w", err)
	}

	return res, tx.Commit(ctx)
}
