package quiz

import (
	"context"
	"fmt"
	"math/rand"
	"slices"
	"strings"

	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/domain"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/errors"
)

const (
	DefaultPoolSize = 20
	DefaultPickSize = 5

	// SentinelQuestionID stands in for an empty exclusion list so NOT IN stays well-formed.
	SentinelQuestionID = "00000000-0000-0000-0000-000000000000"
)

// Store reads questions and the per-user answered history.
type Store interface {
	AnsweredQuestionIDs(ctx context.Context, userID string) ([]string, error)
	// UnseenQuestions returns at most limit questions of the difficulty whose id is not excluded.
	UnseenQuestions(ctx context.Context, difficulty string, exclude []string, limit int) ([]domain.Question, error)
	// RecordAnswered appends history rows, ignoring pairs already recorded.
	RecordAnswered(ctx context.Context, userID string, questionIDs []string) error
}

type Config struct {
	Store             Store
	PoolSize          int
	PickSize          int
	DefaultDifficulty string
	// Shuffle reorders questions in place. Defaults to a uniform shuffle.
	Shuffle func([]domain.Question)
}

type Service struct {
	store             Store
	poolSize          int
	pickSize          int
	defaultDifficulty string
	shuffle           func([]domain.Question)
}

func NewService(c Config) *Service {
	s := &Service{
		store:             c.Store,
		poolSize:          c.PoolSize,
		pickSize:          c.PickSize,
		defaultDifficulty: c.DefaultDifficulty,
		shuffle:           c.Shuffle,
	}

	if s.poolSize <= 0 {
		s.poolSize = DefaultPoolSize
	}
	if s.pickSize <= 0 {
		s.pickSize = DefaultPickSize
	}
	if s.defaultDifficulty == "" {
		s.defaultDifficulty = domain.DifficultyEasy
	}
	if s.shuffle == nil {
		s.shuffle = func(qs []domain.Question) {
			rand.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
		}
	}

	return s
}

type GetActivityRequest struct {
	UserID     string
	Difficulty string
}

// ErrNoNewQuestions is a soft failure: the user has seen every question of the tier.
var ErrNoNewQuestions = errors.New(errors.CodeNotFound, errors.WithMessagef("no new questions"))

// GetActivity picks a random handful of questions the user has not answered yet.
func (s *Service) GetActivity(ctx context.Context, req GetActivityRequest) ([]domain.Activity, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, errors.InvalidArgument("user_id is required")
	}

	difficulty := strings.TrimSpace(req.Difficulty)
	if difficulty == "" {
		difficulty = s.defaultDifficulty
	}

	answered, err := s.store.AnsweredQuestionIDs(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("get activity: answered questions: %w", err)
	}
	if len(answered) == 0 {
		answered = []string{SentinelQuestionID}
	}

	qs, err := s.store.UnseenQuestions(ctx, difficulty, answered, s.poolSize)
	if err != nil {
		return nil, fmt.Errorf("get activity: unseen questions: %w", err)
	}
	if len(qs) < 1 {
		return nil, ErrNoNewQuestions
	}

	s.shuffle(qs)
	qs = qs[:min(len(qs), s.pickSize)]

	out := make([]domain.Activity, 0, len(qs))
	for _, q := range qs {
		out = append(out, ToActivity(q))
	}

	return out, nil
}

// ToActivity reshapes a question for the client.
func ToActivity(q domain.Question) domain.Activity {
	return domain.Activity{
		ID:           q.ID,
		Text:         q.Content.Text,
		Options:      q.Content.Options,
		CorrectIndex: slices.Index(q.Content.Options, q.Content.Answer),
	}
}

// RecordAnswered appends the questions to the user's history.
func (s *Service) RecordAnswered(ctx context.Context, userID string, questionIDs []string) error {
	if len(questionIDs) == 0 {
		return nil
	}

	if err := s.store.RecordAnswered(ctx, userID, questionIDs); err != nil {
		return fmt.Errorf("record answered: %w", err)
	}

	return nil
}
