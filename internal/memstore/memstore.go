// Package memstore is an in-process backend for every storage interface of the
// service. A single mutex serializes all operations, which makes each of them atomic.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/domain"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/errors"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/profile"
)

type Store struct {
	mu sync.Mutex

	perLevel  int
	now       func() time.Time
	profiles  map[string]domain.Profile
	queue     map[string]domain.QueueEntry
	questions []domain.Question
	answered  map[string]map[string]struct{}
}

type Option func(*Store)

// WithXPPerLevel sets the XP span of a level used by AddXP.
func WithXPPerLevel(n int) Option {
	return func(s *Store) { s.perLevel = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func New(opts ...Option) *Store {
	s := &Store{
		perLevel: profile.DefaultXPPerLevel,
		now:      time.Now,
		profiles: make(map[string]domain.Profile),
		queue:    make(map[string]domain.QueueEntry),
		answered: make(map[string]map[string]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Store) GetProfile(_ context.Context, userID string) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{}, errors.New(errors.CodeNotFound, errors.WithMessagef("profile not found: user=%s", userID))
	}

	return p, nil
}

func (s *Store) EnsureProfile(_ context.Context, userID string) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ensure(userID), nil
}

func (s *Store) ensure(userID string) domain.Profile {
	p, ok := s.profiles[userID]
	if !ok {
		p = domain.NewProfile(userID)
		s.profiles[userID] = p
	}
	return p
}

func (s *Store) AdvanceLevel(_ context.Context, userID string, reward int) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return domain.Profile{}, errors.New(errors.CodeNotFound, errors.WithMessagef("profile not found: user=%s", userID))
	}

	p.Level++
	p.XP += reward
	s.profiles[userID] = p

	return p, nil
}

func (s *Store) LoseLife(_ context.Context, userID string) (domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.ensure(userID)
	p.Lives = max(p.Lives-1, 0)
	s.profiles[userID] = p

	return p, nil
}

// AddXP implements the XP ledger, creating the profile on first use.
func (s *Store) AddXP(_ context.Context, userID string, amount int) (domain.XPResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.ensure(userID)
	old := p.Level
	p.XP += amount
	p.Level = profile.LevelForXP(p.Level, p.XP, s.perLevel)
	s.profiles[userID] = p

	return domain.XPResult{
		UserID:    userID,
		NewLevel:  p.Level,
		NewXP:     p.XP,
		LeveledUp: p.Level > old,
	}, nil
}

func (s *Store) Enqueue(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queue[userID]; ok {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("already queued: user=%s", userID))
	}

	s.queue[userID] = domain.QueueEntry{
		UserID:   userID,
		Status:   domain.QueueStatusWaiting,
		JoinedAt: s.now(),
	}

	return nil
}

func (s *Store) Status(_ context.Context, userID string) (domain.QueueStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queue[userID]; !ok {
		return domain.QueueStatus{}, nil
	}

	entries := make([]domain.QueueEntry, 0, len(s.queue))
	for _, e := range s.queue {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].JoinedAt.Before(entries[j].JoinedAt)
	})

	pos := slices.IndexFunc(entries, func(e domain.QueueEntry) bool { return e.UserID == userID })

	return domain.QueueStatus{
		InQueue:  true,
		Position: pos + 1,
		Total:    len(entries),
	}, nil
}

// QueueLen reports how many users are waiting.
func (s *Store) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}

// AddQuestions appends reference questions. Ids must be unique.
func (s *Store) AddQuestions(qs ...domain.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.questions = append(s.questions, qs...)
}

// LoadQuestions reads a JSON array of {"id", "difficulty", "content"} objects.
func (s *Store) LoadQuestions(r io.Reader) (int, error) {
	var raw []struct {
		ID         string                 `json:"id"`
		Difficulty string                 `json:"difficulty"`
		Content    domain.QuestionContent `json:"content"`
	}

	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return 0, fmt.Errorf("decode questions: %w", err)
	}

	qs := make([]domain.Question, 0, len(raw))
	for _, q := range raw {
		if q.ID == "" {
			return 0, fmt.Errorf("decode questions: question without id")
		}
		qs = append(qs, domain.Question{ID: q.ID, Difficulty: q.Difficulty, Content: q.Content})
	}

	s.AddQuestions(qs...)
	return len(qs), nil
}

func (s *Store) AnsweredQuestionIDs(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.answered[userID]))
	for id := range s.answered[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids, nil
}

func (s *Store) UnseenQuestions(_ context.Context, difficulty string, exclude []string, limit int) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Question
	for _, q := range s.questions {
		if len(out) >= limit {
			break
		}
		if q.Difficulty != difficulty || slices.Contains(exclude, q.ID) {
			continue
		}
		out = append(out, q)
	}

	return out, nil
}

func (s *Store) RecordAnswered(_ context.Context, userID string, questionIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen, ok := s.answered[userID]
	if !ok {
		seen = make(map[string]struct{})
		s.answered[userID] = seen
	}

	for _, id := range questionIDs {
		seen[id] = struct{}{}
	}

	return nil
}
