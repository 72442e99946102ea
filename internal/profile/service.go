package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/domain"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/errors"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/event"
)

const (
	DefaultLevelReward = 50
	XPPerSessionMinute = 10
)

const (
	SourceDirect  = "direct"
	SourceSession = "session"
	SourceQuest   = "quest"
	SourceLevel   = "level"
)

// Store persists profiles. Implementations return a CodeNotFound error when a
// profile that must exist does not.
type Store interface {
	GetProfile(ctx context.Context, userID string) (domain.Profile, error)
	// EnsureProfile creates the default profile when absent and returns the stored one.
	EnsureProfile(ctx context.Context, userID string) (domain.Profile, error)
	// AdvanceLevel adds one level and reward XP in a single atomic step.
	AdvanceLevel(ctx context.Context, userID string, reward int) (domain.Profile, error)
	// LoseLife atomically decrements lives, floored at 0. An absent profile starts at MaxLives.
	LoseLife(ctx context.Context, userID string) (domain.Profile, error)
}

// Ledger adds XP atomically with respect to concurrent additions for the same user.
type Ledger interface {
	AddXP(ctx context.Context, userID string, amount int) (domain.XPResult, error)
}

// History records which questions a user has already been shown.
type History interface {
	RecordAnswered(ctx context.Context, userID string, questionIDs []string) error
}

type Config struct {
	Store    Store
	Ledger   Ledger
	History  History
	EventBus *event.Bus

	// LevelReward is the XP granted by CompleteLevel when the request carries none.
	LevelReward int
	// AutoProvision lets CompleteLevel create a missing profile instead of failing.
	AutoProvision bool
}

type Service struct {
	store   Store
	ledger  Ledger
	history History
	eb      *event.Bus

	levelReward   int
	autoProvision bool
}

func NewService(c Config) *Service {
	reward := c.LevelReward
	if reward <= 0 {
		reward = DefaultLevelReward
	}

	return &Service{
		store:         c.Store,
		ledger:        c.Ledger,
		history:       c.History,
		eb:            c.EventBus,
		levelReward:   reward,
		autoProvision: c.AutoProvision,
	}
}

// GetProfile returns the user's profile, creating the default one on first access.
func (s *Service) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, errors.CodeNotFound) {
		p, err = s.store.EnsureProfile(ctx, userID)
		if err == nil {
			slog.InfoContext(ctx, "profile: created default profile", "user_id", userID)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}

	return &p, nil
}

// EnsureProfile creates the default profile if the user has none.
func (s *Service) EnsureProfile(ctx context.Context, userID string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}

	if _, err := s.store.EnsureProfile(ctx, userID); err != nil {
		return fmt.Errorf("ensure profile: %w", err)
	}

	return nil
}

type AddXPRequest struct {
	UserID string
	Amount int
}

// AddXP adds experience through the ledger and reports whether the user leveled up.
func (s *Service) AddXP(ctx context.Context, req AddXPRequest) (*domain.XPResult, error) {
	return s.addXP(ctx, req.UserID, req.Amount, SourceDirect)
}

type CompleteSessionRequest struct {
	UserID  string
	Minutes int
}

type CompleteSessionResponse struct {
	domain.XPResult
	XPEarned int
}

// CompleteSession grants XPPerSessionMinute XP for every minute of a focus session.
func (s *Service) CompleteSession(ctx context.Context, req CompleteSessionRequest) (*CompleteSessionResponse, error) {
	if req.Minutes <= 0 {
		return nil, errors.InvalidArgument("minutes must be a positive integer")
	}

	earned := req.Minutes * XPPerSessionMinute
	res, err := s.addXP(ctx, req.UserID, earned, SourceSession)
	if err != nil {
		return nil, err
	}

	return &CompleteSessionResponse{XPResult: *res, XPEarned: earned}, nil
}

type CompleteQuestRequest struct {
	UserID string
	Amount int
}

func (s *Service) CompleteQuest(ctx context.Context, req CompleteQuestRequest) (*domain.XPResult, error) {
	return s.addXP(ctx, req.UserID, req.Amount, SourceQuest)
}

func (s *Service) addXP(ctx context.Context, userID string, amount int, source string) (*domain.XPResult, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, errors.InvalidArgument("xp_amount must be a positive integer")
	}

	res, err := s.ledger.AddXP(ctx, userID, amount)
	if err != nil {
		return nil, fmt.Errorf("add xp: %w", err)
	}
	res.UserID = userID

	s.eb.Publish(ctx, domain.EventXPAwarded{UserID: userID, Amount: amount, Source: source})
	if res.LeveledUp {
		s.eb.Publish(ctx, domain.EventLeveledUp{UserID: userID, Level: res.NewLevel, XP: res.NewXP})
	}

	return &res, nil
}

type CompleteLevelRequest struct {
	UserID string
	// XPReward defaults to the configured level reward when nil.
	XPReward    *int
	QuestionIDs []string
}

// CompleteLevel records the answered questions and advances the profile by exactly one level.
func (s *Service) CompleteLevel(ctx context.Context, req CompleteLevelRequest) (*domain.Profile, error) {
	if err := validateUserID(req.UserID); err != nil {
		return nil, err
	}

	reward := s.levelReward
	if req.XPReward != nil {
		reward = *req.XPReward
	}
	if reward < 0 {
		return nil, errors.InvalidArgument("xp_reward must not be negative")
	}

	s.recordHistory(ctx, req.UserID, req.QuestionIDs)

	if s.autoProvision {
		if _, err := s.store.EnsureProfile(ctx, req.UserID); err != nil {
			return nil, fmt.Errorf("complete level: ensure profile: %w", err)
		}
	}

	p, err := s.store.AdvanceLevel(ctx, req.UserID, reward)
	if errors.Is(err, errors.CodeNotFound) {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("profile not found"),
			errors.WithCause(err),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("complete level: %w", err)
	}

	if reward > 0 {
		s.eb.Publish(ctx, domain.EventXPAwarded{UserID: req.UserID, Amount: reward, Source: SourceLevel})
	}
	s.eb.Publish(ctx, domain.EventLeveledUp{UserID: req.UserID, Level: p.Level, XP: p.XP})

	return &p, nil
}

// recordHistory is best-effort: a failed insert must not block level completion.
func (s *Service) recordHistory(ctx context.Context, userID string, questionIDs []string) {
	ids := make([]string, 0, len(questionIDs))
	for _, id := range questionIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 || s.history == nil {
		return
	}

	if err := s.history.RecordAnswered(ctx, userID, ids); err != nil {
		slog.WarnContext(ctx, "profile: record answered questions failed",
			"user_id", userID,
			"count", len(ids),
			"error", err,
		)
	}
}

// LoseLife takes one life from the user, never going below zero.
func (s *Service) LoseLife(ctx context.Context, userID string) (*domain.Profile, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	p, err := s.store.LoseLife(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lose life: %w", err)
	}

	s.eb.Publish(ctx, domain.EventLifeLost{UserID: userID, Lives: p.Lives})

	return &p, nil
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return errors.InvalidArgument("user_id is required")
	}
	return nil
}
