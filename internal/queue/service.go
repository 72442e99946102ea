package queue

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/domain"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/errors"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/event"
)

// Store keeps the waiting queue. Enqueue returns a CodeAlreadyExists error for a user
// who is already waiting; Status reports InQueue false for a user who is not.
type Store interface {
	Enqueue(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (domain.QueueStatus, error)
}

// Profiles provisions the default profile of a user joining the queue.
type Profiles interface {
	EnsureProfile(ctx context.Context, userID string) error
}

type Config struct {
	Store    Store
	Profiles Profiles
	EventBus *event.Bus
}

type Service struct {
	store    Store
	profiles Profiles
	eb       *event.Bus
}

func NewService(c Config) *Service {
	return &Service{
		store:    c.Store,
		profiles: c.Profiles,
		eb:       c.EventBus,
	}
}

type JoinResponse struct {
	// AlreadyQueued is set when the user was waiting before this call.
	AlreadyQueued bool
}

// Join puts the user in the waiting queue. Joining twice is not an error.
func (s *Service) Join(ctx context.Context, userID string) (*JoinResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.InvalidArgument("user_id is required")
	}

	if err := s.profiles.EnsureProfile(ctx, userID); err != nil {
		return nil, fmt.Errorf("join queue: %w", err)
	}

	err := s.store.Enqueue(ctx, userID)
	if errors.Is(err, errors.CodeAlreadyExists) {
		slog.InfoContext(ctx, "queue: user already queued", "user_id", userID)
		return &JoinResponse{AlreadyQueued: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("join queue: %w", err)
	}

	s.eb.Publish(ctx, domain.EventQueueJoined{UserID: userID})

	return &JoinResponse{}, nil
}

// Status reports the user's 1-based position and the number of waiting users.
func (s *Service) Status(ctx context.Context, userID string) (*domain.QueueStatus, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.InvalidArgument("user_id is required")
	}

	st, err := s.store.Status(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("queue status: %w", err)
	}

	return &st, nil
}
