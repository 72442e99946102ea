package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/domain"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/event"
)

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	LeveledUp struct {
		UserID string `json:"user_id"`
		Level  int    `json:"level"`
		XP     int    `json:"xp"`
	}

	LifeLost struct {
		UserID string `json:"user_id"`
		Lives  int    `json:"lives"`
	}

	QueueJoined struct {
		UserID string `json:"user_id"`
	}
)

func (a *API) subscribeNotifications(eb *event.Bus) {
	eb.Subscribe(domain.EventNameLeveledUp, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventLeveledUp)
		return a.publishNotification(ctx, ev.UserID, ev.Name(), LeveledUp{UserID: ev.UserID, Level: ev.Level, XP: ev.XP})
	})

	eb.Subscribe(domain.EventNameLifeLost, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventLifeLost)
		return a.publishNotification(ctx, ev.UserID, ev.Name(), LifeLost{UserID: ev.UserID, Lives: ev.Lives})
	})

	eb.Subscribe(domain.EventNameQueueJoined, func(ctx context.Context, e event.Event) error {
		ev := e.(domain.EventQueueJoined)
		return a.publishNotification(ctx, ev.UserID, ev.Name(), QueueJoined{UserID: ev.UserID})
	})
}

// UserChannel is the pub/sub channel carrying a user's notifications.
func UserChannel(prefix, user string) string {
	return fmt.Sprintf("%s:user:%s", prefix, user)
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	if err := a.redis.Publish(ctx, UserChannel(a.prefix, user), b).Err(); err != nil {
		return fmt.Errorf("pubsub: publish %s: %w", event, err)
	}

	return nil
}
