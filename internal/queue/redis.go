package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/domain"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/errors"
)

// RedisStore keeps the queue in a sorted set scored by join time in milliseconds,
// so rank order is join order.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisStore(r redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		redis:  r,
		prefix: prefix,
		now:    time.Now,
	}
}

func (s *RedisStore) Enqueue(ctx context.Context, userID string) error {
	added, err := s.redis.ZAddNX(ctx, s.queueKey(), redis.Z{
		Score:  float64(s.now().UnixMilli()),
		Member: userID,
	}).Result()
	if err != nil {
		return fmt.Errorf("zadd: %w", err)
	}

	if added == 0 {
		return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("already queued: user=%s", userID))
	}

	return nil
}

func (s *RedisStore) Status(ctx context.Context, userID string) (domain.QueueStatus, error) {
	pipe := s.redis.Pipeline()
	rank := pipe.ZRank(ctx, s.queueKey(), userID)
	total := pipe.ZCard(ctx, s.queueKey())

	if _, err := pipe.Exec(ctx); err != nil && !stderrors.Is(err, redis.Nil) {
		return domain.QueueStatus{}, fmt.Errorf("queue status: %w", err)
	}

	r, err := rank.Result()
	if stderrors.Is(err, redis.Nil) {
		return domain.QueueStatus{}, nil
	}
	if err != nil {
		return domain.QueueStatus{}, fmt.Errorf("zrank: %w", err)
	}

	return domain.QueueStatus{
		InQueue:  true,
		Position: int(r) + 1,
		Total:    int(total.Val()),
	}, nil
}

func (s *RedisStore) queueKey() string {
	return fmt.Sprintf("%s:queue:%s", s.prefix, domain.QueueStatusWaiting)
}
