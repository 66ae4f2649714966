package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const scoreKey = "poll:scores"

// ScoreStore retains scores by display name in a Redis hash so a student who
// reconnects under the same name resumes their total. The hash TTL is
// refreshed on every write; once the classroom goes quiet the scores age out.
type ScoreStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewScoreStore(client *redis.Client, ttl time.Duration) *ScoreStore {
	return &ScoreStore{client: client, ttl: ttl}
}

func (s *ScoreStore) Load(ctx context.Context, displayName string) (int, bool, error) {
	raw, err := s.client.HGet(ctx, scoreKey, displayName).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	score, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, nil
	}
	return score, true, nil
}

func (s *ScoreStore) Save(ctx context.Context, displayName string, score int) error {
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, scoreKey, displayName, score)
	if s.ttl > 0 {
		pipe.Expire(ctx, scoreKey, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
