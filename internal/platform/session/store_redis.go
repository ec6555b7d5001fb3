package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	id "accounts/pkg/domain"
)

const noticeKeyPrefix = "session:notices:"

// RedisStore keeps each session's notices in a Redis list.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func noticeKey(sid id.SessionID) string {
	return noticeKeyPrefix + sid.String()
}

// Add appends notice and refreshes the list's expiry.
func (s *RedisStore) Add(ctx context.Context, sid id.SessionID, notice Notice) error {
	payload, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("encode notice: %w", err)
	}
	key := noticeKey(sid)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	return err
}

// Pop reads and deletes the list in one MULTI/EXEC so concurrent requests
// never see the same notice twice.
func (s *RedisStore) Pop(ctx context.Context, sid id.SessionID) ([]Notice, error) {
	key := noticeKey(sid)
	var items *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		items = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, err
	}

	raw := items.Val()
	if len(raw) == 0 {
		return nil, nil
	}
	notices := make([]Notice, 0, len(raw))
	for _, item := range raw {
		var n Notice
		if err := json.Unmarshal([]byte(item), &n); err != nil {
			return nil, fmt.Errorf("decode notice: %w", err)
		}
		notices = append(notices, n)
	}
	return notices, nil
}
