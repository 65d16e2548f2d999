package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by Redis. It uses a simple key structure:
//
//	<prefix>cp:<session_id>/<exchange_id> => JSON-encoded checkpoint
//
// An optional TTL bounds how long an unconsumed checkpoint lingers; zero
// means no expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a RedisStore.
// prefix is optional but recommended (e.g. "agenda:").
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "agenda:"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisStore) key(sessionID, exchangeID string) string {
	return s.prefix + "cp:" + storageKey(sessionID, exchangeID)
}

func (s *RedisStore) Save(ctx context.Context, sessionID, exchangeID string, cp map[string]any) error {
	data, err := encode(cp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(sessionID, exchangeID), data, s.ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, sessionID, exchangeID string) (map[string]any, error) {
	data, err := s.client.Get(ctx, s.key(sessionID, exchangeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(data)
}

func (s *RedisStore) Take(ctx context.Context, sessionID, exchangeID string) (map[string]any, error) {
	data, err := s.client.GetDel(ctx, s.key(sessionID, exchangeID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(data)
}

func (s *RedisStore) Delete(ctx context.Context, sessionID, exchangeID string) error {
	return s.client.Del(ctx, s.key(sessionID, exchangeID)).Err()
}
