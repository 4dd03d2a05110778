package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/sunsavvy/internal/solar"
)

const sessionKeyPrefix = "sunsavvy:session:"

// RedisSessionStore keeps estimation sessions as JSON values with a TTL that
// is refreshed on every write. Expiry is left to Redis.
type RedisSessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisSessionStore(client redis.UniversalClient, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(owner string) string {
	return sessionKeyPrefix + owner
}

func (s *RedisSessionStore) Load(ctx context.Context, owner string) (*solar.Session, error) {
	payload, err := s.client.Get(ctx, sessionKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, solar.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var sess solar.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

func (s *RedisSessionStore) Save(ctx context.Context, sess *solar.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.Owner), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

// Take uses GETDEL, so concurrent finalizations see the session at most once.
func (s *RedisSessionStore) Take(ctx context.Context, owner string) (*solar.Session, error) {
	payload, err := s.client.GetDel(ctx, sessionKey(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, solar.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis getdel session: %w", err)
	}

	var sess solar.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Ping reports whether Redis is reachable.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
