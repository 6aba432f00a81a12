// Package redis provides an auth.Storage backed by Redis.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/habit-tracker/go-auth"
	"github.com/redis/go-redis/v9"
)

var _ auth.Storage = (*Store)(nil)

// Store keeps values as plain Redis strings.
type Store struct {
	redis  redis.Cmdable
	prefix string
	ttl    time.Duration
}

// Option customizes a Store.
type Option func(*Store)

// WithPrefix prepends prefix to every key.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithTTL expires values ttl after they were last written. Zero keeps them
// until removed.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// New returns a Store using client.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{redis: client}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) key(key string) string {
	return s.prefix + key
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.redis.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	return s.redis.Set(ctx, s.key(key), value, s.ttl).Err()
}

// RemoveMany deletes keys in a single DEL. Missing keys are ignored.
func (s *Store) RemoveMany(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = s.key(key)
	}
	return s.redis.Del(ctx, prefixed...).Err()
}
