package cachestore

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// SessionKV is the session-scoped string key-value scope. It lives purely in
// memory, so it vanishes with the process; entries additionally expire after
// the configured TTL.
type SessionKV struct {
	cache *expirable.LRU[string, string]
}

func NewSessionKV(size int, ttl time.Duration) *SessionKV {
	if size <= 0 {
		size = 256
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionKV{
		cache: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

func (s *SessionKV) Name() string {
	return "session_kv"
}

func (s *SessionKV) Keys(ctx context.Context) ([]string, error) {
	return s.cache.Keys(), nil
}

func (s *SessionKV) DeleteKey(ctx context.Context, key string) error {
	s.cache.Remove(key)
	return nil
}

func (s *SessionKV) Set(ctx context.Context, key, value string) error {
	s.cache.Add(key, value)
	return nil
}

func (s *SessionKV) Get(ctx context.Context, key string) (string, bool, error) {
	value, ok := s.cache.Get(key)
	return value, ok, nil
}
