package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"stockpilot/internal/application/port"
)

// CacheStore backs the result cache with redis, using native key expiry
// instead of a stored timestamp.
type CacheStore struct {
	rdb    *redis.Client
	prefix string
}

func NewCacheStore(rdb *redis.Client, prefix string) *CacheStore {
	if prefix == "" {
		prefix = "stockpilot:cache"
	}
	return &CacheStore{rdb: rdb, prefix: prefix}
}

func (s *CacheStore) key(k string) string { return s.prefix + ":" + k }

func (s *CacheStore) CacheGet(ctx context.Context, key string) ([]byte, bool, error) {
	payload, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (s *CacheStore) CachePut(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.key(key), payload, ttl).Err()
}

var _ port.CacheStore = (*CacheStore)(nil)
