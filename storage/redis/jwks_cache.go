// Package redisstore shares fetched JWKS documents across gateway instances,
// so a key-set fetch done by one instance spares the rest. It satisfies the
// resolver's DocCache interface.
package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type JWKSCache struct {
	rdb   *redis.Client
	keyNS string
	ttl   time.Duration
}

func NewJWKSCache(rdb *redis.Client, keyPrefix string, ttl time.Duration) *JWKSCache {
	if keyPrefix == "" {
		keyPrefix = "jwtgate:jwks:"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &JWKSCache{rdb: rdb, keyNS: keyPrefix, ttl: ttl}
}

func (c *JWKSCache) key(url string) string { return c.keyNS + url }

// Get returns the cached JWKS document for the source URL, ok=false on miss.
func (c *JWKSCache) Get(ctx context.Context, url string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, c.key(url)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Put stores a freshly fetched JWKS document under the cache TTL.
func (c *JWKSCache) Put(ctx context.Context, url string, doc []byte) error {
	return c.rdb.Set(ctx, c.key(url), doc, c.ttl).Err()
}
