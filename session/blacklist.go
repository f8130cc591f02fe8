package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist revokes access tokens before their natural expiry. Entries
// are keyed by jti and carry a TTL matching the token's remaining
// lifetime, so the set cleans itself up.
type Blacklist struct {
	redis  redis.UniversalClient
	prefix string
}

// NewBlacklist creates a [Blacklist] backed by the given Redis client.
func NewBlacklist(redisClient redis.UniversalClient, prefix string) *Blacklist {
	return &Blacklist{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (b *Blacklist) key(jti string) string {
	return b.prefix + ":bl:" + jti
}

// Add revokes the token with the given jti until its expiry. Tokens
// already past expiry need no entry.
func (b *Blacklist) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := b.redis.Set(ctx, b.key(jti), 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Contains reports whether the jti has been revoked.
func (b *Blacklist) Contains(ctx context.Context, jti string) (bool, error) {
	err := b.redis.Get(ctx, b.key(jti)).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return true, nil
}
