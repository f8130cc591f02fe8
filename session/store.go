package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrSessionNotFound reports a session ID with no backing record.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired reports a record past its deadline; the record is
	// removed as a side effect.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionCorrupt reports a blob that fails to decode.
	ErrSessionCorrupt = errors.New("session corrupt")
	// ErrRefreshHashMismatch reports a rotation attempt with a stale
	// refresh hash. The store destroys the session before returning it,
	// since a mismatch means the token was already spent.
	ErrRefreshHashMismatch = errors.New("refresh hash mismatch")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Store persists sessions in Redis. Each session lives under its own key
// with a TTL, and a per-user set indexes session IDs for logout-all.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore creates a session [Store] backed by the given Redis client.
// prefix namespaces the session keys.
func NewStore(redisClient redis.UniversalClient, prefix string) *Store {
	return &Store{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":s:" + sessionID
}

func (s *Store) userKey(userID string) string {
	return s.prefix + ":u:" + userID
}

// Save persists a session with the given TTL and indexes it under its
// user.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, ttl)
		pipe.SAdd(ctx, s.userKey(sess.UserID), sess.SessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Get retrieves a session by ID. Expired records are deleted on the way
// out.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	sess.SessionID = sessionID

	if time.Now().Unix() > sess.ExpiresAt {
		_ = s.deleteSessionAndIndex(ctx, sess.UserID, sessionID)
		return nil, ErrSessionExpired
	}

	return sess, nil
}

// Delete removes a session and its index entry. Deleting a missing
// session is not an error.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := Decode(data)
	if err != nil {
		// Unreadable blob: drop the key, the index entry is orphaned but
		// harmless and bounded by the user set.
		if delErr := s.redis.Del(ctx, s.key(sessionID)).Err(); delErr != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, delErr)
		}
		return nil
	}

	return s.deleteSessionAndIndex(ctx, sess.UserID, sessionID)
}

// DeleteAllForUser removes every indexed session for a user. A session
// created concurrently with this call can escape the sweep; it expires
// on its own TTL.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	userKey := s.userKey(userID)

	sessionIDs, err := s.redis.SMembers(ctx, userKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sessionID := range sessionIDs {
			pipe.Del(ctx, s.key(sessionID))
		}
		pipe.Del(ctx, userKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// ActiveSessionIDs returns the indexed session IDs for a user.
func (s *Store) ActiveSessionIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return ids, nil
}

// RotateRefreshHash atomically swaps the session's refresh hash from
// providedHash to nextHash under an optimistic WATCH transaction,
// preserving the remaining TTL. A hash mismatch means the presented
// refresh token was already rotated away, so the session is destroyed
// before ErrRefreshHashMismatch is returned.
func (s *Store) RotateRefreshHash(
	ctx context.Context,
	sessionID string,
	providedHash [32]byte,
	nextHash [32]byte,
) (*Session, error) {
	const maxRetries = 4
	key := s.key(sessionID)

	for i := 0; i < maxRetries; i++ {
		var rotated *Session
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}

			sess, err := Decode(data)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
			}
			sess.SessionID = sessionID

			if time.Now().Unix() > sess.ExpiresAt {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.SRem(ctx, s.userKey(sess.UserID), sessionID)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrSessionExpired
			}

			if sess.RefreshHash != providedHash {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.SRem(ctx, s.userKey(sess.UserID), sessionID)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrRefreshHashMismatch
			}

			ttl := time.Until(time.Unix(sess.ExpiresAt, 0))
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
					pipe.Del(ctx, key)
					pipe.SRem(ctx, s.userKey(sess.UserID), sessionID)
					return nil
				})
				if err != nil {
					return err
				}
				return ErrSessionExpired
			}

			sess.RefreshHash = nextHash
			updated, err := Encode(sess)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			if err != nil {
				return err
			}
			rotated = sess
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrSessionNotFound
			}
			if errors.Is(err, ErrSessionExpired) ||
				errors.Is(err, ErrRefreshHashMismatch) ||
				errors.Is(err, ErrSessionCorrupt) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		return rotated, nil
	}

	return nil, ErrSessionNotFound
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *Store) deleteSessionAndIndex(ctx context.Context, userID, sessionID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.SRem(ctx, s.userKey(userID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
