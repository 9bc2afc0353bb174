// Package session keeps the per-shopper discount state between requests.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"templatestore/internal/domain"
)

const DefaultTTL = 24 * time.Hour

// RedisStore holds one SessionDiscountState per session id.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

func NewRedisStore(client *redis.Client, ttl time.Duration, logger *log.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

func key(sessionID string) string {
	return "discount:session:" + sessionID
}

// Get returns the stored state, or the zero state when the session has none.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (domain.SessionDiscountState, error) {
	var state domain.SessionDiscountState
	if sessionID == "" {
		return state, nil
	}
	raw, err := s.client.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return state, nil
	}
	if err != nil {
		return state, fmt.Errorf("get session state: %w", err)
	}
	if err := json.Unmarshal(raw, &state); err != nil {
		s.logger.Printf("session: drop unreadable state session=%s error=%v", sessionID, err)
		return domain.SessionDiscountState{}, nil
	}
	return state, nil
}

// Save replaces the state and refreshes its TTL. A zero state clears it.
func (s *RedisStore) Save(ctx context.Context, sessionID string, state domain.SessionDiscountState) error {
	if sessionID == "" {
		return domain.Invalid("session", "required")
	}
	if state.IsZero() {
		return s.Clear(ctx, sessionID)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	if err := s.client.Set(ctx, key(sessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("set session state: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear session state: %w", err)
	}
	return nil
}

// Ping reports whether redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
