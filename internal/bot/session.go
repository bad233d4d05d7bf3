package bot

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// State is the conversation state of one chat.
type State string

// Chat states.
const (
	StateIdle          State = ""
	StateAwaitingPromo State = "awaiting_promo"
)

// DefaultSessionTTL bounds how long a chat stays in a non-idle state.
const DefaultSessionTTL = 10 * time.Minute

// SessionStore keeps per-chat conversation state.
type SessionStore interface {
	Get(ctx context.Context, chatID int64) (State, error)
	Set(ctx context.Context, chatID int64, state State) error
	Clear(ctx context.Context, chatID int64) error
}

type memoryEntry struct {
	state   State
	expires time.Time
}

// MemorySessionStore is a SessionStore for single-instance deployments.
type MemorySessionStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[int64]memoryEntry
	now   func() time.Time
}

// NewMemorySessionStore creates an empty in-process store.
func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemorySessionStore{ttl: ttl, items: make(map[int64]memoryEntry), now: time.Now}
}

// Get returns the chat state, idle when missing or expired.
func (s *MemorySessionStore) Get(_ context.Context, chatID int64) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[chatID]
	if !ok {
		return StateIdle, nil
	}
	if s.now().After(entry.expires) {
		delete(s.items, chatID)
		return StateIdle, nil
	}
	return entry.state, nil
}

// Set stores the chat state and restarts its TTL.
func (s *MemorySessionStore) Set(_ context.Context, chatID int64, state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state == StateIdle {
		delete(s.items, chatID)
		return nil
	}
	s.items[chatID] = memoryEntry{state: state, expires: s.now().Add(s.ttl)}
	return nil
}

// Clear resets the chat to idle.
func (s *MemorySessionStore) Clear(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, chatID)
	return nil
}

// redisKeyPrefix namespaces session keys.
const redisKeyPrefix = "bgcards:bot:session:"

// RedisSessionStore is a SessionStore shared by every bot replica.
type RedisSessionStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisSessionStore wraps a redis client.
func NewRedisSessionStore(client redis.UniversalClient, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(chatID int64) string {
	return redisKeyPrefix + strconv.FormatInt(chatID, 10)
}

// Get returns the chat state, idle when the key is missing.
func (s *RedisSessionStore) Get(ctx context.Context, chatID int64) (State, error) {
	value, errGet := s.client.Get(ctx, sessionKey(chatID)).Result()
	if errors.Is(errGet, redis.Nil) {
		return StateIdle, nil
	}
	if errGet != nil {
		return StateIdle, errGet
	}
	return State(value), nil
}

// Set stores the chat state with the configured TTL.
func (s *RedisSessionStore) Set(ctx context.Context, chatID int64, state State) error {
	if state == StateIdle {
		return s.Clear(ctx, chatID)
	}
	return s.client.Set(ctx, sessionKey(chatID), string(state), s.ttl).Err()
}

// Clear deletes the chat state.
func (s *RedisSessionStore) Clear(ctx context.Context, chatID int64) error {
	return s.client.Del(ctx, sessionKey(chatID)).Err()
}
