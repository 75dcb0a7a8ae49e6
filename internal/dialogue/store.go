package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"bankbot/internal/common/errors"
)

// Store persists dialogue sessions between turns.
type Store interface {
	// Get loads a session, or returns (nil, nil) when none exists.
	Get(ctx context.Context, sessionID string) (*Session, error)
	// Save writes a session and refreshes its TTL.
	Save(ctx context.Context, session *Session) error
	// Delete removes a session after a terminal turn.
	Delete(ctx context.Context, sessionID string) error
}

const sessionKeyPrefix = "dialogue:session:"

// RedisStore keeps each session as a JSON blob under a TTL, so abandoned
// conversations expire on their own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewSessionStoreFailedError(fmt.Errorf("failed to load session %s: %w", sessionID, err))
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, errors.NewSessionStoreFailedError(fmt.Errorf("corrupt session record %s: %w", sessionID, err))
	}
	return &session, nil
}

func (s *RedisStore) Save(ctx context.Context, session *Session) error {
	session.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(session)
	if err != nil {
		return errors.NewSessionStoreFailedError(fmt.Errorf("failed to encode session: %w", err))
	}
	if err := s.client.Set(ctx, sessionKeyPrefix+session.SessionID, data, s.ttl).Err(); err != nil {
		return errors.NewSessionStoreFailedError(fmt.Errorf("failed to save session %s: %w", session.SessionID, err))
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+sessionID).Err(); err != nil {
		return errors.NewSessionStoreFailedError(fmt.Errorf("failed to delete session %s: %w", sessionID, err))
	}
	return nil
}

// MemoryStore is an in-process Store for tests and single-node setups.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	copied := *session
	copied.Slots = append([]SlotValue(nil), session.Slots...)
	return &copied, nil
}

func (s *MemoryStore) Save(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.UpdatedAt = time.Now().UTC()
	copied := *session
	copied.Slots = append([]SlotValue(nil), session.Slots...)
	s.sessions[session.SessionID] = &copied
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
