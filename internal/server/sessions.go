package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/memvra/dtwin/internal/twin"
)

// ErrSessionNotFound is returned for unknown or expired session ids.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps conversation state between requests.
type SessionStore interface {
	Create(ctx context.Context) (string, twin.SessionState, error)
	Get(ctx context.Context, id string) (twin.SessionState, error)
	Save(ctx context.Context, id string, st twin.SessionState) error
	Delete(ctx context.Context, id string) error
}

// MemorySessionStore holds sessions in process memory.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]twin.SessionState
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]twin.SessionState)}
}

func (m *MemorySessionStore) Create(_ context.Context) (string, twin.SessionState, error) {
	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = twin.SessionState{}
	m.mu.Unlock()
	return id, twin.SessionState{}, nil
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (twin.SessionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.sessions[id]
	if !ok {
		return twin.SessionState{}, ErrSessionNotFound
	}
	return st, nil
}

func (m *MemorySessionStore) Save(_ context.Context, id string, st twin.SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	m.sessions[id] = st
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	return nil
}

// RedisSessionStore keeps sessions as JSON under dtwin:session:<id>. Every
// write refreshes the TTL.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore creates a store on client.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return fmt.Sprintf("dtwin:session:%s", id)
}

func (r *RedisSessionStore) Create(ctx context.Context) (string, twin.SessionState, error) {
	id := uuid.NewString()
	if err := r.put(ctx, id, twin.SessionState{}); err != nil {
		return "", twin.SessionState{}, err
	}
	return id, twin.SessionState{}, nil
}

func (r *RedisSessionStore) Get(ctx context.Context, id string) (twin.SessionState, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return twin.SessionState{}, ErrSessionNotFound
	}
	if err != nil {
		return twin.SessionState{}, fmt.Errorf("failed to get session from Redis: %w", err)
	}
	var st twin.SessionState
	if err := json.Unmarshal(data, &st); err != nil {
		return twin.SessionState{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return st, nil
}

func (r *RedisSessionStore) Save(ctx context.Context, id string, st twin.SessionState) error {
	n, err := r.client.Exists(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check session in Redis: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return r.put(ctx, id, st)
}

func (r *RedisSessionStore) Delete(ctx context.Context, id string) error {
	n, err := r.client.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session from Redis: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *RedisSessionStore) put(ctx context.Context, id string, st twin.SessionState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(id), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session in Redis: %w", err)
	}
	return nil
}

// sessionLocks serialises turns within one session.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *sessionLocks) lock(id string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (l *sessionLocks) forget(id string) {
	l.mu.Lock()
	delete(l.locks, id)
	l.mu.Unlock()
}
