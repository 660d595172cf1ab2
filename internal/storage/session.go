package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"agreegraph/internal/logger"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrDuplicateSession = errors.New("session already exists")
)

// Key identifies a session within a store
type Key struct {
	AppName string `json:"app_name"`
	UserID  string `json:"user_id"`
	ID      string `json:"id"`
}

func (k Key) String() string {
	return k.AppName + ":" + k.UserID + ":" + k.ID
}

// Session is one request's shared state. Only State may be mutated by
// stages; the identity fields are owned by the store.
type Session struct {
	Key
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the session
func (s *Session) Clone() *Session {
	out := *s
	out.State = s.State.Clone()
	return &out
}

// Store handles session lifecycle. Every returned *Session is a private
// copy; changes become visible to other callers only through Update.
type Store interface {
	Create(ctx context.Context, key Key, initial State) (*Session, error)
	Get(ctx context.Context, key Key) (*Session, error)
	Update(ctx context.Context, session *Session) error
	// Reset replaces the state with template, creating the session if absent
	Reset(ctx context.Context, key Key, template State) error
	Delete(ctx context.Context, key Key) error
}

// MemoryStore keeps sessions in process memory
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[Key]*Session
	now      func() time.Time
}

// NewMemoryStore creates an empty in-memory session store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[Key]*Session),
		now:      time.Now,
	}
}

// Create stores a new session seeded with initial
func (m *MemoryStore) Create(ctx context.Context, key Key, initial State) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, key)
	}

	now := m.now()
	session := &Session{Key: key, State: initial.Clone(), CreatedAt: now, UpdatedAt: now}
	m.sessions[key] = session

	logger.Debug().Str("session_id", key.ID).Str("user_id", key.UserID).Msg("Session created")
	return session.Clone(), nil
}

// Get returns a copy of the stored session
func (m *MemoryStore) Get(ctx context.Context, key Key) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
	}
	return session.Clone(), nil
}

// Update atomically replaces the stored state
func (m *MemoryStore) Update(ctx context.Context, session *Session) error {
	if session == nil {
		return fmt.Errorf("session cannot be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, exists := m.sessions[session.Key]
	if !exists {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, session.Key)
	}

	updated := session.Clone()
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = m.now()
	m.sessions[session.Key] = updated
	session.UpdatedAt = updated.UpdatedAt
	return nil
}

func (m *MemoryStore) Reset(ctx context.Context, key Key, template State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if stored, exists := m.sessions[key]; exists {
		stored.State = template.Clone()
		stored.UpdatedAt = now
		return nil
	}
	m.sessions[key] = &Session{Key: key, State: template.Clone(), CreatedAt: now, UpdatedAt: now}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, key)
	return nil
}

// Len returns the number of live sessions
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
