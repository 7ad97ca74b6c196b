package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is the inactivity window after which a session's history is
// eligible for removal.
const DefaultTTL = 3600 * time.Second

// MemoryStore keeps session histories in process memory with per-session
// expiry. It is the default store and the substitute used in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	ttl      time.Duration
	now      func() time.Time
}

type memorySession struct {
	messages  []Message
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory session store with the given TTL.
// A non-positive ttl falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// SetClock overrides the store's time source (for tests)
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Append adds a turn to the session's history and resets the expiry window
func (s *MemoryStore) Append(ctx context.Context, sessionID, userQuery, botResponse string, at time.Time) (Message, error) {
	if at.IsZero() {
		at = s.now()
	}

	msg := Message{
		ID:          uuid.NewString(),
		UserQuery:   userQuery,
		BotResponse: botResponse,
		Timestamp:   at.UnixMilli(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[sessionID]
	if !exists || s.expired(sess) {
		sess = &memorySession{}
		s.sessions[sessionID] = sess
	}

	sess.messages = append(sess.messages, msg)
	sess.expiresAt = s.now().Add(s.ttl)

	return msg, nil
}

// Read returns the history in append order. Reading never extends the TTL.
func (s *MemoryStore) Read(ctx context.Context, sessionID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[sessionID]
	if !exists || s.expired(sess) {
		return []Message{}, nil
	}

	// Copy so callers can't mutate internal state
	out := make([]Message, len(sess.messages))
	copy(out, sess.messages)
	return out, nil
}

// Clear removes the session's history. Idempotent.
func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// Refresh resets the expiry window for an existing session
func (s *MemoryStore) Refresh(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[sessionID]
	if !exists || s.expired(sess) {
		return nil
	}
	sess.expiresAt = s.now().Add(s.ttl)
	return nil
}

// ListActive returns the ids of all unexpired sessions
func (s *MemoryStore) ListActive(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if !s.expired(sess) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Sweep drops expired sessions from memory and returns how many were removed.
// Expiry is otherwise lazy (checked on access), so a periodic sweep keeps the
// map from accumulating dead sessions.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// expired reports whether the session's inactivity window has elapsed.
// Callers must hold at least the read lock.
func (s *MemoryStore) expired(sess *memorySession) bool {
	return !sess.expiresAt.After(s.now())
}
