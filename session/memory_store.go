package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of Store.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	closed   bool
	config   StoreConfig
}

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore(config StoreConfig) *MemoryStore {
	store := &MemoryStore{
		sessions: make(map[string]*Session),
		config:   config,
	}

	// Start cleanup goroutine if enabled
	if config.Cleanup.Enabled {
		go store.cleanupLoop(config.Cleanup.Interval)
	}

	return store
}

// Save persists a session to the store. The stored value is a deep copy,
// so the caller can keep mutating its session between saves.
func (s *MemoryStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	clone := sess.Clone()
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}

	s.sessions[clone.ID] = clone

	return nil
}

// Get retrieves a session by ID
func (s *MemoryStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	return sess.Clone(), nil
}

// List retrieves sessions matching the filter criteria
func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	result := make([]*Session, 0)

	for _, sess := range s.sessions {
		if matchesFilter(sess, filter) {
			result = append(result, sess.Clone())
		}
	}

	sortSessions(result, filter.OrderDesc)

	return applyWindow(result, filter), nil
}

// Delete removes a session from the store
func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrNotFound
	}

	delete(s.sessions, sessionID)

	return nil
}

// Count returns the total number of stored sessions
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	return len(s.sessions), nil
}

// Cleanup removes terminal sessions older than the specified duration
func (s *MemoryStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	cutoff := time.Now().Add(-olderThan)
	count := 0

	for id, sess := range s.sessions {
		if !sess.Status.IsTerminal() {
			continue
		}

		checkTime := sess.UpdatedAt
		if sess.CompletedAt != nil {
			checkTime = *sess.CompletedAt
		}

		if checkTime.Before(cutoff) {
			delete(s.sessions, id)
			count++
		}
	}

	return count, nil
}

// Ping checks if the store is healthy
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// Close closes the store
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// cleanupLoop runs periodic cleanup
func (s *MemoryStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.RLock()
		closed := s.closed
		s.mu.RUnlock()

		if closed {
			return
		}

		_, _ = s.Cleanup(context.Background(), s.config.Cleanup.Retention)
	}
}

// sortSessions orders sessions by creation time
func sortSessions(sessions []*Session, desc bool) {
	sort.Slice(sessions, func(i, j int) bool {
		less := sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
		if desc {
			return !less
		}
		return less
	})
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
