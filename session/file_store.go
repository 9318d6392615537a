package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileStore is a file-based implementation of Store.
// Suitable for single-node production deployments. Sessions are cached
// in memory and flushed to a single index file on every mutation.
type FileStore struct {
	baseDir string
	// MemoryStore provides the cache, locking and filtering; FileStore
	// layers disk persistence on top.
	cache  *MemoryStore
	config StoreConfig
}

// NewFileStore creates a new file-based session store
func NewFileStore(config StoreConfig) (*FileStore, error) {
	baseDir := filepath.Join(config.BaseDir, "sessions")
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session store directory: %w", err)
	}

	// The cache runs its own cleanup loop when enabled; the file store
	// wraps Cleanup to persist the result, so keep the inner loop off.
	cacheConfig := config
	cacheConfig.Cleanup.Enabled = false

	store := &FileStore{
		baseDir: baseDir,
		cache:   NewMemoryStore(cacheConfig),
		config:  config,
	}

	if err := store.loadFromDisk(); err != nil {
		return nil, fmt.Errorf("failed to load sessions from disk: %w", err)
	}

	if config.Cleanup.Enabled {
		go store.cleanupLoop(config.Cleanup.Interval)
	}

	return store, nil
}

// loadFromDisk loads all sessions into the cache
func (s *FileStore) loadFromDisk() error {
	indexPath := filepath.Join(s.baseDir, "index.json")
	data, err := os.ReadFile(indexPath)
	if os.IsNotExist(err) {
		return nil // No existing data
	}
	if err != nil {
		return err
	}

	var sessions map[string]*Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return err
	}

	ctx := context.Background()
	for _, sess := range sessions {
		if sess == nil {
			continue
		}
		if err := s.cache.Save(ctx, sess); err != nil {
			return err
		}
	}

	return nil
}

// saveToDisk persists all sessions atomically via temp file and rename
func (s *FileStore) saveToDisk() error {
	sessions, err := s.cache.List(context.Background(), Filter{})
	if err != nil {
		return err
	}

	byID := make(map[string]*Session, len(sessions))
	for _, sess := range sessions {
		byID[sess.ID] = sess
	}

	data, err := json.MarshalIndent(byID, "", "  ")
	if err != nil {
		return err
	}

	indexPath := filepath.Join(s.baseDir, "index.json")
	tempPath := indexPath + ".tmp"

	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, indexPath)
}

// Save persists a session to the store and flushes to disk
func (s *FileStore) Save(ctx context.Context, sess *Session) error {
	if err := s.cache.Save(ctx, sess); err != nil {
		return err
	}
	return s.saveToDisk()
}

// Get retrieves a session by ID
func (s *FileStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	return s.cache.Get(ctx, sessionID)
}

// List retrieves sessions matching the filter criteria
func (s *FileStore) List(ctx context.Context, filter Filter) ([]*Session, error) {
	return s.cache.List(ctx, filter)
}

// Delete removes a session from the store and flushes to disk
func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		return err
	}
	return s.saveToDisk()
}

// Count returns the total number of stored sessions
func (s *FileStore) Count(ctx context.Context) (int, error) {
	return s.cache.Count(ctx)
}

// Cleanup removes terminal sessions older than the specified duration
func (s *FileStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	count, err := s.cache.Cleanup(ctx, olderThan)
	if err != nil {
		return count, err
	}
	if count > 0 {
		if err := s.saveToDisk(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// Ping checks if the store is healthy
func (s *FileStore) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

// Close flushes pending state and closes the store
func (s *FileStore) Close() error {
	if err := s.cache.Ping(context.Background()); err != nil {
		return nil // already closed
	}
	err := s.saveToDisk()
	if closeErr := s.cache.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

// cleanupLoop runs periodic cleanup
func (s *FileStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := s.cache.Ping(context.Background()); err != nil {
			return
		}
		_, _ = s.Cleanup(context.Background(), s.config.Cleanup.Retention)
	}
}

// Ensure FileStore implements Store
var _ Store = (*FileStore)(nil)
