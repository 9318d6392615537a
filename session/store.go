// Package session provides session records and their persistent storage.
//
// A session is the durable trail of one task through the runtime: every
// response, every handoff, every progress update. Stores keep sessions
// queryable after the dispatcher is done with them.
//
// Supported backends:
// - Memory: for development and testing (default)
// - File: for single-node production deployments
// - Redis: for distributed production deployments
package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common errors
var (
	ErrNotFound     = errors.New("session not found")
	ErrStoreClosed  = errors.New("session store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
)

// CleanupConfig defines cleanup behavior for terminal sessions
type CleanupConfig struct {
	// Enabled determines if automatic cleanup is enabled
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Interval is how often cleanup runs (default: 1h)
	Interval time.Duration `json:"interval" yaml:"interval"`

	// Retention is how long to keep terminal sessions (default: 24h)
	Retention time.Duration `json:"retention" yaml:"retention"`
}

// DefaultCleanupConfig returns the default cleanup configuration
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Enabled:   true,
		Interval:  1 * time.Hour,
		Retention: 24 * time.Hour,
	}
}

// RedisConfig contains Redis-specific configuration
type RedisConfig struct {
	// Addr is the Redis server address (host:port)
	Addr string `json:"addr" yaml:"addr"`

	// Password is the Redis password (optional)
	Password string `json:"password" yaml:"password"`

	// DB is the Redis database number
	DB int `json:"db" yaml:"db"`

	// PoolSize is the connection pool size
	PoolSize int `json:"pool_size" yaml:"pool_size"`

	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// StoreConfig is the base configuration for all store implementations
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type"`

	// BaseDir is the base directory for file-based storage
	BaseDir string `json:"base_dir" yaml:"base_dir"`

	// Redis configuration (only used when Type is "redis")
	Redis RedisConfig `json:"redis" yaml:"redis"`

	// Cleanup configuration
	Cleanup CleanupConfig `json:"cleanup" yaml:"cleanup"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:    StoreTypeMemory,
		BaseDir: "./data/sessions",
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			DB:        0,
			PoolSize:  10,
			KeyPrefix: "agentmesh:",
		},
		Cleanup: DefaultCleanupConfig(),
	}
}

// Filter defines criteria for listing sessions
type Filter struct {
	// Status filters by status (can be multiple)
	Status []Status `json:"status,omitempty"`

	// AgentName filters by the current agent
	AgentName string `json:"agent_name,omitempty"`

	// CreatedAfter filters sessions created after this time
	CreatedAfter *time.Time `json:"created_after,omitempty"`

	// CreatedBefore filters sessions created before this time
	CreatedBefore *time.Time `json:"created_before,omitempty"`

	// Limit is the maximum number of sessions to return
	Limit int `json:"limit,omitempty"`

	// Offset is the number of sessions to skip
	Offset int `json:"offset,omitempty"`

	// OrderDesc sorts newest-first instead of oldest-first
	OrderDesc bool `json:"order_desc,omitempty"`
}

// Store is the interface for session persistence.
// Implementations return copies: mutating a returned session does not
// change the stored one until it is saved again.
type Store interface {
	// Save persists a session (create or update)
	Save(ctx context.Context, sess *Session) error

	// Get retrieves a session by ID
	Get(ctx context.Context, sessionID string) (*Session, error)

	// List retrieves sessions matching the filter criteria
	List(ctx context.Context, filter Filter) ([]*Session, error)

	// Delete removes a session from the store
	Delete(ctx context.Context, sessionID string) error

	// Count returns the total number of stored sessions
	Count(ctx context.Context) (int, error)

	// Cleanup removes terminal sessions older than the specified duration
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error

	// Close closes the store and releases resources
	Close() error
}

// NewStore creates a session store based on the configuration
func NewStore(config StoreConfig) (Store, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(config), nil
	case StoreTypeFile:
		return NewFileStore(config)
	case StoreTypeRedis:
		return NewRedisStore(config)
	default:
		return nil, fmt.Errorf("unsupported session store type: %s", config.Type)
	}
}

// MustNewStore creates a session store or panics on error.
//
// WARNING: This function should ONLY be used during application
// initialization (e.g., in main() or init()). For runtime store creation,
// use NewStore instead.
func MustNewStore(config StoreConfig) Store {
	store, err := NewStore(config)
	if err != nil {
		panic(fmt.Sprintf("failed to create session store: %v", err))
	}
	return store
}

// matchesFilter checks if a session matches the filter criteria
func matchesFilter(sess *Session, filter Filter) bool {
	if len(filter.Status) > 0 {
		found := false
		for _, status := range filter.Status {
			if sess.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if filter.AgentName != "" && sess.CurrentAgent != filter.AgentName {
		return false
	}

	if filter.CreatedAfter != nil && sess.CreatedAt.Before(*filter.CreatedAfter) {
		return false
	}

	if filter.CreatedBefore != nil && sess.CreatedAt.After(*filter.CreatedBefore) {
		return false
	}

	return true
}

// applyWindow applies the filter's offset and limit to a sorted result set
func applyWindow(sessions []*Session, filter Filter) []*Session {
	if filter.Offset > 0 {
		if filter.Offset >= len(sessions) {
			return []*Session{}
		}
		sessions = sessions[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(sessions) {
		sessions = sessions[:filter.Limit]
	}

	return sessions
}
