package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-based implementation of Store.
// Suitable for distributed production deployments. Session payloads are
// stored as JSON strings with sorted sets for status and agent indexing.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	config    StoreConfig
}

// NewRedisStore creates a new Redis-based session store
func NewRedisStore(config StoreConfig) (*RedisStore, error) {
	addr := config.Redis.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := config.Redis.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "agentmesh:"
	}

	return &RedisStore{
		client:    client,
		keyPrefix: keyPrefix + "session:",
		config:    config,
	}, nil
}

// dataKey returns the Redis key for a session payload
func (s *RedisStore) dataKey(sessionID string) string {
	return s.keyPrefix + "data:" + sessionID
}

// statusKey returns the Redis key for a status index
func (s *RedisStore) statusKey(status Status) string {
	return s.keyPrefix + "status:" + string(status)
}

// agentKey returns the Redis key for an agent index
func (s *RedisStore) agentKey(agentName string) string {
	return s.keyPrefix + "agent:" + agentName
}

// allKey returns the Redis key for the all-sessions index
func (s *RedisStore) allKey() string {
	return s.keyPrefix + "all"
}

// Save persists a session to the store
func (s *RedisStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil || sess.ID == "" {
		return ErrInvalidInput
	}

	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now()
	}

	// Get old session for index cleanup
	old, _ := s.Get(ctx, sess.ID)

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.Pipeline()

	pipe.Set(ctx, s.dataKey(sess.ID), data, 0)

	score := float64(sess.CreatedAt.UnixNano())

	// Migrate indexes when status or agent changed
	if old != nil && old.Status != sess.Status {
		pipe.ZRem(ctx, s.statusKey(old.Status), sess.ID)
	}
	if old != nil && old.CurrentAgent != "" && old.CurrentAgent != sess.CurrentAgent {
		pipe.ZRem(ctx, s.agentKey(old.CurrentAgent), sess.ID)
	}

	pipe.ZAdd(ctx, s.statusKey(sess.Status), redis.Z{Score: score, Member: sess.ID})
	pipe.ZAdd(ctx, s.allKey(), redis.Z{Score: score, Member: sess.ID})

	if sess.CurrentAgent != "" {
		pipe.ZAdd(ctx, s.agentKey(sess.CurrentAgent), redis.Z{Score: score, Member: sess.ID})
	}

	_, err = pipe.Exec(ctx)
	return err
}

// Get retrieves a session by ID
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	data, err := s.client.Get(ctx, s.dataKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}

	return &sess, nil
}

// List retrieves sessions matching the filter criteria
func (s *RedisStore) List(ctx context.Context, filter Filter) ([]*Session, error) {
	var sessionIDs []string
	var err error

	// Pick the narrowest index available
	if len(filter.Status) == 1 {
		sessionIDs, err = s.client.ZRange(ctx, s.statusKey(filter.Status[0]), 0, -1).Result()
	} else if filter.AgentName != "" {
		sessionIDs, err = s.client.ZRange(ctx, s.agentKey(filter.AgentName), 0, -1).Result()
	} else {
		sessionIDs, err = s.client.ZRange(ctx, s.allKey(), 0, -1).Result()
	}

	if err != nil {
		return nil, err
	}

	result := make([]*Session, 0)
	for _, sessionID := range sessionIDs {
		sess, err := s.Get(ctx, sessionID)
		if err != nil {
			continue
		}
		if matchesFilter(sess, filter) {
			result = append(result, sess)
		}
	}

	sortSessions(result, filter.OrderDesc)

	return applyWindow(result, filter), nil
}

// Delete removes a session from the store
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()

	pipe.Del(ctx, s.dataKey(sessionID))
	pipe.ZRem(ctx, s.statusKey(sess.Status), sessionID)
	pipe.ZRem(ctx, s.allKey(), sessionID)

	if sess.CurrentAgent != "" {
		pipe.ZRem(ctx, s.agentKey(sess.CurrentAgent), sessionID)
	}

	_, err = pipe.Exec(ctx)
	return err
}

// Count returns the total number of stored sessions
func (s *RedisStore) Count(ctx context.Context) (int, error) {
	total, err := s.client.ZCard(ctx, s.allKey()).Result()
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// Cleanup removes terminal sessions older than the specified duration
func (s *RedisStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()
	count := 0

	for _, status := range []Status{StatusCompleted, StatusFailed} {
		sessionIDs, err := s.client.ZRangeByScore(ctx, s.statusKey(status), &redis.ZRangeBy{
			Min: "-inf",
			Max: strconv.FormatInt(cutoff, 10),
		}).Result()
		if err != nil {
			continue
		}

		for _, sessionID := range sessionIDs {
			if err := s.Delete(ctx, sessionID); err == nil {
				count++
			}
		}
	}

	return count, nil
}

// Ping checks if the store is healthy
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the store
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)
