package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentmesh/types"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	config := testConfig()
	config.Type = StoreTypeRedis
	config.Redis.Addr = mr.Addr()

	store, err := NewRedisStore(config)
	require.NoError(t, err)

	return mr, store
}

func TestRedisStore_SaveAndGet(t *testing.T) {
	mr, store := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()

	sess := newSession("redis-1", "execution", StatusRunning)
	sess.AddResponse(types.NewResponse("execution", "typed text"))
	require.NoError(t, store.Save(ctx, sess))

	retrieved, err := store.Get(ctx, "redis-1")
	require.NoError(t, err)
	assert.Equal(t, "execution", retrieved.CurrentAgent)
	assert.Equal(t, StatusRunning, retrieved.Status)
	require.Len(t, retrieved.Responses, 1)
	assert.Equal(t, "execution", retrieved.Responses[0].AgentName)
}

func TestRedisStore_GetNotFound(t *testing.T) {
	mr, store := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_StatusIndexMigration(t *testing.T) {
	mr, store := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()

	sess := newSession("redis-2", "vision", StatusRunning)
	require.NoError(t, store.Save(ctx, sess))

	sess.Status = StatusCompleted
	require.NoError(t, store.Save(ctx, sess))

	completed, err := store.List(ctx, Filter{Status: []Status{StatusCompleted}})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "redis-2", completed[0].ID)

	running, err := store.List(ctx, Filter{Status: []Status{StatusRunning}})
	require.NoError(t, err)
	assert.Empty(t, running)
}

func TestRedisStore_ListByAgent(t *testing.T) {
	mr, store := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("redis-a", "execution", StatusRunning)))
	require.NoError(t, store.Save(ctx, newSession("redis-b", "vision", StatusRunning)))
	require.NoError(t, store.Save(ctx, newSession("redis-c", "execution", StatusCompleted)))

	execution, err := store.List(ctx, Filter{AgentName: "execution"})
	require.NoError(t, err)
	assert.Len(t, execution, 2)
}

func TestRedisStore_DeleteAndCount(t *testing.T) {
	mr, store := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()

	require.NoError(t, store.Save(ctx, newSession("redis-d1", "execution", StatusRunning)))
	require.NoError(t, store.Save(ctx, newSession("redis-d2", "execution", StatusRunning)))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, store.Delete(ctx, "redis-d1"))

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	err = store.Delete(ctx, "redis-d1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Cleanup(t *testing.T) {
	mr, store := setupTestRedis(t)
	defer mr.Close()
	defer store.Close()

	ctx := context.Background()

	old := newSession("redis-old", "execution", StatusCompleted)
	old.CreatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, store.Save(ctx, old))

	fresh := newSession("redis-fresh", "execution", StatusCompleted)
	require.NoError(t, store.Save(ctx, fresh))

	active := newSession("redis-active", "execution", StatusRunning)
	active.CreatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, store.Save(ctx, active))

	removed, err := store.Cleanup(ctx, 1*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.Get(ctx, "redis-old")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(ctx, "redis-fresh")
	assert.NoError(t, err)

	_, err = store.Get(ctx, "redis-active")
	assert.NoError(t, err)
}
