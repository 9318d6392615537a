package config

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bumpModTime pushes the file's mtime into the future so a rewrite is
// always detected even on filesystems with coarse timestamps.
func bumpModTime(t *testing.T, path string) {
	t.Helper()
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, future, future))
}

func TestWatcher_InitialLoad(t *testing.T) {
	path := writeConfigFile(t, "runtime:\n  max_handoffs: 4\n")
	w, err := NewWatcher(path)
	require.NoError(t, err)
	assert.Equal(t, 4, w.Current().Runtime.MaxHandoffs)
}

func TestWatcher_InitialLoadMustSucceed(t *testing.T) {
	path := writeConfigFile(t, "team:\n  mode: swarm\n")
	_, err := NewWatcher(path)
	require.Error(t, err)
}

func TestWatcher_ReloadOnChange(t *testing.T) {
	path := writeConfigFile(t, "runtime:\n  max_handoffs: 4\n")
	w, err := NewWatcher(path, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	var reloads atomic.Int64
	w.OnReload(func(cfg *Config) { reloads.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	assert.Error(t, w.Start(ctx), "second Start is rejected")
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("runtime:\n  max_handoffs: 7\n"), 0o644))
	bumpModTime(t, path)

	require.Eventually(t, func() bool {
		return w.Current().Runtime.MaxHandoffs == 7
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, reloads.Load(), int64(1))
}

func TestWatcher_BadReloadKeepsPrevious(t *testing.T) {
	path := writeConfigFile(t, "runtime:\n  max_handoffs: 4\n")
	w, err := NewWatcher(path, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)

	var reloads atomic.Int64
	w.OnReload(func(cfg *Config) { reloads.Add(1) })

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("team:\n  mode: swarm\n"), 0o644))
	bumpModTime(t, path)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 4, w.Current().Runtime.MaxHandoffs)
	assert.Zero(t, reloads.Load())
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	path := writeConfigFile(t, "")
	w, err := NewWatcher(path)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}
