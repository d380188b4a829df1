package cmd

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/arq/internal/models"
)

func TestWatcher_NoneSkipsPolling(t *testing.T) {
	srv := testBackend(t)
	a, err := getApp(context.Background())
	require.NoError(t, err)

	a.watcher.mode = watchNone
	a.watcher.Start(context.Background(), "s1")

	_, active := a.monitor.Active()
	assert.False(t, active)
	assert.Zero(t, srv.Count("GET /api/progress/s1"))
	require.NoError(t, a.watcher.follow(context.Background()))
}

func TestWatcher_DetachedSpawns(t *testing.T) {
	testBackend(t)
	a, err := getApp(context.Background())
	require.NoError(t, err)

	var spawned []string
	a.watcher.spawn = func(id string) error {
		spawned = append(spawned, id)
		return nil
	}
	a.watcher.mode = watchDetached
	a.watcher.Start(context.Background(), "s1")

	assert.Equal(t, []string{"s1"}, spawned)
	_, active := a.monitor.Active()
	assert.False(t, active, "no polling in this process")
}

func TestWatcher_ForegroundClaimsPIDFile(t *testing.T) {
	srv := testBackend(t)
	srv.SetProgress("s1", models.ProgressSnapshot{Percentage: 10})
	a, err := getApp(context.Background())
	require.NoError(t, err)

	a.watcher.mode = watchForeground
	a.watcher.Start(context.Background(), "s1")

	pid, err := watchPIDFile().Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	id, active := a.monitor.Active()
	assert.True(t, active)
	assert.Equal(t, "s1", id)

	a.watcher.Stop()
	_, active = a.monitor.Active()
	assert.False(t, active)
	_, err = watchPIDFile().Read()
	assert.True(t, os.IsNotExist(err), "PID file removed on stop")
}

func TestWatcher_FollowStopsOnCancel(t *testing.T) {
	srv := testBackend(t)
	srv.SetProgress("s1", models.ProgressSnapshot{Percentage: 10})
	a, err := getApp(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	a.watcher.mode = watchForeground
	a.watcher.Start(ctx, "s1")
	cancel()

	require.NoError(t, a.watcher.follow(ctx))
	_, active := a.monitor.Active()
	assert.False(t, active)
	_, err = watchPIDFile().Read()
	assert.True(t, os.IsNotExist(err))
}
