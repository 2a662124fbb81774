package tasks

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startRedis(ctx context.Context, t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("cannot start redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	client := startRedis(ctx, t)
	s := NewRedisStore(client, time.Minute)

	require.NoError(t, s.Create(ctx, &Task{ID: "a", Status: StatusQueued, Logs: []LogLine{}}))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, s.Create(ctx, &Task{ID: "b", Status: StatusQueued}))

	require.NoError(t, s.Update(ctx, "a", func(t *Task) {
		t.Status = StatusRunning
		t.Progress = 55
	}))
	require.NoError(t, s.AppendLog(ctx, "a", LogLine{Time: time.Now(), Message: "scraped", Type: "success"}))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, 55, got.Progress)
	require.Len(t, got.Logs, 1)

	ttl, err := client.TTL(ctx, taskKey("a")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)

	_, err = s.Get(ctx, "zzz")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, "zzz", func(*Task) {}), ErrNotFound)

	require.NoError(t, client.Del(ctx, taskKey("b")).Err())
	n, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
