package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	redisTC "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"booking/internal/models"
	"booking/internal/storage"
	"booking/internal/storage/stubs"
)

// countingDB counts backend resource lookups. afterGet, when set, runs once
// after the next lookup has read the backend.
type countingDB struct {
	*stubs.MockDB
	gets     int
	afterGet func()
}

func (c *countingDB) GetResource(ctx context.Context, id int64) (models.Resource, error) {
	c.gets++
	resource, err := c.MockDB.GetResource(ctx, id)
	if hook := c.afterGet; hook != nil {
		c.afterGet = nil
		hook()
	}
	return resource, err
}

func setupRedis(t *testing.T) (*redis.Client, func()) {
	if testing.Short() {
		t.Skip("skipping Redis container test in short mode")
	}
	ctx := context.Background()

	container, err := redisTC.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "Failed to start Redis container")

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	opts, err := redis.ParseURL(uri)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	require.NoError(t, client.Ping(ctx).Err())

	return client, func() {
		client.Close()
		container.Terminate(ctx)
	}
}

func TestResourceCache_ReadThrough(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	backend := &countingDB{MockDB: stubs.NewMockDB()}
	created, err := backend.CreateResource(ctx, models.Resource{Title: "Room A", ResourceType: models.ResourceTypeMeetingRoom})
	require.NoError(t, err)

	c := New(backend, client, time.Minute, zap.NewNop())

	first, err := c.GetResource(ctx, created.ID)
	require.NoError(t, err)
	second, err := c.GetResource(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, created, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.gets)

	ttl, err := client.TTL(ctx, resourceKey(created.ID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}

func TestResourceCache_Invalidation(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	backend := &countingDB{MockDB: stubs.NewMockDB()}
	created, _ := backend.CreateResource(ctx, models.Resource{Title: "Room A", ResourceType: models.ResourceTypeMeetingRoom})

	c := New(backend, client, time.Minute, zap.NewNop())
	_, err := c.GetResource(ctx, created.ID)
	require.NoError(t, err)

	created.Title = "Room A (east wing)"
	_, err = c.UpdateResource(ctx, created)
	require.NoError(t, err)

	got, err := c.GetResource(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Room A (east wing)", got.Title)
	assert.Equal(t, 2, backend.gets)

	require.NoError(t, c.DeleteResource(ctx, created.ID))
	_, err = c.GetResource(ctx, created.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	exists, err := client.Exists(ctx, resourceKey(created.ID)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestResourceCache_WriteDuringMiss(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	backend := &countingDB{MockDB: stubs.NewMockDB()}
	created, _ := backend.CreateResource(ctx, models.Resource{Title: "Room A", ResourceType: models.ResourceTypeMeetingRoom})

	c := New(backend, client, time.Minute, zap.NewNop())

	renamed := created
	renamed.Title = "Room A (east wing)"
	backend.afterGet = func() {
		_, err := c.UpdateResource(ctx, renamed)
		require.NoError(t, err)
	}

	// the miss read the old title before the update landed
	stale, err := c.GetResource(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Room A", stale.Title)

	exists, err := client.Exists(ctx, resourceKey(created.ID)).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "stale value must not be cached")

	got, err := c.GetResource(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Room A (east wing)", got.Title)
}

func TestResourceCache_RedisDown(t *testing.T) {
	ctx := context.Background()
	backend := &countingDB{MockDB: stubs.NewMockDB()}
	created, _ := backend.CreateResource(ctx, models.Resource{Title: "Laptop Cart", ResourceType: models.ResourceTypeEquipment})

	// nothing listens on this port
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	c := New(backend, client, 0, zap.NewNop())
	defer client.Close()

	got, err := c.GetResource(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Laptop Cart", got.Title)
	assert.Equal(t, DefaultTTL, c.ttl)
}
