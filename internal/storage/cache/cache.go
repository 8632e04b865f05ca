// Package cache puts a Redis read-through cache in front of a storage backend.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"booking/internal/models"
	"booking/internal/storage"
)

const DefaultTTL = 5 * time.Minute

// generationTTL bounds how long a resource's write counter outlives its last write
const generationTTL = 24 * time.Hour

// errStaleRead aborts a backfill that raced with a write
var errStaleRead = errors.New("resource changed while it was loaded")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ResourceCache caches single-resource lookups. Every other call goes
// straight to the wrapped Storage. Redis failures are logged and the
// backend is used instead.
type ResourceCache struct {
	storage.Storage
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New wraps backend with a cache backed by client
func New(backend storage.Storage, client *redis.Client, ttl time.Duration, logger *zap.Logger) *ResourceCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResourceCache{Storage: backend, client: client, ttl: ttl, logger: logger}
}

func resourceKey(id int64) string {
	return fmt.Sprintf("resource:%d", id)
}

// generationKey counts writes to a resource. A backfill only lands when the
// counter is unchanged since before the backend read.
func generationKey(id int64) string {
	return fmt.Sprintf("resource:%d:gen", id)
}

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func generation(ctx context.Context, g getter, id int64) (int64, error) {
	gen, err := g.Get(ctx, generationKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// GetResource returns the cached resource or loads and caches it
func (c *ResourceCache) GetResource(ctx context.Context, id int64) (models.Resource, error) {
	key := resourceKey(id)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var resource models.Resource
		if err := json.Unmarshal(data, &resource); err == nil {
			return resource, nil
		}
		c.logger.Warn("Dropping undecodable cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Resource cache read failed", zap.String("key", key), zap.Error(err))
	}

	gen, genErr := generation(ctx, c.client, id)

	resource, err := c.Storage.GetResource(ctx, id)
	if err != nil {
		return models.Resource{}, err
	}

	if genErr == nil {
		c.backfill(ctx, resource, gen)
	}
	return resource, nil
}

func (c *ResourceCache) backfill(ctx context.Context, resource models.Resource, gen int64) {
	key := resourceKey(resource.ID)
	data, err := json.Marshal(resource)
	if err != nil {
		return
	}

	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := generation(ctx, tx, resource.ID)
		if err != nil {
			return err
		}
		if current != gen {
			return errStaleRead
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, generationKey(resource.ID))

	switch {
	case err == nil:
	case errors.Is(err, errStaleRead), errors.Is(err, redis.TxFailedErr):
		c.logger.Debug("Skipping stale resource cache fill", zap.String("key", key))
	default:
		c.logger.Warn("Resource cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// UpdateResource writes through and drops the cached copy
func (c *ResourceCache) UpdateResource(ctx context.Context, resource models.Resource) (models.Resource, error) {
	updated, err := c.Storage.UpdateResource(ctx, resource)
	if err != nil {
		return models.Resource{}, err
	}
	c.invalidate(ctx, resource.ID)
	return updated, nil
}

// DeleteResource deletes from the backend and drops the cached copy
func (c *ResourceCache) DeleteResource(ctx context.Context, id int64) error {
	if err := c.Storage.DeleteResource(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

// Close closes the Redis client and the wrapped backend
func (c *ResourceCache) Close() error {
	return errors.Join(c.client.Close(), c.Storage.Close())
}

func (c *ResourceCache) invalidate(ctx context.Context, id int64) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(id))
		pipe.Expire(ctx, generationKey(id), generationTTL)
		pipe.Del(ctx, resourceKey(id))
		return nil
	})
	if err != nil {
		c.logger.Warn("Resource cache invalidation failed", zap.Int64("resource_id", id), zap.Error(err))
	}
}
