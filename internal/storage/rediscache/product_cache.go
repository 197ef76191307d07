// Package rediscache caches catalog reads in Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/tshirt-store/internal/domain/product"
)

const DefaultTTL = 5 * time.Minute

var _ product.Repository = (*ProductCache)(nil)

// ProductCache is a read-through cache in front of a product.Repository.
// Single and batch lookups are cached; writes invalidate. Redis failures
// are logged and reads fall back to the wrapped repository.
type ProductCache struct {
	next product.Repository
	rdb  redis.UniversalClient
	ttl  time.Duration
	lg   *zap.Logger
}

func NewProductCache(next product.Repository, rdb redis.UniversalClient, ttl time.Duration, lg *zap.Logger) *ProductCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if lg == nil {
		lg = zap.NewNop()
	}
	return &ProductCache{next: next, rdb: rdb, ttl: ttl, lg: lg}
}

func productKey(id string) string {
	return "product:" + id
}

func (c *ProductCache) GetByID(ctx context.Context, id string) (*product.Product, error) {
	data, err := c.rdb.Get(ctx, productKey(id)).Bytes()
	switch {
	case err == nil:
		var p product.Product
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		c.lg.Warn("Drop undecodable cache entry", zap.String("product_id", id))
	case !errors.Is(err, redis.Nil):
		c.lg.Warn("Product cache read failed", zap.Error(err))
	}

	p, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, *p)
	return p, nil
}

// GetByIDs serves what it can from Redis and loads the rest in one call.
func (c *ProductCache) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return c.next.GetByIDs(ctx, ids)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}

	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		c.lg.Warn("Product cache read failed", zap.Error(err))
		return c.next.GetByIDs(ctx, ids)
	}

	var (
		out     = make([]product.Product, 0, len(ids))
		missing []string
	)
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			missing = append(missing, ids[i])
			continue
		}
		var p product.Product
		if err := json.Unmarshal([]byte(s), &p); err != nil {
			missing = append(missing, ids[i])
			continue
		}
		out = append(out, p)
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := c.next.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for _, p := range loaded {
		c.store(ctx, p)
	}
	return append(out, loaded...), nil
}

func (c *ProductCache) store(ctx context.Context, p product.Product) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, productKey(p.ID), data, c.ttl).Err(); err != nil {
		c.lg.Warn("Product cache write failed", zap.Error(err))
	}
}

func (c *ProductCache) invalidate(ctx context.Context, id string) {
	if err := c.rdb.Del(ctx, productKey(id)).Err(); err != nil {
		c.lg.Warn("Product cache invalidation failed", zap.String("product_id", id), zap.Error(err))
	}
}

func (c *ProductCache) List(ctx context.Context, f product.Filter) ([]product.Product, int, error) {
	return c.next.List(ctx, f)
}

func (c *ProductCache) Create(ctx context.Context, p *product.Product) error {
	return c.next.Create(ctx, p)
}

func (c *ProductCache) Update(ctx context.Context, p *product.Product) error {
	err := c.next.Update(ctx, p)
	c.invalidate(ctx, p.ID)
	return err
}

func (c *ProductCache) Delete(ctx context.Context, id string) error {
	err := c.next.Delete(ctx, id)
	c.invalidate(ctx, id)
	return err
}

func (c *ProductCache) Count(ctx context.Context) (int, error) {
	return c.next.Count(ctx)
}

// NewClient parses a redis:// URL and checks the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}
