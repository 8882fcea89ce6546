// Package cache provides read-through caching in front of repositories.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/mobilia/backoffice/internal/domain"
	"github.com/mobilia/backoffice/internal/repositories"
)

const (
	defaultPrefix = "backoffice:products:"
	defaultTTL    = 5 * time.Minute
	allProductKey = "list:all"
	idKeyPrefix   = "id:"
)

var errMiss = errors.New("cache: miss")

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type redisStore struct {
	client redis.UniversalClient
}

func (s redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errMiss
	}
	return data, err
}

func (s redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Stats counts cache outcomes since construction.
type Stats struct {
	Hits   uint64
	Misses uint64
	Errors uint64
}

// Option customises a ProductCache.
type Option func(*ProductCache)

// WithPrefix overrides the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *ProductCache) {
		if strings.TrimSpace(prefix) != "" {
			c.prefix = prefix
		}
	}
}

// WithTTL overrides the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *ProductCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithLogger receives cache failures. Failures never fail the read; the inner repository answers instead.
func WithLogger(logger func(ctx context.Context, event string, fields map[string]any)) Option {
	return func(c *ProductCache) {
		c.logger = logger
	}
}

// ProductCache is a cache-aside decorator for a ProductRepository backed by Redis. Lookups by id and the
// unfiltered listing are cached; filtered listings go straight to the inner repository. Concurrent misses
// on the same key share one repository read.
type ProductCache struct {
	inner  repositories.ProductRepository
	store  store
	prefix string
	ttl    time.Duration
	logger func(ctx context.Context, event string, fields map[string]any)
	loads  singleflight.Group

	hits, misses, errs atomic.Uint64
}

var _ repositories.ProductRepository = (*ProductCache)(nil)

// NewProductCache wraps inner with a Redis cache.
func NewProductCache(inner repositories.ProductRepository, client redis.UniversalClient, opts ...Option) (*ProductCache, error) {
	if client == nil {
		return nil, errors.New("product cache: redis client is required")
	}
	return newProductCache(inner, redisStore{client: client}, opts...)
}

func newProductCache(inner repositories.ProductRepository, s store, opts ...Option) (*ProductCache, error) {
	if inner == nil {
		return nil, errors.New("product cache: inner repository is required")
	}
	c := &ProductCache{
		inner:  inner,
		store:  s,
		prefix: defaultPrefix,
		ttl:    defaultTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *ProductCache) FindByID(ctx context.Context, productID string) (domain.BaseProduct, error) {
	productID = strings.TrimSpace(productID)
	key := idKeyPrefix + productID
	var product domain.BaseProduct
	if c.get(ctx, key, &product) {
		return product, nil
	}
	v, err, _ := c.loads.Do(key, func() (any, error) {
		product, err := c.inner.FindByID(ctx, productID)
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, product)
		return product, nil
	})
	if err != nil {
		return domain.BaseProduct{}, err
	}
	return v.(domain.BaseProduct), nil
}

func (c *ProductCache) List(ctx context.Context, filter repositories.ProductListFilter) ([]domain.BaseProduct, error) {
	if len(filter.IDs) > 0 {
		return c.inner.List(ctx, filter)
	}
	var products []domain.BaseProduct
	if c.get(ctx, allProductKey, &products) {
		return products, nil
	}
	v, err, _ := c.loads.Do(allProductKey, func() (any, error) {
		products, err := c.inner.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		c.set(ctx, allProductKey, products)
		return products, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.BaseProduct), nil
}

// Stats returns hit, miss and error counters.
func (c *ProductCache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errs.Load()}
}

func (c *ProductCache) get(ctx context.Context, key string, dest any) bool {
	data, err := c.store.Get(ctx, c.prefix+key)
	if errors.Is(err, errMiss) {
		c.misses.Add(1)
		return false
	}
	if err == nil {
		err = json.Unmarshal(data, dest)
	}
	if err != nil {
		c.fail(ctx, "get", key, err)
		return false
	}
	c.hits.Add(1)
	return true
}

func (c *ProductCache) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.fail(ctx, "marshal", key, err)
		return
	}
	if err := c.store.Set(ctx, c.prefix+key, data, c.ttl); err != nil {
		c.fail(ctx, "set", key, err)
	}
}

func (c *ProductCache) fail(ctx context.Context, op, key string, err error) {
	c.errs.Add(1)
	if c.logger != nil {
		c.logger(ctx, "product_cache.error", map[string]any{
			"op":    op,
			"key":   key,
			"error": fmt.Sprintf("%v", err),
		})
	}
}
