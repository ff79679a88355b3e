package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/logging"
	"github.com/any-hub/release-hub/internal/store"
)

// Status 表示一次读取是否命中缓存。
type Status string

const (
	StatusHit  Status = "hit"
	StatusMiss Status = "miss"
)

// Options 控制读穿缓存行为。
type Options struct {
	TTL       time.Duration
	Catalogue *Catalogue
	Metrics   *Metrics
	Logger    *logrus.Logger
}

// Cache 将上游结果以 JSON 形式写入 store 的 cache 命名空间。
type Cache struct {
	store     store.Store
	ttl       time.Duration
	catalogue *Catalogue
	metrics   *Metrics
	logger    *logrus.Logger
	group     singleflight.Group
}

// New 构建读穿缓存；Catalogue 为空时使用内置资源目录。
func New(s store.Store, opts Options) *Cache {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	catalogue := opts.Catalogue
	if catalogue == nil {
		catalogue = DefaultCatalogue(ttl)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Cache{
		store:     s,
		ttl:       ttl,
		catalogue: catalogue,
		metrics:   opts.Metrics,
		logger:    logger,
	}
}

// Catalogue 返回资源目录。
func (c *Cache) Catalogue() *Catalogue {
	return c.catalogue
}

// TTLFor 返回键所属资源的 TTL，未登记的键使用默认 TTL。
func (c *Cache) TTLFor(key string) time.Duration {
	if res, ok := c.catalogue.Resolve(key); ok && res.TTL > 0 {
		return res.TTL
	}
	return c.ttl
}

func (c *Cache) resourceOf(key string) string {
	if res, ok := c.catalogue.Resolve(key); ok {
		return res.Key
	}
	return "unknown"
}

// Load 先读缓存，命中则原样返回；未命中时调用 fetch，成功后按 TTL 写入再返回。
// 同一键的并发未命中只会触发一次 fetch，每个调用方只等待到自己的 ctx 结束。
// fetch 失败或超时都不写入任何内容。
func Load[T any](ctx context.Context, c *Cache, key string, fetch func(context.Context) (T, error)) (T, Status, error) {
	var zero T
	resource := c.resourceOf(key)

	if value, ok := lookup[T](ctx, c, key); ok {
		c.metrics.ObserveLookup(resource, string(StatusHit))
		c.logger.WithFields(logging.CacheFields(resource, key, true)).Debug("cache_lookup")
		return value, StatusHit, nil
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.populate(ctx, resource, key, value)
		return value, nil
	})

	var (
		shared interface{}
		err    error
	)
	select {
	case res := <-ch:
		shared, err = res.Val, res.Err
	case <-ctx.Done():
		// 调用方按自己的截止时间放弃等待，共享的 fetch 继续运行。
		err = fmt.Errorf("%w: cache %s: %w", apperr.ErrUpstreamUnavailable, key, ctx.Err())
	}
	if err != nil {
		c.metrics.ObserveLookup(resource, "error")
		c.logger.WithFields(logging.CacheFields(resource, key, false)).
			WithError(err).Warn("cache_fetch_failed")
		return zero, StatusMiss, err
	}

	value, ok := shared.(T)
	if !ok {
		return zero, StatusMiss, fmt.Errorf("cache %s: unexpected shared value %T", key, shared)
	}
	c.metrics.ObserveLookup(resource, string(StatusMiss))
	c.logger.WithFields(logging.CacheFields(resource, key, false)).Debug("cache_lookup")
	return value, StatusMiss, nil
}

// lookup 读取并解码缓存条目；读失败或解码失败按未命中处理。
func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var value T
	raw, err := c.store.Get(ctx, store.NamespaceCache, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.logger.WithFields(logging.StoreFields("GET", string(store.NamespaceCache), key)).
				WithError(err).Warn("cache_read_failed")
		}
		return value, false
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		c.logger.WithFields(logging.StoreFields("GET", string(store.NamespaceCache), key)).
			WithError(err).Warn("cache_entry_corrupt")
		return value, false
	}
	return value, true
}

// populate 写入缓存；失败只记日志，上游结果照常返回。
func (c *Cache) populate(ctx context.Context, resource, key string, value interface{}) {
	payload, err := json.Marshal(value)
	if err == nil {
		err = c.store.Set(ctx, store.NamespaceCache, key, payload, c.TTLFor(key))
	}
	if err != nil {
		c.logger.WithFields(logging.CacheFields(resource, key, false)).
			WithError(err).Warn("cache_write_failed")
	}
}

// Invalidate 删除缓存条目，返回删除前是否存在。
func (c *Cache) Invalidate(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("%w: cache key", apperr.ErrBadRequest)
	}
	deleted, err := c.store.Delete(ctx, store.NamespaceCache, key)
	if err != nil {
		if errors.Is(err, store.ErrInvalidKey) {
			return false, fmt.Errorf("%w: %v", apperr.ErrBadRequest, err)
		}
		return false, err
	}
	c.logger.WithFields(logging.CacheFields(c.resourceOf(key), key, false)).
		WithField("deleted", deleted).Info("cache_invalidated")
	return deleted, nil
}
