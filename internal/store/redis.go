package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions 描述 Redis 连接参数；Databases 将命名空间映射到逻辑库号。
type RedisOptions struct {
	Addr        string
	Password    string
	Databases   map[Namespace]int
	DialTimeout time.Duration
}

// redisStore 为每个命名空间维护一个独立库号的 client，键空间因此天然隔离。
type redisStore struct {
	clients map[Namespace]*redis.Client
}

// NewRedisStore 根据命名空间库号构建 Redis 后端，不会主动建立连接。
func NewRedisStore(opts RedisOptions) (Store, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis addr required")
	}

	clients := make(map[Namespace]*redis.Client, len(Namespaces()))
	for _, ns := range Namespaces() {
		db, ok := opts.Databases[ns]
		if !ok {
			return nil, fmt.Errorf("redis database for namespace %s not configured", ns)
		}
		clients[ns] = redis.NewClient(&redis.Options{
			Addr:        opts.Addr,
			Password:    opts.Password,
			DB:          db,
			DialTimeout: opts.DialTimeout,
		})
	}
	return &redisStore{clients: clients}, nil
}

func (s *redisStore) client(ns Namespace) (*redis.Client, error) {
	c, ok := s.clients[ns]
	if !ok {
		return nil, fmt.Errorf("unknown namespace %q", ns)
	}
	return c, nil
}

func (s *redisStore) Get(ctx context.Context, ns Namespace, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	c, err := s.client(ns)
	if err != nil {
		return nil, err
	}
	value, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, s.wrap(ctx, "GET", ns, err)
	}
	return value, nil
}

func (s *redisStore) Set(ctx context.Context, ns Namespace, key string, value []byte, ttl time.Duration) error {
	if err := validKey(key); err != nil {
		return err
	}
	c, err := s.client(ns)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := c.Set(ctx, key, value, ttl).Err(); err != nil {
		return s.wrap(ctx, "SET", ns, err)
	}
	return nil
}

func (s *redisStore) SetNX(ctx context.Context, ns Namespace, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	c, err := s.client(ns)
	if err != nil {
		return false, err
	}
	if ttl < 0 {
		ttl = 0
	}
	created, err := c.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, s.wrap(ctx, "SETNX", ns, err)
	}
	return created, nil
}

func (s *redisStore) Exists(ctx context.Context, ns Namespace, key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	c, err := s.client(ns)
	if err != nil {
		return false, err
	}
	n, err := c.Exists(ctx, key).Result()
	if err != nil {
		return false, s.wrap(ctx, "EXISTS", ns, err)
	}
	return n > 0, nil
}

func (s *redisStore) Delete(ctx context.Context, ns Namespace, key string) (bool, error) {
	if err := validKey(key); err != nil {
		return false, err
	}
	c, err := s.client(ns)
	if err != nil {
		return false, err
	}
	n, err := c.Del(ctx, key).Result()
	if err != nil {
		return false, s.wrap(ctx, "DEL", ns, err)
	}
	return n > 0, nil
}

func (s *redisStore) Ping(ctx context.Context) error {
	for _, ns := range Namespaces() {
		if err := s.clients[ns].Ping(ctx).Err(); err != nil {
			return s.wrap(ctx, "PING", ns, err)
		}
	}
	return nil
}

func (s *redisStore) Close() error {
	var errs []error
	for _, ns := range Namespaces() {
		if err := s.clients[ns].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// wrap 保留调用方的超时/取消错误，其余后端错误归入 ErrUnavailable。
func (s *redisStore) wrap(ctx context.Context, op string, ns Namespace, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrUnavailable, op, ns, ctxErr)
	}
	if errors.Is(err, redis.ErrClosed) {
		return ErrClosed
	}
	return unavailable(op, ns, err)
}
