package store

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/release-hub/internal/logging"
)

// loggedStore 为每次操作输出结构化日志：成功记 debug，后端失败记 error。
type loggedStore struct {
	next   Store
	logger *logrus.Logger
}

// WithLogging 包装 Store，使所有调用方共享同一套存储日志字段。
func WithLogging(next Store, logger *logrus.Logger) Store {
	if logger == nil {
		return next
	}
	return &loggedStore{next: next, logger: logger}
}

func (s *loggedStore) Get(ctx context.Context, ns Namespace, key string) ([]byte, error) {
	value, err := s.next.Get(ctx, ns, key)
	s.log("GET", ns, key, err)
	return value, err
}

func (s *loggedStore) Set(ctx context.Context, ns Namespace, key string, value []byte, ttl time.Duration) error {
	err := s.next.Set(ctx, ns, key, value, ttl)
	s.log("SET", ns, key, err)
	return err
}

func (s *loggedStore) SetNX(ctx context.Context, ns Namespace, key string, value []byte, ttl time.Duration) (bool, error) {
	created, err := s.next.SetNX(ctx, ns, key, value, ttl)
	s.log("SETNX", ns, key, err)
	return created, err
}

func (s *loggedStore) Exists(ctx context.Context, ns Namespace, key string) (bool, error) {
	exists, err := s.next.Exists(ctx, ns, key)
	s.log("EXISTS", ns, key, err)
	return exists, err
}

func (s *loggedStore) Delete(ctx context.Context, ns Namespace, key string) (bool, error) {
	deleted, err := s.next.Delete(ctx, ns, key)
	s.log("DELETE", ns, key, err)
	return deleted, err
}

func (s *loggedStore) Ping(ctx context.Context) error {
	err := s.next.Ping(ctx)
	s.log("PING", "", "", err)
	return err
}

func (s *loggedStore) Close() error {
	return s.next.Close()
}

func (s *loggedStore) log(op string, ns Namespace, key string, err error) {
	fields := logging.StoreFields(op, string(ns), key)
	switch {
	case err == nil, errors.Is(err, ErrNotFound):
		s.logger.WithFields(fields).Debug("store_ok")
	default:
		s.logger.WithFields(fields).WithError(err).Error("store_failed")
	}
}
