package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Namespace 对应一个逻辑隔离的数据库。
type Namespace string

const (
	NamespaceClients       Namespace = "clients"
	NamespaceTokens        Namespace = "tokens"
	NamespaceCache         Namespace = "cache"
	NamespaceMirrors       Namespace = "mirrors"
	NamespaceAnnouncements Namespace = "announcements"
)

// Namespaces 返回全部命名空间，顺序固定。
func Namespaces() []Namespace {
	return []Namespace{
		NamespaceClients,
		NamespaceTokens,
		NamespaceCache,
		NamespaceMirrors,
		NamespaceAnnouncements,
	}
}

// Store 仅依赖单键原子性（get/set/exists/delete），从不使用多键事务。
type Store interface {
	// Get 返回键对应的值；不存在或已过期时返回 ErrNotFound。
	Get(ctx context.Context, ns Namespace, key string) ([]byte, error)

	// Set 写入键值；ttl <= 0 表示永不过期。
	Set(ctx context.Context, ns Namespace, key string, value []byte, ttl time.Duration) error

	// SetNX 仅在键不存在时写入，返回是否写入成功。
	SetNX(ctx context.Context, ns Namespace, key string, value []byte, ttl time.Duration) (bool, error)

	// Exists 报告键是否存在且未过期。
	Exists(ctx context.Context, ns Namespace, key string) (bool, error)

	// Delete 删除键，返回删除前键是否存在。
	Delete(ctx context.Context, ns Namespace, key string) (bool, error)

	// Ping 检查后端连通性。
	Ping(ctx context.Context) error

	// Close 释放后端连接。
	Close() error
}

var (
	// ErrNotFound 表示键不存在。
	ErrNotFound = errors.New("store: key not found")
	// ErrUnavailable 表示后端连接或 IO 失败，调用方据此区分 500 与 404。
	ErrUnavailable = errors.New("store: backend unavailable")
	// ErrInvalidKey 表示键为空或包含非法路径成分。
	ErrInvalidKey = errors.New("store: invalid key")
	// ErrClosed 表示 Store 已关闭。
	ErrClosed = errors.New("store: closed")
)

// unavailable 将后端错误包装为 ErrUnavailable，同时保留原始错误文本。
func unavailable(op string, ns Namespace, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrUnavailable, op, ns, err)
}

func validKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}
