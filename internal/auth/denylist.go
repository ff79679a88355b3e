package auth

import (
	"context"
	"time"

	"github.com/any-hub/release-hub/internal/store"
)

// Denylist 记录被吊销的 jti；键存在即视为已吊销，值无意义。
type Denylist struct {
	store store.Store
	ttl   time.Duration
}

// NewDenylist 构建 denylist；ttl 应等于 token 的最长寿命，<= 0 表示永不过期。
func NewDenylist(s store.Store, ttl time.Duration) *Denylist {
	return &Denylist{store: s, ttl: ttl}
}

// Add 吊销 jti，重复吊销是幂等的。
func (d *Denylist) Add(ctx context.Context, jti string) error {
	return d.store.Set(ctx, store.NamespaceTokens, jti, nil, d.ttl)
}

// Contains 报告 jti 是否已被吊销；存储失败原样返回，由调用方按失败关闭处理。
func (d *Denylist) Contains(ctx context.Context, jti string) (bool, error) {
	return d.store.Exists(ctx, store.NamespaceTokens, jti)
}
