package store

import (
	"fmt"

	"github.com/any-hub/release-hub/internal/config"
)

// Open 根据配置构建 Store；调用方负责在进程退出时 Close。
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendRedis:
		databases := make(map[Namespace]int, len(Namespaces()))
		for _, ns := range Namespaces() {
			databases[ns] = cfg.DatabaseFor(string(ns))
		}
		return NewRedisStore(RedisOptions{
			Addr:        cfg.Addr,
			Password:    cfg.Password,
			Databases:   databases,
			DialTimeout: cfg.Timeout.DurationValue(),
		})
	case config.BackendFile:
		return NewFileStore(cfg.StoragePath)
	case config.BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}
