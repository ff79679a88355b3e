package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// 内置资源键。
const (
	KeyReleases     = "releases"
	KeyPatches      = "patches"
	KeyContributors = "contributors"
	KeyCommits      = "commits"
)

// Resource 描述一种可缓存资源；Parameterized 为 true 时实际键为 "<Key>:<参数...>"。
type Resource struct {
	Key           string
	Description   string
	Endpoint      string
	Parameterized bool
	TTL           time.Duration
}

// Catalogue 记录可缓存资源，供 TTL 决策与 /-/resources 诊断使用。
type Catalogue struct {
	mu        sync.RWMutex
	resources map[string]Resource
}

// NewCatalogue 返回空目录。
func NewCatalogue() *Catalogue {
	return &Catalogue{resources: make(map[string]Resource)}
}

// DefaultCatalogue 注册 releases/patches/contributors/commits 四种资源，TTL 统一为 ttl。
func DefaultCatalogue(ttl time.Duration) *Catalogue {
	c := NewCatalogue()
	c.MustRegister(Resource{Key: KeyReleases, Description: "configured tool releases", Endpoint: "/tools", TTL: ttl})
	c.MustRegister(Resource{Key: KeyPatches, Description: "patch manifest", Endpoint: "/patches", TTL: ttl})
	c.MustRegister(Resource{Key: KeyContributors, Description: "contributors per repository", Endpoint: "/contributors", TTL: ttl})
	c.MustRegister(Resource{Key: KeyCommits, Description: "release notes between two versions", Endpoint: "/changelogs", Parameterized: true, TTL: ttl})
	return c
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Register 加入资源，重复键返回错误。
func (c *Catalogue) Register(res Resource) error {
	key := normalizeKey(res.Key)
	if key == "" {
		return fmt.Errorf("resource key is required")
	}
	if strings.Contains(key, ":") {
		return fmt.Errorf("resource key %q must not contain ':'", key)
	}
	res.Key = key

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.resources[key]; exists {
		return fmt.Errorf("resource %s already registered", key)
	}
	c.resources[key] = res
	return nil
}

// MustRegister 在注册失败时 panic。
func (c *Catalogue) MustRegister(res Resource) {
	if err := c.Register(res); err != nil {
		panic(err)
	}
}

// Resolve 将缓存键映射到资源；"commits:org/repo:v1:latest" 解析为 commits。
func (c *Catalogue) Resolve(key string) (Resource, bool) {
	name, params, hasParams := strings.Cut(key, ":")
	name = normalizeKey(name)
	if name == "" {
		return Resource{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	res, ok := c.resources[name]
	if !ok {
		return Resource{}, false
	}
	if res.Parameterized != (hasParams && params != "") {
		return Resource{}, false
	}
	return res, true
}

// List 返回按键排序的资源列表。
func (c *Catalogue) List() []Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.resources))
	for key := range c.resources {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Resource, 0, len(keys))
	for _, key := range keys {
		result = append(result, c.resources[key])
	}
	return result
}

// Keys 返回所有资源键。
func (c *Catalogue) Keys() []string {
	items := c.List()
	result := make([]string, len(items))
	for i, res := range items {
		result[i] = res.Key
	}
	return result
}

// CommitsKey 构造 changelog 的缓存键。
func CommitsKey(repo, current, target string) string {
	return strings.Join([]string{KeyCommits, repo, current, target}, ":")
}
