package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// 存储后端类型。
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
	BackendFile   = "file"
)

// GlobalConfig 描述进程级行为：监听端口与日志输出。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
	DocsURL       string `mapstructure:"DocsURL"`
}

// StoreConfig 决定 Secret Store 的后端与每个命名空间使用的 Redis 库号。
type StoreConfig struct {
	Backend     string         `mapstructure:"Backend"`
	Addr        string         `mapstructure:"Addr"`
	Password    string         `mapstructure:"Password"`
	StoragePath string         `mapstructure:"StoragePath"`
	Timeout     Duration       `mapstructure:"Timeout"`
	Databases   map[string]int `mapstructure:"Databases"`
}

// CacheConfig 控制读穿缓存条目的存活时间。
type CacheConfig struct {
	TTL Duration `mapstructure:"TTL"`
}

// AuthConfig 描述令牌签名与口令哈希参数。
type AuthConfig struct {
	SecretKey            string   `mapstructure:"SecretKey"`
	AccessTokenTTL       Duration `mapstructure:"AccessTokenTTL"`
	RefreshTokenTTL      Duration `mapstructure:"RefreshTokenTTL"`
	AdminCredentialsPath string   `mapstructure:"AdminCredentialsPath"`
	Argon2Memory         uint32   `mapstructure:"Argon2Memory"`
	Argon2Iterations     uint32   `mapstructure:"Argon2Iterations"`
	Argon2Threads        uint8    `mapstructure:"Argon2Threads"`
}

// UpstreamConfig 描述源码托管平台 REST API 的访问方式。
type UpstreamConfig struct {
	BaseURL           string   `mapstructure:"BaseURL"`
	Token             string   `mapstructure:"Token"`
	Timeout           Duration `mapstructure:"Timeout"`
	RequestsPerSecond float64  `mapstructure:"RequestsPerSecond"`
	Burst             int      `mapstructure:"Burst"`
}

// RateLimitConfig 控制入站请求的按 IP 限流；Max 为 0 时关闭。
type RateLimitConfig struct {
	Max    int      `mapstructure:"Max"`
	Window Duration `mapstructure:"Window"`
}

// ToolRepository 描述一个需要对外暴露最新发布产物的仓库及其 tag 选择器。
type ToolRepository struct {
	Repository string `mapstructure:"Repository"`
	Tag        string `mapstructure:"Tag"`
}

// RepositoriesConfig 列出被代理的仓库集合。
type RepositoriesConfig struct {
	Tools              []ToolRepository `mapstructure:"Tools"`
	PatchesRepository  string           `mapstructure:"PatchesRepository"`
	PatchesTag         string           `mapstructure:"PatchesTag"`
	PatchesFile        string           `mapstructure:"PatchesFile"`
	Contributors       []string         `mapstructure:"Contributors"`
	ContributorsMarker string           `mapstructure:"ContributorsMarker"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global       GlobalConfig       `mapstructure:",squash"`
	Store        StoreConfig        `mapstructure:"Store"`
	Cache        CacheConfig        `mapstructure:"Cache"`
	Auth         AuthConfig         `mapstructure:"Auth"`
	Upstream     UpstreamConfig     `mapstructure:"Upstream"`
	RateLimit    RateLimitConfig    `mapstructure:"RateLimit"`
	Repositories RepositoriesConfig `mapstructure:"Repositories"`
	Socials      map[string]string  `mapstructure:"Socials"`
}

// HasUpstreamToken 表示是否配置了上游访问令牌。
func (u UpstreamConfig) HasUpstreamToken() bool {
	return strings.TrimSpace(u.Token) != ""
}

// AuthMode 输出 `token` 或 `anonymous`，供日志字段使用。
func (u UpstreamConfig) AuthMode() string {
	if u.HasUpstreamToken() {
		return "token"
	}
	return "anonymous"
}

// ToolSummary 返回工具仓库摘要，例如 revanced/revanced-cli@latest。
func (r RepositoriesConfig) ToolSummary() []string {
	if len(r.Tools) == 0 {
		return nil
	}
	result := make([]string, len(r.Tools))
	for i, tool := range r.Tools {
		result[i] = fmt.Sprintf("%s@%s", tool.Repository, tool.Tag)
	}
	return result
}

// DatabaseFor 返回命名空间对应的 Redis 库号。
func (s StoreConfig) DatabaseFor(namespace string) int {
	return s.Databases[strings.ToLower(namespace)]
}

// SocialNames 返回按名称排序的社交链接键，便于日志输出。
func (c *Config) SocialNames() []string {
	names := make([]string, 0, len(c.Socials))
	for name := range c.Socials {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
