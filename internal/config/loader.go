package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultDatabases 为每个命名空间分配独立的 Redis 库号，与历史部署保持一致。
var DefaultDatabases = map[string]int{
	"clients":       0,
	"tokens":        1,
	"cache":         2,
	"mirrors":       3,
	"announcements": 4,
}

// 环境变量覆盖项，优先级高于配置文件。
const (
	EnvSecretKey     = "SECRET_KEY"
	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvGitHubToken   = "GITHUB_TOKEN"
)

// Load 读取并解析 TOML 配置文件，同时注入默认值、环境变量覆盖与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Store.Backend == BackendFile {
		absStorage, err := filepath.Abs(cfg.Store.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("无法解析存储目录: %w", err)
		}
		cfg.Store.StoragePath = absStorage
	}

	return &cfg, nil
}

// loadDotEnv 读取配置文件旁的 .env；文件不存在时静默跳过，已有环境变量不会被覆盖。
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("读取 .env 失败: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("解析 .env 失败: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("DocsURL", "/docs")

	v.SetDefault("Store.Backend", BackendRedis)
	v.SetDefault("Store.Addr", "127.0.0.1:6379")
	v.SetDefault("Store.StoragePath", "./storage")
	v.SetDefault("Store.Timeout", "5s")

	v.SetDefault("Cache.TTL", 300)

	v.SetDefault("Auth.AccessTokenTTL", "1h")
	v.SetDefault("Auth.RefreshTokenTTL", "720h")
	v.SetDefault("Auth.AdminCredentialsPath", "admin_info.json")
	v.SetDefault("Auth.Argon2Memory", 64*1024)
	v.SetDefault("Auth.Argon2Iterations", 3)
	v.SetDefault("Auth.Argon2Threads", 4)

	v.SetDefault("Upstream.BaseURL", "https://api.github.com")
	v.SetDefault("Upstream.Timeout", "30s")
	v.SetDefault("Upstream.RequestsPerSecond", 10)
	v.SetDefault("Upstream.Burst", 20)

	v.SetDefault("RateLimit.Max", 60)
	v.SetDefault("RateLimit.Window", "1m")

	v.SetDefault("Repositories.PatchesTag", "latest")
	v.SetDefault("Repositories.PatchesFile", "patches.json")
	v.SetDefault("Repositories.ContributorsMarker", "revanced")
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv(EnvSecretKey)); value != "" {
		cfg.Auth.SecretKey = value
	}
	if value := strings.TrimSpace(os.Getenv(EnvRedisAddr)); value != "" {
		cfg.Store.Addr = value
	}
	if value := os.Getenv(EnvRedisPassword); value != "" {
		cfg.Store.Password = value
	}
	if value := strings.TrimSpace(os.Getenv(EnvGitHubToken)); value != "" {
		cfg.Upstream.Token = value
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Global.ListenPort == 0 {
		cfg.Global.ListenPort = 8000
	}
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Store.Timeout.DurationValue() == 0 {
		cfg.Store.Timeout = Duration(5 * time.Second)
	}
	databases := make(map[string]int, len(DefaultDatabases))
	for name, db := range DefaultDatabases {
		databases[name] = db
	}
	for name, db := range cfg.Store.Databases {
		databases[strings.ToLower(name)] = db
	}
	cfg.Store.Databases = databases

	if cfg.Cache.TTL.DurationValue() == 0 {
		cfg.Cache.TTL = Duration(5 * time.Minute)
	}
	if cfg.Upstream.Timeout.DurationValue() == 0 {
		cfg.Upstream.Timeout = Duration(30 * time.Second)
	}
	cfg.Upstream.BaseURL = strings.TrimRight(cfg.Upstream.BaseURL, "/")
	if cfg.RateLimit.Window.DurationValue() == 0 {
		cfg.RateLimit.Window = Duration(time.Minute)
	}

	for i := range cfg.Repositories.Tools {
		tool := &cfg.Repositories.Tools[i]
		tool.Repository = strings.TrimSpace(tool.Repository)
		if strings.TrimSpace(tool.Tag) == "" {
			tool.Tag = "latest"
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
