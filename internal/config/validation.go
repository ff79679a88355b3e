package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const supportedBackendList = "redis|memory|file"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if c.Cache.TTL.DurationValue() <= 0 {
		return newFieldError("Cache.TTL", "必须大于 0")
	}

	if err := c.validateAuth(); err != nil {
		return err
	}

	if err := validateUpstream(c.Upstream.BaseURL); err != nil {
		return fmt.Errorf("Upstream.BaseURL: %w", err)
	}
	if c.Upstream.Timeout.DurationValue() <= 0 {
		return newFieldError("Upstream.Timeout", "必须大于 0")
	}
	if c.Upstream.RequestsPerSecond < 0 {
		return newFieldError("Upstream.RequestsPerSecond", "不能为负数")
	}
	if c.Upstream.RequestsPerSecond > 0 && c.Upstream.Burst <= 0 {
		return newFieldError("Upstream.Burst", "启用限速时必须大于 0")
	}

	if c.RateLimit.Max < 0 {
		return newFieldError("RateLimit.Max", "不能为负数")
	}

	return c.validateRepositories()
}

func (c *Config) validateStore() error {
	s := c.Store
	switch s.Backend {
	case BackendRedis:
		if strings.TrimSpace(s.Addr) == "" {
			return newFieldError("Store.Addr", "redis 后端不能为空")
		}
		seen := map[int]string{}
		for name, db := range s.Databases {
			if _, ok := DefaultDatabases[name]; !ok {
				return newFieldError(sectionField("Store.Databases", name), "未知命名空间")
			}
			if db < 0 || db > 15 {
				return newFieldError(sectionField("Store.Databases", name), "必须在 0-15")
			}
			if other, dup := seen[db]; dup {
				return newFieldError(sectionField("Store.Databases", name), fmt.Sprintf("与 %s 共用库号 %d", other, db))
			}
			seen[db] = name
		}
	case BackendFile:
		if strings.TrimSpace(s.StoragePath) == "" {
			return newFieldError("Store.StoragePath", "file 后端不能为空")
		}
	case BackendMemory:
	default:
		return newFieldError("Store.Backend", "仅支持 "+supportedBackendList)
	}
	if s.Timeout.DurationValue() <= 0 {
		return newFieldError("Store.Timeout", "必须大于 0")
	}
	return nil
}

func (c *Config) validateAuth() error {
	a := c.Auth
	if len(a.SecretKey) < 32 {
		return newFieldError("Auth.SecretKey", "至少 32 个字符（可通过 SECRET_KEY 提供）")
	}
	if a.AccessTokenTTL.DurationValue() <= 0 {
		return newFieldError("Auth.AccessTokenTTL", "必须大于 0")
	}
	if a.RefreshTokenTTL.DurationValue() < a.AccessTokenTTL.DurationValue() {
		return newFieldError("Auth.RefreshTokenTTL", "不能小于 AccessTokenTTL")
	}
	if strings.TrimSpace(a.AdminCredentialsPath) == "" {
		return newFieldError("Auth.AdminCredentialsPath", "不能为空")
	}
	if a.Argon2Memory < 8*1024 || a.Argon2Iterations == 0 || a.Argon2Threads == 0 {
		return newFieldError("Auth.Argon2", "Memory 至少 8192 KiB，Iterations/Threads 必须大于 0")
	}
	return nil
}

func (c *Config) validateRepositories() error {
	r := c.Repositories
	if len(r.Tools) == 0 {
		return errors.New("至少需要配置一个 Repositories.Tools")
	}
	seen := map[string]struct{}{}
	for _, tool := range r.Tools {
		if err := validateRepository(tool.Repository); err != nil {
			return fmt.Errorf("%s: %w", sectionField("Repositories.Tools", tool.Repository), err)
		}
		if _, exists := seen[tool.Repository]; exists {
			return newFieldError(sectionField("Repositories.Tools", tool.Repository), "重复")
		}
		seen[tool.Repository] = struct{}{}
	}
	if r.PatchesRepository != "" {
		if err := validateRepository(r.PatchesRepository); err != nil {
			return fmt.Errorf("Repositories.PatchesRepository: %w", err)
		}
		if strings.TrimSpace(r.PatchesFile) == "" {
			return newFieldError("Repositories.PatchesFile", "不能为空")
		}
	}
	for _, repo := range r.Contributors {
		if err := validateRepository(repo); err != nil {
			return fmt.Errorf("%s: %w", sectionField("Repositories.Contributors", repo), err)
		}
	}
	return nil
}

// validateRepository 要求 owner/name 形式的仓库标识。
func validateRepository(repo string) error {
	parts := strings.Split(repo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("仓库必须为 owner/name 形式: %q", repo)
	}
	if strings.ContainsAny(repo, " ?#") {
		return fmt.Errorf("仓库名包含非法字符: %q", repo)
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
