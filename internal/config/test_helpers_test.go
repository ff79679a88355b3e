package config

import (
	"os"
	"path/filepath"
	"testing"
)

func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("testdata", name)
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

func writeSibling(t *testing.T, configPath, name, content string) {
	t.Helper()
	path := filepath.Join(filepath.Dir(configPath), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入 %s 失败: %v", name, err)
	}
}

// clearEnvOverrides 清空覆盖型环境变量，测试结束后恢复原值。
func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvSecretKey, EnvRedisAddr, EnvRedisPassword, EnvGitHubToken} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}
