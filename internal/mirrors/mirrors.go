// Package mirrors 维护 CDN 镜像元数据，键为 org/repo/version。
package mirrors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/store"
)

// Mirror 是 GET 的响应体。
type Mirror struct {
	Repository string   `json:"repository"`
	Version    string   `json:"version"`
	CID        string   `json:"cid"`
	Filenames  []string `json:"filenames"`
}

// Input 是创建/更新时提交的字段，也是持久化格式。
type Input struct {
	CID       string   `json:"cid"`
	Filenames []string `json:"filenames"`
}

// Registry 提供镜像记录的增删改查。
type Registry struct {
	store store.Store
}

// NewRegistry 构建镜像注册表。
func NewRegistry(s store.Store) *Registry {
	return &Registry{store: s}
}

// Key 拼接复合键，任一部分为空或含 "/" 时返回 apperr.ErrBadRequest。
func Key(org, repo, version string) (string, error) {
	parts := [][2]string{{"org", org}, {"repo", repo}, {"version", version}}
	for _, p := range parts {
		if strings.TrimSpace(p[1]) == "" {
			return "", fmt.Errorf("%w: %s is required", apperr.ErrBadRequest, p[0])
		}
		if strings.Contains(p[1], "/") {
			return "", fmt.Errorf("%w: %s must not contain '/'", apperr.ErrBadRequest, p[0])
		}
	}
	return org + "/" + repo + "/" + version, nil
}

// Exists 报告镜像是否存在。
func (r *Registry) Exists(ctx context.Context, org, repo, version string) (bool, error) {
	key, err := Key(org, repo, version)
	if err != nil {
		return false, err
	}
	return r.store.Exists(ctx, store.NamespaceMirrors, key)
}

// Create 新建镜像；键已存在时返回 apperr.ErrConflict。
func (r *Registry) Create(ctx context.Context, org, repo, version string, in Input) (string, error) {
	key, payload, err := r.prepare(org, repo, version, in)
	if err != nil {
		return "", err
	}
	created, err := r.store.SetNX(ctx, store.NamespaceMirrors, key, payload, 0)
	if err != nil {
		return "", err
	}
	if !created {
		return "", fmt.Errorf("%w: mirror %s", apperr.ErrConflict, key)
	}
	return key, nil
}

// Update 覆盖已有镜像；键不存在时返回 apperr.ErrNotFound。
func (r *Registry) Update(ctx context.Context, org, repo, version string, in Input) (string, error) {
	key, payload, err := r.prepare(org, repo, version, in)
	if err != nil {
		return "", err
	}
	exists, err := r.store.Exists(ctx, store.NamespaceMirrors, key)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: mirror %s", apperr.ErrNotFound, key)
	}
	if err := r.store.Set(ctx, store.NamespaceMirrors, key, payload, 0); err != nil {
		return "", err
	}
	return key, nil
}

// Get 读取镜像；不存在时返回 apperr.ErrNotFound。
func (r *Registry) Get(ctx context.Context, org, repo, version string) (Mirror, error) {
	key, err := Key(org, repo, version)
	if err != nil {
		return Mirror{}, err
	}
	raw, err := r.store.Get(ctx, store.NamespaceMirrors, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Mirror{}, fmt.Errorf("%w: mirror %s", apperr.ErrNotFound, key)
		}
		return Mirror{}, err
	}
	var rec Input
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Mirror{}, fmt.Errorf("decode mirror %s: %w", key, err)
	}
	if rec.Filenames == nil {
		rec.Filenames = []string{}
	}
	return Mirror{
		Repository: org + "/" + repo,
		Version:    version,
		CID:        rec.CID,
		Filenames:  rec.Filenames,
	}, nil
}

// Delete 删除镜像；不存在时返回 apperr.ErrNotFound。
func (r *Registry) Delete(ctx context.Context, org, repo, version string) (string, error) {
	key, err := Key(org, repo, version)
	if err != nil {
		return "", err
	}
	deleted, err := r.store.Delete(ctx, store.NamespaceMirrors, key)
	if err != nil {
		return "", err
	}
	if !deleted {
		return "", fmt.Errorf("%w: mirror %s", apperr.ErrNotFound, key)
	}
	return key, nil
}

func (r *Registry) prepare(org, repo, version string, in Input) (string, []byte, error) {
	key, err := Key(org, repo, version)
	if err != nil {
		return "", nil, err
	}
	if strings.TrimSpace(in.CID) == "" {
		return "", nil, fmt.Errorf("%w: cid is required", apperr.ErrBadRequest)
	}
	if in.Filenames == nil {
		in.Filenames = []string{}
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return "", nil, err
	}
	return key, payload, nil
}
