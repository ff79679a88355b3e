// Package announcements 维护站点公告。公告只有一个全局槽位，创建即覆盖。
package announcements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/store"
)

// slotKey 是公告在 announcements 命名空间中的固定键。
const slotKey = "announcement"

// Type 是公告级别。
type Type string

const (
	TypeInfo    Type = "info"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Valid 报告级别是否受支持。
func (t Type) Valid() bool {
	switch t {
	case TypeInfo, TypeWarning, TypeError:
		return true
	}
	return false
}

// Announcement 是持久化格式，也是 GET 的响应体。
type Announcement struct {
	CreatedAt int64  `json:"created_at"`
	Author    string `json:"author"`
	Type      Type   `json:"type"`
	Title     string `json:"title"`
	Content   string `json:"content"`
}

// Input 是 POST 提交的字段。
type Input struct {
	Type    Type   `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Registry 读写公告槽位。
type Registry struct {
	store store.Store
	now   func() time.Time
}

// NewRegistry 构建公告注册表。
func NewRegistry(s store.Store) *Registry {
	return &Registry{store: s, now: time.Now}
}

// Create 写入公告并覆盖旧值，author 为发布者的 client id。
func (r *Registry) Create(ctx context.Context, author string, in Input) (Announcement, error) {
	if !in.Type.Valid() {
		return Announcement{}, fmt.Errorf("%w: type must be one of info, warning, error", apperr.ErrBadRequest)
	}
	if strings.TrimSpace(in.Title) == "" {
		return Announcement{}, fmt.Errorf("%w: title is required", apperr.ErrBadRequest)
	}
	a := Announcement{
		CreatedAt: r.now().Unix(),
		Author:    author,
		Type:      in.Type,
		Title:     in.Title,
		Content:   in.Content,
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return Announcement{}, err
	}
	if err := r.store.Set(ctx, store.NamespaceAnnouncements, slotKey, payload, 0); err != nil {
		return Announcement{}, err
	}
	return a, nil
}

// Exists 报告当前是否有公告。
func (r *Registry) Exists(ctx context.Context) (bool, error) {
	return r.store.Exists(ctx, store.NamespaceAnnouncements, slotKey)
}

// Get 读取公告；不存在时返回 apperr.ErrNotFound。
func (r *Registry) Get(ctx context.Context) (Announcement, error) {
	raw, err := r.store.Get(ctx, store.NamespaceAnnouncements, slotKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Announcement{}, fmt.Errorf("%w: announcement", apperr.ErrNotFound)
		}
		return Announcement{}, err
	}
	var a Announcement
	if err := json.Unmarshal(raw, &a); err != nil {
		return Announcement{}, fmt.Errorf("decode announcement: %w", err)
	}
	return a, nil
}

// Delete 删除公告；不存在时返回 apperr.ErrNotFound。
func (r *Registry) Delete(ctx context.Context) error {
	deleted, err := r.store.Delete(ctx, store.NamespaceAnnouncements, slotKey)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: announcement", apperr.ErrNotFound)
	}
	return nil
}
