package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/store"
)

// AdminID 是启动时自动创建的管理员 client id。
const AdminID = "admin"

// secretBytes 为随机 secret 的熵，编码后约 43 个字符。
const secretBytes = 32

// Client 是对外暴露的 client；Secret 在 Generate/UpdateSecret 之后为明文，
// 从存储读取时只会是哈希。
type Client struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
	Admin  bool   `json:"admin"`
	Active bool   `json:"active"`
}

// record 是持久化格式，键为 client id。
type record struct {
	Secret string `json:"secret"`
	Admin  bool   `json:"admin"`
	Active bool   `json:"active"`
}

// RegistryOptions 控制管理员凭据的落盘位置。
type RegistryOptions struct {
	AdminCredentialsPath string
}

// Registry 管理 client 记录与 token 吊销。
type Registry struct {
	store    store.Store
	hasher   *Hasher
	denylist *Denylist
	logger   *logrus.Logger
	opts     RegistryOptions
	rand     io.Reader

	dummyOnce sync.Once
	dummyHash string
}

// NewRegistry 构建 client registry；logger 为空时丢弃日志。
func NewRegistry(s store.Store, hasher *Hasher, denylist *Denylist, logger *logrus.Logger, opts RegistryOptions) *Registry {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Registry{
		store:    s,
		hasher:   hasher,
		denylist: denylist,
		logger:   logger,
		opts:     opts,
		rand:     rand.Reader,
	}
}

// Generate 生成随机 id 与高熵 secret；明文 secret 仅在此返回一次。
func (r *Registry) Generate(admin bool) (Client, error) {
	secret, err := r.newSecret()
	if err != nil {
		return Client{}, err
	}
	return Client{ID: uuid.NewString(), Secret: secret, Admin: admin, Active: true}, nil
}

// Store 哈希 secret 后持久化 client。
func (r *Registry) Store(ctx context.Context, client Client) error {
	if client.ID == "" {
		return fmt.Errorf("%w: client id", apperr.ErrBadRequest)
	}
	payload, err := r.encode(client)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, store.NamespaceClients, client.ID, payload, 0)
}

// Exists 报告 client 是否存在。
func (r *Registry) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	return r.store.Exists(ctx, store.NamespaceClients, id)
}

// Get 返回 client；Secret 字段为存储的哈希。
func (r *Registry) Get(ctx context.Context, id string) (Client, error) {
	rec, err := r.load(ctx, id)
	if err != nil {
		return Client{}, err
	}
	return Client{ID: id, Secret: rec.Secret, Admin: rec.Admin, Active: rec.Active}, nil
}

// Delete 删除 client，返回删除前是否存在。
func (r *Registry) Delete(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	return r.store.Delete(ctx, store.NamespaceClients, id)
}

// Authenticate 校验 secret。client 不存在时同样执行一次哈希校验，
// 使"不存在"与"secret 错误"的耗时接近。
func (r *Registry) Authenticate(ctx context.Context, id, secret string) (bool, error) {
	rec, err := r.load(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		_, _ = r.hasher.Verify(r.dummy(), secret)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	ok, err := r.hasher.Verify(rec.Secret, secret)
	if err != nil {
		return false, fmt.Errorf("verify client %s: %w", id, err)
	}
	if !ok {
		return false, nil
	}

	if r.hasher.NeedsRehash(rec.Secret) {
		r.rehash(ctx, id, rec, secret)
	}
	return true, nil
}

// rehash 使用当前参数重算哈希；写入失败只记日志，旧哈希仍然有效。
func (r *Registry) rehash(ctx context.Context, id string, rec record, secret string) {
	hashed, err := r.hasher.Hash(secret)
	if err == nil {
		rec.Secret = hashed
		var payload []byte
		if payload, err = json.Marshal(rec); err == nil {
			err = r.store.Set(ctx, store.NamespaceClients, id, payload, 0)
		}
	}
	if err != nil {
		r.logger.WithFields(logrus.Fields{"action": "rehash", "client": id}).
			WithError(err).Warn("client_rehash_failed")
		return
	}
	r.logger.WithFields(logrus.Fields{"action": "rehash", "client": id}).Info("client_rehashed")
}

// IsAdmin 报告 client 是否为管理员。
func (r *Registry) IsAdmin(ctx context.Context, id string) (bool, error) {
	rec, err := r.load(ctx, id)
	if err != nil {
		return false, err
	}
	return rec.Admin, nil
}

// IsActive 报告 client 是否启用。
func (r *Registry) IsActive(ctx context.Context, id string) (bool, error) {
	rec, err := r.load(ctx, id)
	if err != nil {
		return false, err
	}
	return rec.Active, nil
}

// SetActive 修改启用状态；client 不存在时返回 apperr.ErrNotFound。
func (r *Registry) SetActive(ctx context.Context, id string, active bool) error {
	rec, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	rec.Active = active
	return r.save(ctx, id, rec)
}

// UpdateSecret 轮换 secret，返回新的明文 secret。
func (r *Registry) UpdateSecret(ctx context.Context, id string) (string, error) {
	rec, err := r.load(ctx, id)
	if err != nil {
		return "", err
	}
	secret, err := r.newSecret()
	if err != nil {
		return "", err
	}
	hashed, err := r.hasher.Hash(secret)
	if err != nil {
		return "", err
	}
	rec.Secret = hashed
	if err := r.save(ctx, id, rec); err != nil {
		return "", err
	}
	return secret, nil
}

// BanToken 吊销 jti。
func (r *Registry) BanToken(ctx context.Context, jti string) error {
	if jti == "" {
		return fmt.Errorf("%w: jti", apperr.ErrBadRequest)
	}
	return r.denylist.Add(ctx, jti)
}

// IsTokenBanned 报告 jti 是否已被吊销。
func (r *Registry) IsTokenBanned(ctx context.Context, jti string) (bool, error) {
	return r.denylist.Contains(ctx, jti)
}

// AuthChecks 仅在 client 存在、已启用且 jti 未被吊销时返回 true。
// client 不存在或已停用时顺带吊销该 jti；存储失败时返回 false 与错误。
func (r *Registry) AuthChecks(ctx context.Context, id, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}
	exists, err := r.Exists(ctx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, r.BanToken(ctx, jti)
	}

	active, err := r.IsActive(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return false, r.BanToken(ctx, jti)
		}
		return false, err
	}
	banned, err := r.IsTokenBanned(ctx, jti)
	if err != nil {
		return false, err
	}
	if !active {
		if !banned {
			return false, r.BanToken(ctx, jti)
		}
		return false, nil
	}
	return !banned, nil
}

// SetupAdmin 在 admin 不存在时创建管理员并把凭据写入本地文件，返回是否新建。
// 写文件失败时回滚 admin 记录，下次启动会重新生成。
func (r *Registry) SetupAdmin(ctx context.Context) (bool, error) {
	client, err := r.Generate(true)
	if err != nil {
		return false, err
	}
	client.ID = AdminID

	payload, err := r.encode(client)
	if err != nil {
		return false, err
	}
	created, err := r.store.SetNX(ctx, store.NamespaceClients, AdminID, payload, 0)
	if err != nil || !created {
		return false, err
	}

	if err := r.writeAdminCredentials(client); err != nil {
		if _, delErr := r.store.Delete(ctx, store.NamespaceClients, AdminID); delErr != nil {
			err = errors.Join(err, delErr)
		}
		return false, err
	}

	r.logger.WithFields(logrus.Fields{
		"action": "setup_admin",
		"client": AdminID,
		"file":   r.opts.AdminCredentialsPath,
	}).Info("admin_client_created")
	return true, nil
}

func (r *Registry) writeAdminCredentials(client Client) error {
	path := r.opts.AdminCredentialsPath
	if path == "" {
		return errors.New("admin credentials path not configured")
	}
	body, err := json.MarshalIndent(client, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create admin credentials dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append(body, '\n'), 0o600); err != nil {
		return fmt.Errorf("write admin credentials: %w", err)
	}
	return nil
}

func (r *Registry) load(ctx context.Context, id string) (record, error) {
	if id == "" {
		return record{}, fmt.Errorf("%w: client %q", apperr.ErrNotFound, id)
	}
	raw, err := r.store.Get(ctx, store.NamespaceClients, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return record{}, fmt.Errorf("%w: client %s", apperr.ErrNotFound, id)
		}
		return record{}, err
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return record{}, fmt.Errorf("decode client %s: %w", id, err)
	}
	return rec, nil
}

func (r *Registry) save(ctx context.Context, id string, rec record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, store.NamespaceClients, id, payload, 0)
}

func (r *Registry) encode(client Client) ([]byte, error) {
	hashed, err := r.hasher.Hash(client.Secret)
	if err != nil {
		return nil, err
	}
	return json.Marshal(record{Secret: hashed, Admin: client.Admin, Active: client.Active})
}

func (r *Registry) newSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := io.ReadFull(r.rand, buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// dummy 返回用于不存在 client 的占位哈希，首次使用时生成。
func (r *Registry) dummy() string {
	r.dummyOnce.Do(func() {
		hashed, err := r.hasher.Hash("release-hub-absent-client")
		if err != nil {
			return
		}
		r.dummyHash = hashed
	})
	return r.dummyHash
}
