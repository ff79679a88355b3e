package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// persistentModTime 标记永不过期的条目；其余条目的 modtime 即过期时间。
var persistentModTime = time.Unix(0, 0)

// NewFileStore 以 basePath 为根目录构建文件后端，布局为：
//
//	<basePath>/<namespace>/<escaped key>.entry
//
// 写入通过临时文件 + rename 保证原子性。
func NewFileStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
		now:      time.Now,
	}, nil
}

// fileStore 通过 entryLock 避免同一键并发写入；仅保证单进程内的 SetNX 语义。
type fileStore struct {
	basePath string
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Get(ctx context.Context, ns Namespace, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filePath, err := s.entryPath(ns, key)
	if err != nil {
		return nil, err
	}

	unlock := s.lockEntry(ns, key)
	defer unlock()

	if ok, err := s.live(ns, filePath); err != nil || !ok {
		if err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, unavailable("READ", ns, err)
	}
	return data, nil
}

func (s *fileStore) Set(ctx context.Context, ns Namespace, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	filePath, err := s.entryPath(ns, key)
	if err != nil {
		return err
	}

	unlock := s.lockEntry(ns, key)
	defer unlock()

	return s.write(ns, filePath, value, ttl)
}

func (s *fileStore) SetNX(ctx context.Context, ns Namespace, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	filePath, err := s.entryPath(ns, key)
	if err != nil {
		return false, err
	}

	unlock := s.lockEntry(ns, key)
	defer unlock()

	exists, err := s.live(ns, filePath)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := s.write(ns, filePath, value, ttl); err != nil {
		return false, err
	}
	return true, nil
}

func (s *fileStore) Exists(ctx context.Context, ns Namespace, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	filePath, err := s.entryPath(ns, key)
	if err != nil {
		return false, err
	}

	unlock := s.lockEntry(ns, key)
	defer unlock()

	return s.live(ns, filePath)
}

func (s *fileStore) Delete(ctx context.Context, ns Namespace, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	filePath, err := s.entryPath(ns, key)
	if err != nil {
		return false, err
	}

	unlock := s.lockEntry(ns, key)
	defer unlock()

	existed, err := s.live(ns, filePath)
	if err != nil {
		return false, err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, unavailable("REMOVE", ns, err)
	}
	return existed, nil
}

func (s *fileStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(s.basePath)
	if err != nil {
		return unavailable("STAT", "", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrUnavailable, s.basePath)
	}
	return nil
}

func (s *fileStore) Close() error {
	return nil
}

// live 报告条目是否存在且未过期，过期条目会被顺带删除。调用方需持有条目锁。
func (s *fileStore) live(ns Namespace, filePath string) (bool, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, unavailable("STAT", ns, err)
	}
	if info.IsDir() {
		return false, nil
	}
	deadline := info.ModTime()
	if deadline.Equal(persistentModTime) || s.now().Before(deadline) {
		return true, nil
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, unavailable("REMOVE", ns, err)
	}
	return false, nil
}

func (s *fileStore) write(ns Namespace, filePath string, value []byte, ttl time.Duration) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return unavailable("MKDIR", ns, err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".entry-*")
	if err != nil {
		return unavailable("CREATE", ns, err)
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(value)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return unavailable("WRITE", ns, err)
	}

	deadline := persistentModTime
	if ttl > 0 {
		deadline = s.now().Add(ttl)
	}
	if err := os.Chtimes(tempName, deadline, deadline); err != nil {
		os.Remove(tempName)
		return unavailable("CHTIMES", ns, err)
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return unavailable("RENAME", ns, err)
	}
	return nil
}

func (s *fileStore) lockEntry(ns Namespace, key string) func() {
	lockKey := string(ns) + "::" + key
	s.mu.Lock()
	lock := s.locks[lockKey]
	if lock == nil {
		lock = &entryLock{}
		s.locks[lockKey] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, lockKey)
		}
		s.mu.Unlock()
	}
}

// entryPath 将键转义为单一文件名，org/repo/version 之类的复合键不会生成子目录。
func (s *fileStore) entryPath(ns Namespace, key string) (string, error) {
	if ns == "" {
		return "", errors.New("namespace required")
	}
	if err := validKey(key); err != nil {
		return "", err
	}
	name := url.PathEscape(key)
	if name == "." || name == ".." || strings.HasPrefix(name, ".entry-") {
		return "", ErrInvalidKey
	}

	root := filepath.Join(s.basePath, string(ns))
	filePath := filepath.Join(root, name+".entry")
	if filepath.Dir(filePath) != root {
		return "", ErrInvalidKey
	}
	return filePath, nil
}
