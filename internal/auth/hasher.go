package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ErrMalformedHash 表示存储的哈希无法解析，与口令不匹配是两种不同的结果。
var ErrMalformedHash = errors.New("malformed argon2id hash")

// HashParams 描述 argon2id 参数；Memory 单位为 KiB。
type HashParams struct {
	Memory     uint32
	Iterations uint32
	Threads    uint8
	SaltLength uint32
	KeyLength  uint32
}

// DefaultHashParams 返回 argon2id 的常用默认参数。
func DefaultHashParams() HashParams {
	return HashParams{
		Memory:     64 * 1024,
		Iterations: 3,
		Threads:    4,
		SaltLength: 16,
		KeyLength:  32,
	}
}

// Hasher 生成 PHC 格式的 argon2id 哈希：
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
type Hasher struct {
	params HashParams
	rand   io.Reader
}

// NewHasher 构建 Hasher，缺省字段回退到默认参数。
func NewHasher(params HashParams) *Hasher {
	def := DefaultHashParams()
	if params.Memory == 0 {
		params.Memory = def.Memory
	}
	if params.Iterations == 0 {
		params.Iterations = def.Iterations
	}
	if params.Threads == 0 {
		params.Threads = def.Threads
	}
	if params.SaltLength == 0 {
		params.SaltLength = def.SaltLength
	}
	if params.KeyLength == 0 {
		params.KeyLength = def.KeyLength
	}
	return &Hasher{params: params, rand: rand.Reader}
}

// Hash 使用随机盐对明文做单向哈希。
func (h *Hasher) Hash(plain string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(plain), salt, h.params.Iterations, h.params.Memory, h.params.Threads, h.params.KeyLength)
	return encodeHash(h.params, salt, key), nil
}

// Verify 以常量时间比较明文与哈希；哈希格式错误时返回 ErrMalformedHash。
func (h *Hasher) Verify(encoded, plain string) (bool, error) {
	params, salt, key, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	derived := argon2.IDKey([]byte(plain), salt, params.Iterations, params.Memory, params.Threads, params.KeyLength)
	return subtle.ConstantTimeCompare(derived, key) == 1, nil
}

// NeedsRehash 报告哈希是否由与当前配置不同的参数生成；无法解析的哈希同样需要重算。
func (h *Hasher) NeedsRehash(encoded string) bool {
	params, salt, _, err := decodeHash(encoded)
	if err != nil {
		return true
	}
	return params.Memory != h.params.Memory ||
		params.Iterations != h.params.Iterations ||
		params.Threads != h.params.Threads ||
		params.KeyLength != h.params.KeyLength ||
		uint32(len(salt)) != h.params.SaltLength
}

func encodeHash(params HashParams, salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		params.Memory, params.Iterations, params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

func decodeHash(encoded string) (HashParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return HashParams{}, nil, nil, ErrMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return HashParams{}, nil, nil, fmt.Errorf("%w: version: %v", ErrMalformedHash, err)
	}
	if version != argon2.Version {
		return HashParams{}, nil, nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedHash, version)
	}

	var params HashParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Threads); err != nil {
		return HashParams{}, nil, nil, fmt.Errorf("%w: params: %v", ErrMalformedHash, err)
	}
	if params.Memory == 0 || params.Iterations == 0 || params.Threads == 0 {
		return HashParams{}, nil, nil, fmt.Errorf("%w: zero params", ErrMalformedHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return HashParams{}, nil, nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return HashParams{}, nil, nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(key))
	return params, salt, key, nil
}
