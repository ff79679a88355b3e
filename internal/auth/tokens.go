package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/any-hub/release-hub/internal/apperr"
)

// TokenType 区分 access 与 refresh token，二者不可互换使用。
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// Claims 是签名载荷；admin 只从验签后的载荷读取。
type Claims struct {
	Admin bool      `json:"admin"`
	Type  TokenType `json:"type"`
	Fresh bool      `json:"fresh,omitempty"`
	jwt.RegisteredClaims
}

// TokenPair 是 /auth 的响应体。
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// TokenIssuer 使用 HS256 签发与校验 token。
type TokenIssuer struct {
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer 构建签发器；secret 为空时返回错误。
func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, errors.New("token secret required")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("token lifetimes must be positive")
	}
	return &TokenIssuer{
		key:        []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// RefreshTTL 返回 refresh token 寿命，denylist 以此作为条目过期时间。
func (i *TokenIssuer) RefreshTTL() time.Duration {
	return i.refreshTTL
}

// Issue 为通过 secret 认证的 client 签发 access + refresh token。
func (i *TokenIssuer) Issue(subject string, admin bool) (TokenPair, error) {
	access, err := i.sign(subject, admin, TokenAccess, true, i.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := i.sign(subject, admin, TokenRefresh, false, i.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh 校验 refresh token 并签发新的非 fresh access token，admin 声明原样复制。
func (i *TokenIssuer) Refresh(raw string) (string, *Claims, error) {
	claims, err := i.Parse(raw, TokenRefresh)
	if err != nil {
		return "", nil, err
	}
	access, err := i.Reissue(claims)
	if err != nil {
		return "", nil, err
	}
	return access, claims, nil
}

// Reissue 基于已验签的 refresh 载荷签发非 fresh 的 access token。
func (i *TokenIssuer) Reissue(refresh *Claims) (string, error) {
	if refresh == nil || refresh.Type != TokenRefresh {
		return "", fmt.Errorf("%w: refresh claims required", apperr.ErrUnauthorized)
	}
	return i.sign(refresh.Subject, refresh.Admin, TokenAccess, false, i.accessTTL)
}

// Parse 校验签名、算法、有效期与 token 类型，任何失败都归入 apperr.ErrUnauthorized。
func (i *TokenIssuer) Parse(raw string, want TokenType) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return i.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUnauthorized, err)
	}
	if !token.Valid {
		return nil, apperr.ErrUnauthorized
	}
	if claims.Type != want {
		return nil, fmt.Errorf("%w: expected %s token, got %q", apperr.ErrUnauthorized, want, claims.Type)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing sub or jti", apperr.ErrUnauthorized)
	}
	return claims, nil
}

func (i *TokenIssuer) sign(subject string, admin bool, typ TokenType, fresh bool, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		Admin: admin,
		Type:  typ,
		Fresh: fresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", typ, err)
	}
	return signed, nil
}
