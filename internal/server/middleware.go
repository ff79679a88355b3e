package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/limiter"

	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/auth"
	"github.com/any-hub/release-hub/internal/config"
)

// Authenticator 校验 bearer token 并执行 auth_checks。
type Authenticator struct {
	tokens  *auth.TokenIssuer
	clients *auth.Registry
	timeout time.Duration
}

// NewAuthenticator 构建认证中间件工厂；timeout 约束每次存储检查。
func NewAuthenticator(tokens *auth.TokenIssuer, clients *auth.Registry, timeout time.Duration) *Authenticator {
	return &Authenticator{tokens: tokens, clients: clients, timeout: timeout}
}

// RequireAccess 要求有效的 access token。
func (a *Authenticator) RequireAccess() fiber.Handler {
	return a.require(auth.TokenAccess)
}

// RequireRefresh 要求有效的 refresh token。
func (a *Authenticator) RequireRefresh() fiber.Handler {
	return a.require(auth.TokenRefresh)
}

func (a *Authenticator) require(typ auth.TokenType) fiber.Handler {
	return func(c fiber.Ctx) error {
		raw, ok := bearerToken(c)
		if !ok {
			return fmt.Errorf("%w: missing bearer token", apperr.ErrUnauthorized)
		}
		claims, err := a.tokens.Parse(raw, typ)
		if err != nil {
			return err
		}

		ctx, cancel := Timeout(c, a.timeout)
		defer cancel()
		valid, err := a.clients.AuthChecks(ctx, claims.Subject, claims.ID)
		if err != nil {
			return err
		}
		if !valid {
			return fmt.Errorf("%w: client %s or token revoked", apperr.ErrUnauthorized, claims.Subject)
		}

		c.Locals(contextKeyClaims, claims)
		return c.Next()
	}
}

// RequireAdmin 要求签名载荷中的 admin 声明；须在 RequireAccess 之后使用。
func RequireAdmin() fiber.Handler {
	return func(c fiber.Ctx) error {
		claims, ok := Claims(c)
		if !ok || !claims.Admin {
			return fmt.Errorf("%w: admin required", apperr.ErrUnauthorized)
		}
		return c.Next()
	}
}

// RequireSelfOrAdmin 允许管理员或路径参数 param 指向自身的 client。
func RequireSelfOrAdmin(param string) fiber.Handler {
	return func(c fiber.Ctx) error {
		target := strings.TrimSpace(c.Params(param))
		if target == "" {
			return fmt.Errorf("%w: missing client id", apperr.ErrBadRequest)
		}
		claims, ok := Claims(c)
		if !ok || (!claims.Admin && claims.Subject != target) {
			return fmt.Errorf("%w: not allowed to manage %s", apperr.ErrUnauthorized, target)
		}
		return c.Next()
	}
}

// Claims 返回认证中间件写入的 token 载荷。
func Claims(c fiber.Ctx) (*auth.Claims, bool) {
	if value := c.Locals(contextKeyClaims); value != nil {
		if claims, ok := value.(*auth.Claims); ok {
			return claims, true
		}
	}
	return nil, false
}

// RateLimiter 按客户端 IP 限流；Max <= 0 时关闭。
func RateLimiter(cfg config.RateLimitConfig) fiber.Handler {
	if cfg.Max <= 0 {
		return func(c fiber.Ctx) error { return c.Next() }
	}
	window := cfg.Window.DurationValue()
	if window <= 0 {
		window = time.Minute
	}
	return limiter.New(limiter.Config{
		Max:        cfg.Max,
		Expiration: window,
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorBody{
				Error:   "rate_limited",
				Message: "Too many requests. Please try again later.",
			})
		},
	})
}

func bearerToken(c fiber.Ctx) (string, bool) {
	header := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
