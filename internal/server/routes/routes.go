package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/release-hub/internal/announcements"
	"github.com/any-hub/release-hub/internal/auth"
	"github.com/any-hub/release-hub/internal/cache"
	"github.com/any-hub/release-hub/internal/config"
	"github.com/any-hub/release-hub/internal/mirrors"
	"github.com/any-hub/release-hub/internal/server"
	"github.com/any-hub/release-hub/internal/upstream"
)

// CacheHeader 标记响应来自缓存还是上游。
const CacheHeader = "X-Release-Hub-Cache"

// Fetcher 是路由层依赖的上游能力，*upstream.Client 实现了它。
type Fetcher interface {
	Tools(ctx context.Context, tools []config.ToolRepository) (upstream.ToolsPayload, error)
	PatchManifest(ctx context.Context, repo, selector, file string) (json.RawMessage, error)
	Contributors(ctx context.Context, repos []string, marker string) (upstream.ContributorsPayload, error)
	Changelog(ctx context.Context, repo, current, target string) (upstream.ChangelogPayload, error)
}

// Deps 汇总路由所需的协作者。
type Deps struct {
	Config        *config.Config
	Logger        *logrus.Logger
	Cache         *cache.Cache
	Upstream      Fetcher
	Clients       *auth.Registry
	Tokens        *auth.TokenIssuer
	Mirrors       *mirrors.Registry
	Announcements *announcements.Registry
	// Metrics 为 Prometheus exposition handler，为空时不注册 /-/metrics。
	Metrics http.Handler
}

func (d Deps) validate() error {
	switch {
	case d.Config == nil:
		return errors.New("routes: config is required")
	case d.Logger == nil:
		return errors.New("routes: logger is required")
	case d.Cache == nil:
		return errors.New("routes: cache is required")
	case d.Upstream == nil:
		return errors.New("routes: upstream fetcher is required")
	case d.Clients == nil || d.Tokens == nil:
		return errors.New("routes: client registry and token issuer are required")
	case d.Mirrors == nil || d.Announcements == nil:
		return errors.New("routes: mirror and announcement registries are required")
	}
	return nil
}

// storeTimeout 约束注册表类请求的存储调用。
func (d Deps) storeTimeout() time.Duration {
	return d.Config.Store.Timeout.DurationValue()
}

// fetchTimeout 约束读穿请求：一次缓存读写加一次上游调用。
func (d Deps) fetchTimeout() time.Duration {
	return d.Config.Store.Timeout.DurationValue()*2 + d.Config.Upstream.Timeout.DurationValue()
}

// Register 按固定顺序挂载全部路由：限流 → 认证 → 处理函数。
func Register(app *fiber.App, deps Deps) error {
	if app == nil {
		return errors.New("routes: app is required")
	}
	if err := deps.validate(); err != nil {
		return err
	}

	authn := server.NewAuthenticator(deps.Tokens, deps.Clients, deps.storeTimeout())
	rate := server.RateLimiter(deps.Config.RateLimit)

	registerPublicRoutes(app, deps, rate)
	registerAuthRoutes(app, deps, rate, authn)
	registerClientRoutes(app, deps, rate, authn)
	registerMirrorRoutes(app, deps, rate, authn)
	registerAnnouncementRoutes(app, deps, rate, authn)
	registerDiagnosticRoutes(app, deps, authn)
	return nil
}

// sendCached 写出缓存状态头与 JSON 响应体。
func sendCached(c fiber.Ctx, status cache.Status, body any) error {
	c.Set(CacheHeader, string(status))
	return c.JSON(body)
}

func fetchContext(c fiber.Ctx, deps Deps) (context.Context, context.CancelFunc) {
	return server.Timeout(c, deps.fetchTimeout())
}

func storeContext(c fiber.Ctx, deps Deps) (context.Context, context.CancelFunc) {
	return server.Timeout(c, deps.storeTimeout())
}
