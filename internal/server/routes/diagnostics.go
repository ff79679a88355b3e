package routes

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"

	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/cache"
	"github.com/any-hub/release-hub/internal/server"
)

// registerDiagnosticRoutes 暴露 /-/ 下的诊断接口：资源目录、缓存失效与指标。
func registerDiagnosticRoutes(app *fiber.App, deps Deps, authn *server.Authenticator) {
	catalogue := deps.Cache.Catalogue()

	app.Get("/-/resources", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"resources": encodeResources(catalogue.List())})
	})

	app.Get("/-/resources/:key", func(c fiber.Ctx) error {
		key := strings.ToLower(strings.TrimSpace(c.Params("key")))
		for _, res := range catalogue.List() {
			if res.Key == key {
				return c.JSON(encodeResource(res))
			}
		}
		return fmt.Errorf("%w: resource %s", apperr.ErrNotFound, key)
	})

	app.Delete("/-/cache/*", authn.RequireAccess(), server.RequireAdmin(), func(c fiber.Ctx) error {
		key, err := url.PathUnescape(c.Params("*"))
		if err != nil || strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w: cache key", apperr.ErrBadRequest)
		}
		ctx, cancel := storeContext(c, deps)
		defer cancel()
		deleted, err := deps.Cache.Invalidate(ctx, key)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: cache entry %s", apperr.ErrNotFound, key)
		}
		return c.JSON(fiber.Map{"key": key, "deleted": true})
	})

	if deps.Metrics != nil {
		app.Get("/-/metrics", adaptor.HTTPHandler(deps.Metrics))
	}
}

type resourcePayload struct {
	Key           string `json:"key"`
	Description   string `json:"description"`
	Endpoint      string `json:"endpoint"`
	Parameterized bool   `json:"parameterized"`
	TTLSeconds    int64  `json:"ttl_seconds"`
}

func encodeResources(items []cache.Resource) []resourcePayload {
	result := make([]resourcePayload, 0, len(items))
	for _, res := range items {
		result = append(result, encodeResource(res))
	}
	return result
}

func encodeResource(res cache.Resource) resourcePayload {
	return resourcePayload{
		Key:           res.Key,
		Description:   res.Description,
		Endpoint:      res.Endpoint,
		Parameterized: res.Parameterized,
		TTLSeconds:    int64(res.TTL / time.Second),
	}
}
