package routes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/cache"
	"github.com/any-hub/release-hub/internal/upstream"
)

func registerPublicRoutes(app *fiber.App, deps Deps, rate fiber.Handler) {
	cfg := deps.Config

	app.Get("/", func(c fiber.Ctx) error {
		return c.Redirect().Status(fiber.StatusMovedPermanently).To(cfg.Global.DocsURL)
	})

	ping := func(c fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) }
	app.Head("/ping", ping)
	app.Get("/ping", ping)

	app.Get("/tools", rate, func(c fiber.Ctx) error {
		ctx, cancel := fetchContext(c, deps)
		defer cancel()
		payload, status, err := cache.Load(ctx, deps.Cache, cache.KeyReleases, func(ctx context.Context) (upstream.ToolsPayload, error) {
			return deps.Upstream.Tools(ctx, cfg.Repositories.Tools)
		})
		if err != nil {
			return err
		}
		return sendCached(c, status, payload)
	})

	app.Get("/patches", rate, func(c fiber.Ctx) error {
		repos := cfg.Repositories
		if repos.PatchesRepository == "" {
			return fmt.Errorf("%w: no patches repository configured", apperr.ErrNotFound)
		}
		ctx, cancel := fetchContext(c, deps)
		defer cancel()
		payload, status, err := cache.Load(ctx, deps.Cache, cache.KeyPatches, func(ctx context.Context) (json.RawMessage, error) {
			return deps.Upstream.PatchManifest(ctx, repos.PatchesRepository, repos.PatchesTag, repos.PatchesFile)
		})
		if err != nil {
			return err
		}
		c.Set(CacheHeader, string(status))
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(payload)
	})

	app.Get("/contributors", rate, func(c fiber.Ctx) error {
		ctx, cancel := fetchContext(c, deps)
		defer cancel()
		payload, status, err := cache.Load(ctx, deps.Cache, cache.KeyContributors, func(ctx context.Context) (upstream.ContributorsPayload, error) {
			return deps.Upstream.Contributors(ctx, contributorRepositories(deps), cfg.Repositories.ContributorsMarker)
		})
		if err != nil {
			return err
		}
		return sendCached(c, status, payload)
	})

	app.Get("/changelogs/:org/:repo/:current/:target?", rate, func(c fiber.Ctx) error {
		org, repo, current := c.Params("org"), c.Params("repo"), c.Params("current")
		if strings.TrimSpace(org) == "" || strings.TrimSpace(repo) == "" || strings.TrimSpace(current) == "" {
			return fmt.Errorf("%w: org, repo and current version are required", apperr.ErrBadRequest)
		}
		target := c.Params("target")
		if target == "" {
			target = upstream.SelectorLatest
		}
		repository := org + "/" + repo

		ctx, cancel := fetchContext(c, deps)
		defer cancel()
		key := cache.CommitsKey(repository, current, target)
		payload, status, err := cache.Load(ctx, deps.Cache, key, func(ctx context.Context) (upstream.ChangelogPayload, error) {
			return deps.Upstream.Changelog(ctx, repository, current, target)
		})
		if err != nil {
			return err
		}
		return sendCached(c, status, payload)
	})

	app.Get("/socials", rate, func(c fiber.Ctx) error {
		socials := cfg.Socials
		if socials == nil {
			socials = map[string]string{}
		}
		return c.JSON(socials)
	})
}

// contributorRepositories 未配置 Contributors 时回退到工具仓库与补丁仓库。
func contributorRepositories(deps Deps) []string {
	repos := deps.Config.Repositories
	if len(repos.Contributors) > 0 {
		return repos.Contributors
	}
	seen := map[string]struct{}{}
	var result []string
	add := func(repo string) {
		if repo == "" {
			return
		}
		if _, ok := seen[repo]; ok {
			return
		}
		seen[repo] = struct{}{}
		result = append(result, repo)
	}
	for _, tool := range repos.Tools {
		add(tool.Repository)
	}
	add(repos.PatchesRepository)
	return result
}
