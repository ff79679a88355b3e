package routes

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/server"
)

func registerClientRoutes(app *fiber.App, deps Deps, rate fiber.Handler, authn *server.Authenticator) {
	group := app.Group("/client", rate, authn.RequireAccess())

	group.Post("/", server.RequireAdmin(), func(c fiber.Ctx) error {
		admin, err := boolQuery(c, "admin", false)
		if err != nil {
			return err
		}
		client, err := deps.Clients.Generate(admin)
		if err != nil {
			return err
		}

		ctx, cancel := storeContext(c, deps)
		defer cancel()
		if err := deps.Clients.Store(ctx, client); err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(client)
	})

	self := server.RequireSelfOrAdmin("id")

	group.Delete("/:id", self, func(c fiber.Ctx) error {
		id := c.Params("id")
		ctx, cancel := storeContext(c, deps)
		defer cancel()
		deleted, err := deps.Clients.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: client %s", apperr.ErrNotFound, id)
		}
		return c.JSON(fiber.Map{"id": id, "deleted": true})
	})

	group.Patch("/:id/secret", self, func(c fiber.Ctx) error {
		id := c.Params("id")
		ctx, cancel := storeContext(c, deps)
		defer cancel()
		secret, err := deps.Clients.UpdateSecret(ctx, id)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"id": id, "secret": secret})
	})

	group.Patch("/:id/status", self, func(c fiber.Ctx) error {
		id := c.Params("id")
		if c.Query("active") == "" {
			return fmt.Errorf("%w: active query parameter is required", apperr.ErrBadRequest)
		}
		active, err := boolQuery(c, "active", false)
		if err != nil {
			return err
		}
		ctx, cancel := storeContext(c, deps)
		defer cancel()
		if err := deps.Clients.SetActive(ctx, id, active); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"id": id, "active": active})
	})
}

func boolQuery(c fiber.Ctx, name string, fallback bool) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", apperr.ErrBadRequest, name)
	}
	return value, nil
}
