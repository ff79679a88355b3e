package routes

import (
	"fmt"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/release-hub/internal/announcements"
	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/server"
)

func registerAnnouncementRoutes(app *fiber.App, deps Deps, rate fiber.Handler, authn *server.Authenticator) {
	group := app.Group("/announcement", rate)
	access := authn.RequireAccess()

	group.Get("/", func(c fiber.Ctx) error {
		ctx, cancel := storeContext(c, deps)
		defer cancel()
		a, err := deps.Announcements.Get(ctx)
		if err != nil {
			return err
		}
		return c.JSON(a)
	})

	group.Post("/", access, func(c fiber.Ctx) error {
		var in announcements.Input
		if err := c.Bind().JSON(&in); err != nil {
			return fmt.Errorf("%w: invalid JSON body", apperr.ErrBadRequest)
		}
		claims, _ := server.Claims(c)
		ctx, cancel := storeContext(c, deps)
		defer cancel()
		if _, err := deps.Announcements.Create(ctx, claims.Subject, in); err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"created": true})
	})

	group.Delete("/", access, func(c fiber.Ctx) error {
		ctx, cancel := storeContext(c, deps)
		defer cancel()
		if err := deps.Announcements.Delete(ctx); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"deleted": true})
	})
}
