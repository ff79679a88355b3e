package routes

import (
	"fmt"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/mirrors"
	"github.com/any-hub/release-hub/internal/server"
)

func registerMirrorRoutes(app *fiber.App, deps Deps, rate fiber.Handler, authn *server.Authenticator) {
	const path = "/mirrors/:org/:repo/:version"
	access := authn.RequireAccess()

	app.Get(path, rate, func(c fiber.Ctx) error {
		ctx, cancel := storeContext(c, deps)
		defer cancel()
		mirror, err := deps.Mirrors.Get(ctx, c.Params("org"), c.Params("repo"), c.Params("version"))
		if err != nil {
			return err
		}
		return c.JSON(mirror)
	})

	app.Post(path, rate, access, func(c fiber.Ctx) error {
		in, err := mirrorInput(c)
		if err != nil {
			return err
		}
		ctx, cancel := storeContext(c, deps)
		defer cancel()
		key, err := deps.Mirrors.Create(ctx, c.Params("org"), c.Params("repo"), c.Params("version"), in)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"created": true, "key": key})
	})

	app.Put(path, rate, access, func(c fiber.Ctx) error {
		in, err := mirrorInput(c)
		if err != nil {
			return err
		}
		ctx, cancel := storeContext(c, deps)
		defer cancel()
		key, err := deps.Mirrors.Update(ctx, c.Params("org"), c.Params("repo"), c.Params("version"), in)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"updated": true, "key": key})
	})

	app.Delete(path, rate, access, func(c fiber.Ctx) error {
		ctx, cancel := storeContext(c, deps)
		defer cancel()
		key, err := deps.Mirrors.Delete(ctx, c.Params("org"), c.Params("repo"), c.Params("version"))
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"deleted": true, "key": key})
	})
}

func mirrorInput(c fiber.Ctx) (mirrors.Input, error) {
	var in mirrors.Input
	if err := c.Bind().JSON(&in); err != nil {
		return mirrors.Input{}, fmt.Errorf("%w: invalid JSON body", apperr.ErrBadRequest)
	}
	return in, nil
}
