package routes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/auth"
	"github.com/any-hub/release-hub/internal/server"
)

type credentials struct {
	ID     string `json:"id"`
	Secret string `json:"secret"`
}

func registerAuthRoutes(app *fiber.App, deps Deps, rate fiber.Handler, authn *server.Authenticator) {
	group := app.Group("/auth", rate)

	group.Post("/", func(c fiber.Ctx) error {
		var in credentials
		if err := c.Bind().JSON(&in); err != nil {
			return fmt.Errorf("%w: invalid JSON body", apperr.ErrBadRequest)
		}
		if strings.TrimSpace(in.ID) == "" || in.Secret == "" {
			return fmt.Errorf("%w: id and secret are required", apperr.ErrBadRequest)
		}

		ctx, cancel := storeContext(c, deps)
		defer cancel()

		ok, err := deps.Clients.Authenticate(ctx, in.ID, in.Secret)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrUnauthorized
		}
		client, err := activeClient(ctx, deps.Clients, in.ID)
		if err != nil {
			return err
		}

		pair, err := deps.Tokens.Issue(client.ID, client.Admin)
		if err != nil {
			return err
		}
		return c.JSON(pair)
	})

	group.Post("/refresh", authn.RequireRefresh(), func(c fiber.Ctx) error {
		claims, _ := server.Claims(c)
		access, err := deps.Tokens.Reissue(claims)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"access_token": access})
	})

	group.Post("/revoke", authn.RequireAccess(), func(c fiber.Ctx) error {
		claims, _ := server.Claims(c)
		ctx, cancel := storeContext(c, deps)
		defer cancel()
		if err := deps.Clients.BanToken(ctx, claims.ID); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"revoked": true})
	})
}

// activeClient 读取刚通过校验的 client。校验后被并发删除或已停用的 client
// 与凭据错误一样返回 ErrUnauthorized。
func activeClient(ctx context.Context, clients *auth.Registry, id string) (auth.Client, error) {
	client, err := clients.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return auth.Client{}, apperr.ErrUnauthorized
	}
	if err != nil {
		return auth.Client{}, err
	}
	if !client.Active {
		return auth.Client{}, apperr.ErrUnauthorized
	}
	return client, nil
}
