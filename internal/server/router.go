package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/logging"
)

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	ListenPort int
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

const (
	contextKeyRequestID = "_releasehub_request_id"
	contextKeyClaims    = "_releasehub_claims"
)

// NewApp builds a Fiber application with request ids, access logging and
// structured error handling. Routes are registered by the caller.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	handleError := errorHandler(opts.Logger)
	app := fiber.New(fiber.Config{
		AppName:       "release-hub",
		CaseSensitive: true,
		ErrorHandler:  handleError,
	})

	app.Use(requestContextMiddleware(opts.Logger, handleError))
	app.Use(recover.New())

	return app, nil
}

// requestContextMiddleware 生成请求 ID，并在链路结束后输出访问日志。
func requestContextMiddleware(logger *logrus.Logger, handleError fiber.ErrorHandler) fiber.Handler {
	return func(c fiber.Ctx) error {
		started := time.Now()
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		if err := c.Next(); err != nil {
			if herr := handleError(c, err); herr != nil {
				return herr
			}
		}

		status := c.Response().StatusCode()
		entry := logger.WithFields(logging.RequestFields(reqID, c.Method(), c.Path(), status, started))
		if status >= fiber.StatusInternalServerError {
			entry.Warn("request")
		} else {
			entry.Info("request")
		}
		return nil
	}
}

// errorHandler 将错误映射为 {error, message}；5xx 会额外记录原始错误。
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(ErrorBody{Error: codeForStatus(fe.Code), Message: fe.Message})
		}

		desc := apperr.Describe(err)
		if desc.Status >= fiber.StatusInternalServerError {
			logger.WithFields(logrus.Fields{
				"action":     "error",
				"request_id": RequestID(c),
				"path":       c.Path(),
			}).WithError(err).Error("request_failed")
		}
		return c.Status(desc.Status).JSON(ErrorBody{Error: desc.Code, Message: desc.Message})
	}
}

func codeForStatus(status int) string {
	if status == fiber.StatusTooManyRequests {
		return "rate_limited"
	}
	text := http.StatusText(status)
	if text == "" {
		return "error"
	}
	return strings.ReplaceAll(strings.ToLower(text), " ", "_")
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

// Timeout 派生带超时的 context，所有存储与上游调用都应使用它。
func Timeout(c fiber.Ctx, d time.Duration) (context.Context, context.CancelFunc) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
