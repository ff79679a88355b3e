package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/release-hub/internal/announcements"
	"github.com/any-hub/release-hub/internal/auth"
	"github.com/any-hub/release-hub/internal/cache"
	"github.com/any-hub/release-hub/internal/config"
	"github.com/any-hub/release-hub/internal/mirrors"
	"github.com/any-hub/release-hub/internal/server"
	"github.com/any-hub/release-hub/internal/server/routes"
	"github.com/any-hub/release-hub/internal/store"
	"github.com/any-hub/release-hub/internal/upstream"
)

// service 持有进程级资源，Close 释放 Store 连接。
type service struct {
	app   *fiber.App
	store store.Store
}

func (s *service) Close() error {
	if s == nil || s.store == nil {
		return nil
	}
	return s.store.Close()
}

// bootstrap 按配置组装全部组件并完成管理员初始化。
func bootstrap(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*service, error) {
	backend, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("打开存储失败: %w", err)
	}
	st := store.WithLogging(backend, logger)

	svc, err := assemble(ctx, cfg, logger, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return svc, nil
}

func assemble(ctx context.Context, cfg *config.Config, logger *logrus.Logger, st store.Store) (*service, error) {
	storeTimeout := cfg.Store.Timeout.DurationValue()

	pingCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	err := st.Ping(pingCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("存储不可用: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := cache.NewMetrics(registry)

	upstreamOpts := upstream.OptionsFromConfig(cfg.Upstream)
	upstreamOpts.Logger = logger
	upstreamOpts.Hooks = upstream.Hooks{
		OnResponse: func(req *http.Request, status int, elapsed time.Duration, _ error) {
			metrics.ObserveUpstream(upstream.EndpointLabel(req.URL), status, elapsed)
		},
	}
	client, err := upstream.New(upstreamOpts)
	if err != nil {
		return nil, fmt.Errorf("构建上游客户端失败: %w", err)
	}

	tokens, err := auth.NewTokenIssuer(
		cfg.Auth.SecretKey,
		cfg.Auth.AccessTokenTTL.DurationValue(),
		cfg.Auth.RefreshTokenTTL.DurationValue(),
	)
	if err != nil {
		return nil, fmt.Errorf("构建 token 签发器失败: %w", err)
	}

	hasher := auth.NewHasher(auth.HashParams{
		Memory:     cfg.Auth.Argon2Memory,
		Iterations: cfg.Auth.Argon2Iterations,
		Threads:    cfg.Auth.Argon2Threads,
	})
	clients := auth.NewRegistry(st, hasher, auth.NewDenylist(st, tokens.RefreshTTL()), logger, auth.RegistryOptions{
		AdminCredentialsPath: cfg.Auth.AdminCredentialsPath,
	})

	setupCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	created, err := clients.SetupAdmin(setupCtx)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("初始化管理员失败: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"action":  "setup_admin",
		"created": created,
		"path":    cfg.Auth.AdminCredentialsPath,
	}).Info("管理员检查完成")

	app, err := server.NewApp(server.AppOptions{Logger: logger, ListenPort: cfg.Global.ListenPort})
	if err != nil {
		return nil, err
	}
	err = routes.Register(app, routes.Deps{
		Config: cfg,
		Logger: logger,
		Cache: cache.New(st, cache.Options{
			TTL:     cfg.Cache.TTL.DurationValue(),
			Metrics: metrics,
			Logger:  logger,
		}),
		Upstream:      client,
		Clients:       clients,
		Tokens:        tokens,
		Mirrors:       mirrors.NewRegistry(st),
		Announcements: announcements.NewRegistry(st),
		Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})
	if err != nil {
		return nil, errors.Join(errors.New("注册路由失败"), err)
	}

	return &service{app: app, store: st}, nil
}
