// Package upstream 封装对代码托管平台 REST API 的访问：发布列表、补丁清单、
// 贡献者与 changelog。所有失败统一归入 apperr.ErrUpstreamUnavailable。
package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/any-hub/release-hub/internal/apperr"
	"github.com/any-hub/release-hub/internal/config"
	"github.com/any-hub/release-hub/internal/logging"
	"github.com/any-hub/release-hub/internal/version"
)

// maxBodyBytes 限制单次响应体大小。
const maxBodyBytes = 32 << 20

// Hooks 在每次上游请求前后被调用，供日志与指标使用。
type Hooks struct {
	OnRequest  func(req *http.Request)
	OnResponse func(req *http.Request, status int, elapsed time.Duration, err error)
}

// Options 描述上游客户端参数。
type Options struct {
	BaseURL           string
	Token             string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	HTTPClient        *http.Client
	Logger            *logrus.Logger
	Hooks             Hooks
}

// OptionsFromConfig 将 [Upstream] 配置映射为 Options。
func OptionsFromConfig(cfg config.UpstreamConfig) Options {
	return Options{
		BaseURL:           cfg.BaseURL,
		Token:             cfg.Token,
		Timeout:           cfg.Timeout.DurationValue(),
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	}
}

// Client 是上游 API 客户端，可被多个 goroutine 共享。
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *logrus.Logger
	hooks   Hooks
}

// New 构建 Client；RequestsPerSecond <= 0 表示不限速。
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse upstream base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("upstream base url must be absolute: %q", opts.BaseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient(opts.Timeout)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &Client{
		base:    base,
		token:   opts.Token,
		http:    httpClient,
		limiter: limiter,
		logger:  logger,
		hooks:   opts.Hooks,
	}, nil
}

// apiURL 拼接 BaseURL 与 API 路径。
func (c *Client) apiURL(path string) string {
	return c.base.String() + path
}

// get 执行 GET 请求并返回响应体；非 2xx 或传输错误均为 ErrUpstreamUnavailable。
func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate wait: %v", apperr.ErrUpstreamUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.token != "" && c.sameHost(req.URL) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if c.hooks.OnRequest != nil {
		c.hooks.OnRequest(req)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.observe(req, 0, started, err)
		return nil, fmt.Errorf("%w: GET %s: %v", apperr.ErrUpstreamUnavailable, target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		c.observe(req, resp.StatusCode, started, err)
		return nil, fmt.Errorf("%w: read %s: %v", apperr.ErrUpstreamUnavailable, target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := fmt.Errorf("%w: GET %s: status %d", apperr.ErrUpstreamUnavailable, target, resp.StatusCode)
		c.observe(req, resp.StatusCode, started, statusErr)
		return nil, statusErr
	}

	c.observe(req, resp.StatusCode, started, nil)
	return body, nil
}

// sameHost 仅向 API 主机发送 token，资源下载地址可能位于其他主机。
func (c *Client) sameHost(u *url.URL) bool {
	return strings.EqualFold(u.Host, c.base.Host)
}

func (c *Client) observe(req *http.Request, status int, started time.Time, err error) {
	fields := logging.UpstreamFields(req.Method, req.URL.String(), status, started)
	if err != nil {
		c.logger.WithFields(fields).WithError(err).Warn("upstream_request_failed")
	} else {
		c.logger.WithFields(fields).Debug("upstream_request")
	}
	if c.hooks.OnResponse != nil {
		c.hooks.OnResponse(req, status, time.Since(started), err)
	}
}

// EndpointLabel 将请求 URL 归类为低基数的指标标签：releases、latest_release、
// contributors，其余（例如资产下载）为 asset。
func EndpointLabel(u *url.URL) string {
	if u == nil {
		return "unknown"
	}
	path := strings.TrimRight(u.Path, "/")
	switch {
	case strings.HasSuffix(path, "/releases/latest"):
		return "latest_release"
	case strings.HasSuffix(path, "/releases"):
		return "releases"
	case strings.HasSuffix(path, "/contributors"):
		return "contributors"
	default:
		return "asset"
	}
}
