// Package apperr 定义组件之间共享的错误分类，路由层据此映射 HTTP 状态码。
package apperr

import (
	"errors"
	"net/http"
)

var (
	// ErrNotFound 表示 client/mirror/announcement/资源不存在。
	ErrNotFound = errors.New("not found")
	// ErrConflict 表示复合键已被占用。
	ErrConflict = errors.New("conflict")
	// ErrUnauthorized 覆盖缺失/无效/过期/被吊销的凭证以及权限不足。
	ErrUnauthorized = errors.New("unauthorized")
	// ErrBadRequest 表示缺少必填标识或参数非法。
	ErrBadRequest = errors.New("bad request")
	// ErrUpstreamUnavailable 表示上游返回非 2xx 或超时。
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Descriptor 是错误在 HTTP 边界上的表现形式。
type Descriptor struct {
	Status  int
	Code    string
	Message string
}

// Describe 将错误映射为 HTTP 描述；未分类错误一律视为 internal_error，
// 存储连接失败因此不会被误报为 404。
func Describe(err error) Descriptor {
	switch {
	case errors.Is(err, ErrNotFound):
		return Descriptor{Status: http.StatusNotFound, Code: "not_found", Message: "The requested resource was not found."}
	case errors.Is(err, ErrConflict):
		return Descriptor{Status: http.StatusConflict, Code: "conflict", Message: "A record already exists for the given key. Use PUT to update it."}
	case errors.Is(err, ErrUnauthorized):
		return Descriptor{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "The client is unauthorized to access this resource."}
	case errors.Is(err, ErrBadRequest):
		return Descriptor{Status: http.StatusBadRequest, Code: "bad_request", Message: badRequestMessage(err)}
	case errors.Is(err, ErrUpstreamUnavailable):
		return Descriptor{Status: http.StatusBadGateway, Code: "upstream_unavailable", Message: "The upstream platform is unavailable. Please try again later."}
	default:
		return Descriptor{Status: http.StatusInternalServerError, Code: "internal_error", Message: "An internal server error occurred. Please try again later."}
	}
}

// badRequestMessage 暴露调用方可修正的原因，例如缺失的字段名。
func badRequestMessage(err error) string {
	if err == nil || errors.Is(ErrBadRequest, err) {
		return "The request is missing a required identifier."
	}
	return err.Error()
}
