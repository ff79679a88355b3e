package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供请求 ID/方法/路径/状态字段，供访问日志复用。
func RequestFields(requestID, method, path string, status int, started time.Time) logrus.Fields {
	return logrus.Fields{
		"action":     "request",
		"request_id": requestID,
		"method":     method,
		"path":       path,
		"status":     status,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
}

// StoreFields 描述一次 Secret Store 操作。
func StoreFields(op, namespace, key string) logrus.Fields {
	return logrus.Fields{
		"action":    "store",
		"op":        op,
		"namespace": namespace,
		"key":       key,
	}
}

// CacheFields 描述读穿缓存的命中状态。
func CacheFields(resource, key string, hit bool) logrus.Fields {
	status := "miss"
	if hit {
		status = "hit"
	}
	return logrus.Fields{
		"action":   "cache",
		"resource": resource,
		"key":      key,
		"cache":    status,
	}
}

// UpstreamFields 描述一次上游 HTTP 调用。
func UpstreamFields(method, url string, status int, started time.Time) logrus.Fields {
	return logrus.Fields{
		"action":     "upstream",
		"method":     method,
		"upstream":   url,
		"status":     status,
		"elapsed_ms": time.Since(started).Milliseconds(),
	}
}
