package config

import (
	"errors"
	"fmt"
)

// ErrInvalid 匹配所有字段级校验错误，CLI 以此区分配置错误与 IO 错误。
var ErrInvalid = errors.New("invalid configuration")

// FieldError 记录出错字段的路径（如 Auth.SecretKey）与原因。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is 让 errors.Is(err, ErrInvalid) 对任意 FieldError 成立。
func (e FieldError) Is(target error) bool {
	return target == ErrInvalid
}

func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// sectionField 拼接列表/映射型字段路径，输出 Section[name] 形式。
func sectionField(section, name string) string {
	if name == "" {
		return section + "[]"
	}
	return fmt.Sprintf("%s[%s]", section, name)
}
