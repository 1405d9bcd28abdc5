package service

import (
	"errors"
	"fmt"
)

// 委外链路的错误分类，handler 按此映射HTTP状态码
var (
	// ErrUnauthenticated 未认证（无凭证或凭证无效）
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden 已认证但无权限或无租户归属
	ErrForbidden = errors.New("forbidden")
	// ErrFeatureNotAvailable 租户订阅未包含该功能，与权限不足区分开
	ErrFeatureNotAvailable = errors.New("feature_not_available")
	// ErrNotFound 记录不存在（令牌无效与记录缺失对外不作区分）
	ErrNotFound = errors.New("not found")
	// ErrExpired 令牌已过期（对外同样按 not found 收敛）
	ErrExpired = errors.New("expired")
)

// ValidationError 字段校验错误，携带出错字段的显示名
type ValidationError struct {
	Label   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("%s: %s", e.Label, e.Message)
	}
	return e.Message
}

// NewValidationError 创建字段校验错误
func NewValidationError(label, message string) *ValidationError {
	return &ValidationError{Label: label, Message: message}
}
