package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/service"
)

// Handlers 委外模块处理器集合
type Handlers struct {
	Dispatch *DispatchHandler
	Respond  *RespondHandler
}

// NewHandlers 创建委外模块处理器集合
func NewHandlers(svc *service.Services) *Handlers {
	return &Handlers{
		Dispatch: NewDispatchHandler(svc.Dispatch),
		Respond:  NewRespondHandler(svc.Response),
	}
}

// GetUserID 从上下文获取当前用户ID（JWT中间件写入）
func GetUserID(c *gin.Context) string {
	return c.GetString("user_id")
}

// RequestOrigin 推导请求来源，用于拼接对外链接
// 优先 Origin 头，其次 X-Forwarded-Proto/Host，推不出来返回空串由配置兜底。
func RequestOrigin(c *gin.Context) string {
	if origin := c.GetHeader("Origin"); origin != "" {
		return origin
	}
	host := c.GetHeader("X-Forwarded-Host")
	if host == "" {
		return ""
	}
	proto := c.GetHeader("X-Forwarded-Proto")
	if proto == "" {
		proto = "https"
	}
	return proto + "://" + host
}

// WriteError 服务层错误映射到HTTP响应
// 令牌无效与过期对外统一按404收敛，权限不足与功能未购买分开返回。
func WriteError(c *gin.Context, err error) {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{"error": ve.Error()})
	case errors.Is(err, service.ErrUnauthenticated):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, service.ErrFeatureNotAvailable):
		c.JSON(http.StatusForbidden, gin.H{"error": "feature_not_available"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "permission_denied"})
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrExpired):
		c.JSON(http.StatusNotFound, gin.H{"error": "请求不存在或链接已失效"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
