package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/service"
)

// DispatchHandler 委外请求外发接口
type DispatchHandler struct {
	svc *service.DispatchService
}

func NewDispatchHandler(svc *service.DispatchService) *DispatchHandler {
	return &DispatchHandler{svc: svc}
}

// DispatchRequest 外发请求体
type DispatchRequest struct {
	ExternalJobID string `json:"externalJobId" binding:"required"`
	Comment       string `json:"comment"`
}

// Dispatch 向合作方外发委外请求
// POST /api/v1/external-jobs/dispatch
func (h *DispatchHandler) Dispatch(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少委外单ID"})
		return
	}

	result, err := h.svc.Dispatch(c.Request.Context(), GetUserID(c), req.ExternalJobID, req.Comment, RequestOrigin(c))
	if err != nil {
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"expiresAt": result.ExpiresAt,
	})
}

// DispatchContext 外发确认弹窗数据
// GET /api/v1/external-jobs/:id/dispatch-context
func (h *DispatchHandler) DispatchContext(c *gin.Context) {
	view, err := h.svc.LoadDispatchContext(c.Request.Context(), GetUserID(c), c.Param("id"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
