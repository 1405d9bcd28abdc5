package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/service"
)

// RespondHandler 合作方回单接口，凭令牌访问，不做账号认证
type RespondHandler struct {
	svc *service.ResponseService
}

func NewRespondHandler(svc *service.ResponseService) *RespondHandler {
	return &RespondHandler{svc: svc}
}

// View 回单页数据
// GET /external-jobs/respond/:token
func (h *RespondHandler) View(c *gin.Context) {
	view, err := h.svc.View(c.Request.Context(), c.Param("token"))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Submit 合作方回单提交
// POST /external-jobs/respond/:token，仅接受 multipart 表单
func (h *RespondHandler) Submit(c *gin.Context) {
	if c.ContentType() != "multipart/form-data" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求必须是 multipart/form-data"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "表单解析失败"})
		return
	}

	input := &service.SubmissionInput{
		PartnerOrderNo: c.PostForm("partnerOrderNumber"),
		CompletionDate: c.PostForm("completionDate"),
		Note:           c.PostForm("note"),
		FieldInputs:    make(map[string]string),
	}

	// 动态字段按 field_<字段ID> 约定提交
	for key, values := range form.Value {
		if fieldID := strings.TrimPrefix(key, "field_"); fieldID != key && len(values) > 0 {
			input.FieldInputs[fieldID] = values[0]
		}
	}

	// 附件可选，最多一个
	if files := form.File["file"]; len(files) > 0 {
		fh := files[0]
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "附件读取失败"})
			return
		}
		defer f.Close()
		input.File = &service.SubmissionFile{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Reader:      f,
		}
	}

	if err := h.svc.Submit(c.Request.Context(), c.Param("token"), input); err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
