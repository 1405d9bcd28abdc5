package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"strings"
	"time"

	"github.com/vapl/production-workflow-system-sub005/internal/jobs/entity"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/repository"
	"github.com/vapl/production-workflow-system-sub005/internal/shared/mailer"
	"github.com/vapl/production-workflow-system-sub005/internal/shared/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const portalLinkExpiry = time.Hour

// ResponseConfig 回单链路配置
type ResponseConfig struct {
	// Bucket 对象存储桶名，用于从历史公开URL反推对象路径
	Bucket string
	// DefaultFromName/DefaultFromAddress 确认邮件的缺省发件身份
	DefaultFromName    string
	DefaultFromAddress string
}

// FieldWithValue 字段定义连同当前取值
type FieldWithValue struct {
	entity.FieldDefinition
	Value interface{} `json:"value"`
}

// joinFieldValues 字段定义与已存取值做左连接，保持定义顺序
func joinFieldValues(defs []entity.FieldDefinition, values []entity.FieldValue) []FieldWithValue {
	byField := make(map[string]interface{}, len(values))
	for _, v := range values {
		byField[v.FieldID] = v.Value.V
	}
	out := make([]FieldWithValue, 0, len(defs))
	for _, d := range defs {
		out = append(out, FieldWithValue{FieldDefinition: d, Value: byField[d.ID]})
	}
	return out
}

// PortalRequestView 合作方门户看到的请求元数据
type PortalRequestView struct {
	OrderNo               string     `json:"order_no"`
	DueDate               *time.Time `json:"due_date"`
	Status                string     `json:"status"`
	PartnerName           string     `json:"partner_name"`
	SenderName            string     `json:"sender_name"`
	SenderEmail           string     `json:"sender_email"`
	SenderPhone           string     `json:"sender_phone"`
	ViewedAt              *time.Time `json:"viewed_at"`
	SubmittedAt           *time.Time `json:"submitted_at"`
	PartnerOrderNo        *string    `json:"partner_order_no"`
	PartnerCompletionDate *string    `json:"partner_completion_date"`
	PartnerNote           *string    `json:"partner_note"`

	TenantName           string `json:"tenant_name"`
	TenantBillingAddress string `json:"tenant_billing_address"`
	TenantLogoURL        string `json:"tenant_logo_url,omitempty"`
}

// PortalAttachmentView 门户展示的附件，下载链接1小时有效
type PortalAttachmentView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
	Category string `json:"category"`
	URL      string `json:"url"`
}

// PortalView 合作方回单页视图
type PortalView struct {
	Request     PortalRequestView      `json:"request"`
	Attachments []PortalAttachmentView `json:"attachments"`
	Fields      []FieldWithValue       `json:"fields"`
}

// SubmissionFile 合作方上传的附件
type SubmissionFile struct {
	Name        string
	Size        int64
	ContentType string
	Reader      io.Reader
}

// SubmissionInput 合作方回单提交
type SubmissionInput struct {
	PartnerOrderNo string
	CompletionDate string
	Note           string
	// FieldInputs 动态字段原始输入，按字段ID索引
	FieldInputs map[string]string
	File        *SubmissionFile
}

// ResponseService 合作方回单服务
// 整条链路不做账号认证，只认令牌。
type ResponseService struct {
	db       *gorm.DB
	repos    *repository.Repositories
	resolver *FieldResolver
	store    storage.ObjectStore
	mail     mailer.Mailer
	logger   *zap.Logger
	cfg      ResponseConfig
}

func NewResponseService(db *gorm.DB, repos *repository.Repositories, resolver *FieldResolver,
	store storage.ObjectStore, mail mailer.Mailer, logger *zap.Logger, cfg ResponseConfig) *ResponseService {
	return &ResponseService{
		db:       db,
		repos:    repos,
		resolver: resolver,
		store:    store,
		mail:     mail,
		logger:   logger,
		cfg:      cfg,
	}
}

// resolveJobByToken 按原始令牌解析委外单
// 摘要不命中与令牌过期分别返回 ErrNotFound/ErrExpired，
// handler 对外统一收敛成404，避免探测令牌是否存在。
func (s *ResponseService) resolveJobByToken(ctx context.Context, token string) (*entity.ExternalJob, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	job, err := s.repos.ExternalJob.FindByTokenHash(ctx, HashToken(token))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if job.PartnerRequestTokenHash == nil {
		return nil, ErrNotFound
	}
	if err := VerifyToken(token, *job.PartnerRequestTokenHash, job.PartnerRequestTokenExpiresAt); err != nil {
		return nil, err
	}
	return job, nil
}

// View 回单页读取
// 首次访问盖章 viewed_at，重复访问不更新。
func (s *ResponseService) View(ctx context.Context, token string) (*PortalView, error) {
	job, err := s.resolveJobByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.repos.ExternalJob.MarkViewedOnce(ctx, job.ID, now); err != nil {
		return nil, err
	}
	if job.ViewedAt == nil {
		job.ViewedAt = &now
	}

	tenant, err := s.repos.Tenant.FindByID(ctx, job.TenantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	attachments, err := s.repos.Attachment.ListByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	attachmentViews := make([]PortalAttachmentView, 0, len(attachments))
	for _, att := range attachments {
		u, err := s.store.PresignedGet(ctx, att.StoragePath, portalLinkExpiry)
		if err != nil {
			return nil, fmt.Errorf("解析附件下载链接失败: %w", err)
		}
		attachmentViews = append(attachmentViews, PortalAttachmentView{
			ID:       att.ID,
			Name:     att.Name,
			Size:     att.Size,
			MimeType: att.MimeType,
			Category: att.Category,
			URL:      u,
		})
	}

	defs, err := s.resolver.Resolve(ctx, job.TenantID, FieldContextPortalResponse)
	if err != nil {
		return nil, err
	}
	values, err := s.repos.Field.ListValuesByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	view := &PortalView{
		Request: PortalRequestView{
			OrderNo:               job.OrderNo,
			DueDate:               job.DueDate,
			Status:                job.Status,
			PartnerName:           job.PartnerName,
			SenderName:            job.SenderName,
			SenderEmail:           job.SenderEmail,
			SenderPhone:           job.SenderPhone,
			ViewedAt:              job.ViewedAt,
			SubmittedAt:           job.SubmittedAt,
			PartnerOrderNo:        job.PartnerOrderNo,
			PartnerCompletionDate: job.PartnerCompletionDate,
			PartnerNote:           job.PartnerNote,
			TenantName:            tenant.Name,
			TenantBillingAddress:  tenant.BillingAddress,
			TenantLogoURL:         s.signedLogoURL(ctx, tenant),
		},
		Attachments: attachmentViews,
		Fields:      joinFieldValues(defs, values),
	}
	return view, nil
}

// signedLogoURL 租户logo重新签名
// 历史数据存的是公开URL，先反推对象路径再签限时链接；失败则不展示logo。
func (s *ResponseService) signedLogoURL(ctx context.Context, tenant *entity.Tenant) string {
	if tenant.LogoURL == "" {
		return ""
	}
	objectName := storage.ObjectNameFromURL(tenant.LogoURL, s.cfg.Bucket)
	if objectName == "" {
		return ""
	}
	u, err := s.store.PresignedGet(ctx, objectName, portalLinkExpiry)
	if err != nil {
		s.logger.Warn("租户logo签名失败", zap.String("tenant_id", tenant.ID), zap.Error(err))
		return ""
	}
	return u
}

// Submit 合作方回单提交
// 先整体校验再落库；字段取值按 (job, field) 覆盖写，重复提交不产生重复行；
// 状态推进走条件更新，并发提交只会写一条审计。
func (s *ResponseService) Submit(ctx context.Context, token string, input *SubmissionInput) error {
	job, err := s.resolveJobByToken(ctx, token)
	if err != nil {
		return err
	}

	partnerOrderNo := strings.TrimSpace(input.PartnerOrderNo)
	completionDate := strings.TrimSpace(input.CompletionDate)
	if partnerOrderNo == "" {
		return NewValidationError("合作方单号", "为必填项")
	}
	if completionDate == "" {
		return NewValidationError("完成日期", "为必填项")
	}

	defs, err := s.resolver.Resolve(ctx, job.TenantID, FieldContextPortalResponse)
	if err != nil {
		return err
	}

	// 所有动态字段先校验通过，任何一个失败整次提交不落库
	coerced := make(map[string]interface{}, len(defs))
	for i := range defs {
		def := &defs[i]
		value, err := CoerceFieldValue(def, input.FieldInputs[def.ID])
		if err != nil {
			return err
		}
		if value != nil {
			coerced[def.ID] = value
		}
	}

	// 附件先落对象存储，库内记录随事务一起提交
	var stored *entity.Attachment
	if input.File != nil {
		att, err := s.storeSubmissionFile(ctx, job, input.File)
		if err != nil {
			return fmt.Errorf("附件上传失败: %w", err)
		}
		stored = att
	}

	now := time.Now()
	var note *string
	if trimmed := strings.TrimSpace(input.Note); trimmed != "" {
		note = &trimmed
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepos := repository.NewRepositories(tx)

		updates := map[string]interface{}{
			"submitted_at":            now,
			"partner_order_no":        partnerOrderNo,
			"partner_completion_date": completionDate,
			"partner_note":            note,
		}
		if err := txRepos.ExternalJob.UpdateFields(ctx, job.ID, updates); err != nil {
			return fmt.Errorf("更新委外单回单信息失败: %w", err)
		}

		advanced, err := txRepos.ExternalJob.AdvanceStatus(ctx, job.ID,
			entity.JobStatusesAllowing(entity.JobStatusInProgress), entity.JobStatusInProgress)
		if err != nil {
			return fmt.Errorf("推进委外单状态失败: %w", err)
		}
		if advanced {
			if err := txRepos.StatusHistory.Append(ctx, job.ID,
				entity.JobStatusInProgress, job.PartnerName, entity.ActorRolePartner); err != nil {
				return fmt.Errorf("写入状态审计失败: %w", err)
			}
		}

		for fieldID, value := range coerced {
			if err := txRepos.Field.UpsertValue(ctx, job.ID, fieldID, value); err != nil {
				return fmt.Errorf("写入字段取值失败: %w", err)
			}
		}

		if stored != nil {
			if err := txRepos.Attachment.Create(ctx, stored); err != nil {
				return fmt.Errorf("写入附件记录失败: %w", err)
			}
		}

		summary := fmt.Sprintf("合作方 %s 已回单：单号 %s，完成日期 %s",
			job.PartnerName, partnerOrderNo, completionDate)
		if err := txRepos.OrderComment.Append(ctx, job.OrderID,
			job.PartnerName, entity.ActorRolePartner, summary); err != nil {
			return fmt.Errorf("写入订单动态失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	// 确认邮件尽力而为，失败只记日志，不影响已提交的回单
	if job.PartnerEmail != "" {
		msg := buildConfirmationMail(job, partnerOrderNo, completionDate, note)
		msg.From = s.cfg.DefaultFromAddress
		msg.FromName = s.cfg.DefaultFromName
		msg.To = job.PartnerEmail
		if err := s.mail.Send(msg); err != nil {
			s.logger.Warn("回单确认邮件发送失败",
				zap.String("job_id", job.ID),
				zap.Error(err))
		}
	}

	s.logger.Info("合作方回单已提交",
		zap.String("job_id", job.ID),
		zap.String("partner", job.PartnerName))
	return nil
}

// storeSubmissionFile 存储合作方上传的附件
// 文件名收敛到安全字符集，路径按委外单与提交时间命名。
func (s *ResponseService) storeSubmissionFile(ctx context.Context, job *entity.ExternalJob, file *SubmissionFile) (*entity.Attachment, error) {
	safeName := storage.SanitizeFilename(file.Name)
	objectName := fmt.Sprintf("external-jobs/%s/responses/%d_%s", job.ID, time.Now().Unix(), safeName)
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if err := s.store.Put(ctx, objectName, file.Reader, file.Size, contentType); err != nil {
		return nil, err
	}
	return &entity.Attachment{
		JobID:       job.ID,
		Name:        safeName,
		StoragePath: objectName,
		Size:        file.Size,
		MimeType:    contentType,
		Category:    entity.AttachmentCategoryPartnerResponse,
		AddedByName: job.PartnerName,
		AddedByRole: entity.ActorRolePartner,
	}, nil
}

// buildConfirmationMail 组装回单确认邮件，回显提交内容
func buildConfirmationMail(job *entity.ExternalJob, partnerOrderNo, completionDate string, note *string) *mailer.Message {
	var text strings.Builder
	fmt.Fprintf(&text, "%s 您好：\n\n", job.PartnerName)
	fmt.Fprintf(&text, "您对订单 %s 的回单已收到。\n\n", job.OrderNo)
	fmt.Fprintf(&text, "单号：%s\n完成日期：%s\n", partnerOrderNo, completionDate)
	if note != nil {
		fmt.Fprintf(&text, "备注：%s\n", *note)
	}
	text.WriteString("\n感谢您的配合。\n")

	var htmlBody strings.Builder
	fmt.Fprintf(&htmlBody, "<p>%s 您好：</p>", html.EscapeString(job.PartnerName))
	fmt.Fprintf(&htmlBody, "<p>您对订单 <strong>%s</strong> 的回单已收到。</p>", html.EscapeString(job.OrderNo))
	fmt.Fprintf(&htmlBody, "<p>单号：%s<br>完成日期：%s</p>",
		html.EscapeString(partnerOrderNo), html.EscapeString(completionDate))
	if note != nil {
		fmt.Fprintf(&htmlBody, "<p>备注：%s</p>", html.EscapeString(*note))
	}
	htmlBody.WriteString("<p>感谢您的配合。</p>")

	return &mailer.Message{
		Subject: fmt.Sprintf("回单确认 - 订单 %s", job.OrderNo),
		Text:    text.String(),
		HTML:    htmlBody.String(),
	}
}
