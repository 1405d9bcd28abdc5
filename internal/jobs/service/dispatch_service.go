package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/vapl/production-workflow-system-sub005/internal/jobs/entity"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/repository"
	"github.com/vapl/production-workflow-system-sub005/internal/shared/mailer"
	"github.com/vapl/production-workflow-system-sub005/internal/shared/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	dispatchTokenTTLDefault = 7 * 24 * time.Hour
	dispatchLinkExpiry      = 7 * 24 * time.Hour
)

// DispatchConfig 外发链路配置
type DispatchConfig struct {
	// PortalBaseURL 请求头推不出来源时的兜底门户地址
	PortalBaseURL string
	// TokenTTL 访问令牌有效期，缺省7天
	TokenTTL time.Duration
	// DefaultFromName/DefaultFromAddress 服务商缺省发件身份
	DefaultFromName    string
	DefaultFromAddress string
}

// DispatchResult 外发结果
type DispatchResult struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

// DispatchService 委外请求外发服务
// 令牌、发件快照、状态推进与通知邮件在一个事务里先写后发：
// 邮件发送失败整体回滚，调用方可安全重试。
type DispatchService struct {
	db       *gorm.DB
	repos    *repository.Repositories
	gate     *AccessGate
	resolver *FieldResolver
	store    storage.ObjectStore
	mail     mailer.Mailer
	logger   *zap.Logger
	cfg      DispatchConfig
}

func NewDispatchService(db *gorm.DB, repos *repository.Repositories, gate *AccessGate, resolver *FieldResolver,
	store storage.ObjectStore, mail mailer.Mailer, logger *zap.Logger, cfg DispatchConfig) *DispatchService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = dispatchTokenTTLDefault
	}
	return &DispatchService{
		db:       db,
		repos:    repos,
		gate:     gate,
		resolver: resolver,
		store:    store,
		mail:     mail,
		logger:   logger,
		cfg:      cfg,
	}
}

// 外发入口接受的权限，命中任意一个即可
var dispatchPermissions = []string{
	entity.PermissionManageOrders,
	entity.PermissionViewProduction,
	entity.PermissionViewProductionOperator,
}

// Dispatch 向合作方外发委外请求
// origin 来自请求侧推导，用于拼接回单链接。
func (s *DispatchService) Dispatch(ctx context.Context, userID, externalJobID, comment, origin string) (*DispatchResult, error) {
	caller, err := s.gate.Authorize(ctx, userID, dispatchPermissions...)
	if err != nil {
		return nil, err
	}
	if !caller.Tenant.PartnerDispatchEntitled() {
		return nil, ErrFeatureNotAvailable
	}

	job, err := s.repos.ExternalJob.FindByIDForTenant(ctx, externalJobID, caller.Tenant.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	partnerEmail, err := s.resolvePartnerEmail(ctx, job)
	if err != nil {
		return nil, err
	}

	token, err := IssueToken()
	if err != nil {
		return nil, err
	}
	tokenHash := HashToken(token)
	expiresAt := time.Now().Add(s.cfg.TokenTTL)

	attachments, err := s.signedAttachments(ctx, job.ID, dispatchLinkExpiry)
	if err != nil {
		return nil, fmt.Errorf("解析附件下载链接失败: %w", err)
	}

	link := s.responseLink(origin, token)
	from, fromName, replyTo := s.resolveSender(caller)
	msg := buildDispatchMail(job, caller, comment, attachments, link, expiresAt)
	msg.From = from
	msg.FromName = fromName
	msg.ReplyTo = replyTo
	msg.To = partnerEmail

	// 先把所有写入压进事务，邮件发出去才提交；
	// 发送失败整体回滚，库里不会留下半截派发。
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepos := repository.NewRepositories(tx)

		updates := map[string]interface{}{
			"partner_request_token_hash":       tokenHash,
			"partner_request_token_expires_at": expiresAt,
			"sender_name":                      caller.User.Name,
			"sender_email":                     caller.User.Email,
			"sender_phone":                     caller.User.Phone,
			"request_mode":                     entity.RequestModePartnerPortal,
			"partner_email":                    partnerEmail,
		}
		if err := txRepos.ExternalJob.UpdateFields(ctx, job.ID, updates); err != nil {
			return fmt.Errorf("更新委外单派发信息失败: %w", err)
		}

		advanced, err := txRepos.ExternalJob.AdvanceStatus(ctx, job.ID,
			entity.JobStatusesAllowing(entity.JobStatusOrdered), entity.JobStatusOrdered)
		if err != nil {
			return fmt.Errorf("推进委外单状态失败: %w", err)
		}
		if advanced {
			if err := txRepos.StatusHistory.Append(ctx, job.ID,
				entity.JobStatusOrdered, caller.User.Name, caller.User.Role); err != nil {
				return fmt.Errorf("写入状态审计失败: %w", err)
			}
		}

		if err := s.mail.Send(msg); err != nil {
			return fmt.Errorf("发送外发通知邮件失败: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("委外请求外发失败",
			zap.String("job_id", job.ID),
			zap.String("tenant_id", caller.Tenant.ID),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("委外请求已外发",
		zap.String("job_id", job.ID),
		zap.String("tenant_id", caller.Tenant.ID),
		zap.String("operator", caller.User.Name))
	return &DispatchResult{ExpiresAt: expiresAt}, nil
}

// DispatchContext 外发确认弹窗所需的数据：委外单、人工录入字段及取值、附件
type DispatchContext struct {
	Job         *entity.ExternalJob `json:"job"`
	Fields      []FieldWithValue    `json:"fields"`
	Attachments []entity.Attachment `json:"attachments"`
}

// LoadDispatchContext 获取外发确认所需上下文
func (s *DispatchService) LoadDispatchContext(ctx context.Context, userID, externalJobID string) (*DispatchContext, error) {
	caller, err := s.gate.Authorize(ctx, userID, dispatchPermissions...)
	if err != nil {
		return nil, err
	}

	job, err := s.repos.ExternalJob.FindByIDForTenant(ctx, externalJobID, caller.Tenant.ID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	defs, err := s.resolver.Resolve(ctx, caller.Tenant.ID, FieldContextDispatchView)
	if err != nil {
		return nil, err
	}
	values, err := s.repos.Field.ListValuesByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	fields := joinFieldValues(defs, values)

	attachments, err := s.repos.Attachment.ListByJob(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	return &DispatchContext{Job: job, Fields: fields, Attachments: attachments}, nil
}

// resolvePartnerEmail 委外单上有邮箱直接用，否则回退到合作方档案
func (s *DispatchService) resolvePartnerEmail(ctx context.Context, job *entity.ExternalJob) (string, error) {
	if job.PartnerEmail != "" {
		return job.PartnerEmail, nil
	}
	if job.PartnerID != nil && *job.PartnerID != "" {
		partner, err := s.repos.Partner.FindByID(ctx, *job.PartnerID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return "", err
		}
		if partner != nil && partner.Email != "" {
			return partner.Email, nil
		}
	}
	return "", NewValidationError("", "委外单未配置合作方邮箱")
}

// resolveSender 按验证发件策略确定发件身份
// 租户开启员工发件且域名已验证、员工邮箱域与验证域一致时用员工地址发信，
// 否则回退到租户发件配置，最后回退到服务商缺省身份。
func (s *DispatchService) resolveSender(caller *Caller) (from, fromName, replyTo string) {
	tenant := caller.Tenant
	user := caller.User

	replyTo = user.Email
	if tenant.UserSenderEnabled && tenant.SendingDomainVerified &&
		emailDomain(user.Email) == strings.ToLower(tenant.SendingDomain) && tenant.SendingDomain != "" {
		return user.Email, user.Name, replyTo
	}
	if tenant.EmailFromAddress != "" {
		name := tenant.EmailFromName
		if name == "" {
			name = tenant.Name
		}
		return tenant.EmailFromAddress, name, replyTo
	}
	return s.cfg.DefaultFromAddress, s.cfg.DefaultFromName, replyTo
}

func emailDomain(email string) string {
	idx := strings.LastIndex(email, "@")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(email[idx+1:])
}

// responseLink 拼接回单链接，来源缺失时用配置的门户地址兜底
func (s *DispatchService) responseLink(origin, token string) string {
	base := strings.TrimSuffix(origin, "/")
	if base == "" {
		base = strings.TrimSuffix(s.cfg.PortalBaseURL, "/")
	}
	return base + "/external-jobs/respond/" + token
}

// signedAttachment 带限时下载链接的附件
type signedAttachment struct {
	Name string
	URL  string
}

func (s *DispatchService) signedAttachments(ctx context.Context, jobID string, expiry time.Duration) ([]signedAttachment, error) {
	items, err := s.repos.Attachment.ListByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	out := make([]signedAttachment, 0, len(items))
	for _, att := range items {
		u, err := s.store.PresignedGet(ctx, att.StoragePath, expiry)
		if err != nil {
			return nil, err
		}
		out = append(out, signedAttachment{Name: att.Name, URL: u})
	}
	return out, nil
}

// buildDispatchMail 组装外发通知邮件，正文同时给纯文本和HTML
func buildDispatchMail(job *entity.ExternalJob, caller *Caller, comment string,
	attachments []signedAttachment, link string, expiresAt time.Time) *mailer.Message {

	due := "未指定"
	if job.DueDate != nil {
		due = job.DueDate.Format("2006-01-02")
	}
	expires := expiresAt.Format("2006-01-02 15:04")

	var text strings.Builder
	fmt.Fprintf(&text, "%s 您好：\n\n", job.PartnerName)
	fmt.Fprintf(&text, "%s 向您发起了一笔委外加工请求。\n\n", caller.Tenant.Name)
	fmt.Fprintf(&text, "订单号：%s\n交期：%s\n", job.OrderNo, due)
	if comment != "" {
		fmt.Fprintf(&text, "备注：%s\n", comment)
	}
	if len(attachments) > 0 {
		text.WriteString("\n相关附件：\n")
		for _, att := range attachments {
			fmt.Fprintf(&text, "- %s：%s\n", att.Name, att.URL)
		}
	}
	fmt.Fprintf(&text, "\n请通过以下链接查看并回复：\n%s\n\n链接有效期至 %s。\n", link, expires)
	fmt.Fprintf(&text, "\n如有疑问请联系 %s（%s）。\n", caller.User.Name, caller.User.Email)

	var htmlBody strings.Builder
	fmt.Fprintf(&htmlBody, "<p>%s 您好：</p>", html.EscapeString(job.PartnerName))
	fmt.Fprintf(&htmlBody, "<p>%s 向您发起了一笔委外加工请求。</p>", html.EscapeString(caller.Tenant.Name))
	fmt.Fprintf(&htmlBody, "<p>订单号：<strong>%s</strong><br>交期：%s</p>", html.EscapeString(job.OrderNo), due)
	if comment != "" {
		fmt.Fprintf(&htmlBody, "<p>备注:%s</p>", html.EscapeString(comment))
	}
	if len(attachments) > 0 {
		htmlBody.WriteString("<p>相关附件：</p><ul>")
		for _, att := range attachments {
			fmt.Fprintf(&htmlBody, `<li><a href="%s">%s</a></li>`, att.URL, html.EscapeString(att.Name))
		}
		htmlBody.WriteString("</ul>")
	}
	fmt.Fprintf(&htmlBody, `<p><a href="%s">点击此处查看并回复委外请求</a></p>`, link)
	fmt.Fprintf(&htmlBody, "<p>链接有效期至 %s。</p>", expires)
	fmt.Fprintf(&htmlBody, "<p>如有疑问请联系 %s（%s）。</p>",
		html.EscapeString(caller.User.Name), html.EscapeString(caller.User.Email))

	return &mailer.Message{
		Subject: fmt.Sprintf("委外加工请求 - 订单 %s", job.OrderNo),
		Text:    text.String(),
		HTML:    htmlBody.String(),
	}
}
