package entity

import (
	"sort"
	"time"
)

// ExternalJob 委外加工单
// 由订单侧创建（本子系统只读其归属），由外发/回单两条链路推进状态。
type ExternalJob struct {
	ID       string `json:"id" gorm:"primaryKey;size:32"`
	TenantID string `json:"tenant_id" gorm:"size:32;not null;index"`
	OrderID  string `json:"order_id" gorm:"size:32;not null;index"`

	// 合作方信息（邮箱可为空，派发时回退到合作方档案）
	PartnerID    *string `json:"partner_id" gorm:"size:32;index"`
	PartnerName  string  `json:"partner_name" gorm:"size:200"`
	PartnerEmail string  `json:"partner_email" gorm:"size:200"`

	// 对外订单号与交期
	OrderNo string     `json:"order_no" gorm:"size:64;not null"`
	DueDate *time.Time `json:"due_date"`

	Status      string `json:"status" gorm:"size:20;default:requested;index"`
	RequestMode string `json:"request_mode" gorm:"size:20;default:manual"`

	// 最近一次派发的发送人快照
	SenderName  string `json:"sender_name" gorm:"size:100"`
	SenderEmail string `json:"sender_email" gorm:"size:200"`
	SenderPhone string `json:"sender_phone" gorm:"size:50"`

	// 访问令牌：仅存一次性摘要，原始令牌只出现在外发链接中
	PartnerRequestTokenHash      *string    `json:"-" gorm:"size:64;index"`
	PartnerRequestTokenExpiresAt *time.Time `json:"-"`

	// 合作方回单字段
	ViewedAt              *time.Time `json:"viewed_at"`
	SubmittedAt           *time.Time `json:"submitted_at"`
	PartnerOrderNo        *string    `json:"partner_order_no" gorm:"size:64"`
	PartnerCompletionDate *string    `json:"partner_completion_date" gorm:"size:32"`
	PartnerNote           *string    `json:"partner_note" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (ExternalJob) TableName() string {
	return "external_jobs"
}

// 委外单状态
const (
	JobStatusRequested  = "requested"
	JobStatusOrdered    = "ordered"
	JobStatusInProgress = "in_progress"
	JobStatusDelivered  = "delivered"
	JobStatusApproved   = "approved"
	JobStatusCancelled  = "cancelled"
)

// 请求方式
const (
	RequestModeManual        = "manual"
	RequestModePartnerPortal = "partner_portal"
)

// ValidExternalJobTransitions 委外单状态只允许前进
var ValidExternalJobTransitions = map[string][]string{
	JobStatusRequested:  {JobStatusOrdered, JobStatusInProgress, JobStatusCancelled},
	JobStatusOrdered:    {JobStatusInProgress, JobStatusCancelled},
	JobStatusInProgress: {JobStatusDelivered, JobStatusCancelled},
	JobStatusDelivered:  {JobStatusApproved, JobStatusCancelled},
}

// CanTransitionJobStatus 校验状态流转是否合法
func CanTransitionJobStatus(from, to string) bool {
	for _, s := range ValidExternalJobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// JobStatusesAllowing 返回允许流转到 to 的全部前置状态
// 条件更新的 from 集合从流转表推导，不另行手写
func JobStatusesAllowing(to string) []string {
	var from []string
	for status := range ValidExternalJobTransitions {
		if CanTransitionJobStatus(status, to) {
			from = append(from, status)
		}
	}
	sort.Strings(from)
	return from
}
