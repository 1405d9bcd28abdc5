package entity

import (
	"time"
)

// Tenant 租户
// 发件策略：启用 user-sender 且域名已验证、员工邮箱域与验证域一致时才用员工地址发信，
// 否则回退到租户配置的发件身份，再回退到服务商默认身份。
type Tenant struct {
	ID             string `json:"id" gorm:"primaryKey;size:32"`
	Name           string `json:"name" gorm:"size:200;not null"`
	BillingAddress string `json:"billing_address" gorm:"size:500"`
	LogoURL        string `json:"logo_url" gorm:"size:512"`

	// 邮件发件配置
	EmailFromName         string `json:"email_from_name" gorm:"size:100"`
	EmailFromAddress      string `json:"email_from_address" gorm:"size:200"`
	UserSenderEnabled     bool   `json:"user_sender_enabled" gorm:"default:false"`
	SendingDomainVerified bool   `json:"sending_domain_verified" gorm:"default:false"`
	SendingDomain         string `json:"sending_domain" gorm:"size:200"`

	// 订阅
	SubscriptionStatus string `json:"subscription_status" gorm:"size:20;default:inactive"`
	PlanTier           string `json:"plan_tier" gorm:"size:20"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Tenant) TableName() string {
	return "tenants"
}

// 订阅状态
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
	SubscriptionInactive = "inactive"
)

// 套餐档位
const (
	PlanTierBasic        = "basic"
	PlanTierProfessional = "professional"
	PlanTierEnterprise   = "enterprise"
)

// PartnerDispatchEntitled 合作方外发功能是否已购买
func (t *Tenant) PartnerDispatchEntitled() bool {
	if t.SubscriptionStatus != SubscriptionActive && t.SubscriptionStatus != SubscriptionTrialing {
		return false
	}
	return t.PlanTier == PlanTierProfessional || t.PlanTier == PlanTierEnterprise
}

// TenantRolePermission 租户可配置的权限-角色映射
// 某权限允许哪些角色，作为静态角色检查之外的补充判定。
type TenantRolePermission struct {
	ID         string      `json:"id" gorm:"primaryKey;size:32"`
	TenantID   string      `json:"tenant_id" gorm:"size:32;not null;uniqueIndex:idx_tenant_permission"`
	Permission string      `json:"permission" gorm:"size:64;not null;uniqueIndex:idx_tenant_permission"`
	Roles      *JSONBArray `json:"roles" gorm:"type:jsonb"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func (TenantRolePermission) TableName() string {
	return "tenant_role_permissions"
}

// 外发入口涉及的权限
const (
	PermissionManageOrders           = "order_management"
	PermissionViewProduction         = "production_visibility"
	PermissionViewProductionOperator = "production_operator_visibility"
)
