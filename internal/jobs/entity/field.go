package entity

import (
	"time"
)

// FieldDefinition 租户配置的回单字段定义
// 本子系统只读；scope 为空视为 manual。
type FieldDefinition struct {
	ID         string      `json:"id" gorm:"primaryKey;size:32"`
	TenantID   string      `json:"tenant_id" gorm:"size:32;not null;index"`
	Key        string      `json:"key" gorm:"size:64;not null"`
	Label      string      `json:"label" gorm:"size:200;not null"`
	Type       string      `json:"type" gorm:"size:20;not null;default:text"`
	Scope      *string     `json:"scope" gorm:"size:20"`
	IsRequired bool        `json:"is_required" gorm:"default:false"`
	Options    *JSONBArray `json:"options" gorm:"type:jsonb"`
	SortOrder  int         `json:"sort_order" gorm:"default:0"`
	IsActive   bool        `json:"is_active" gorm:"default:true"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func (FieldDefinition) TableName() string {
	return "external_job_field_definitions"
}

// 字段类型
const (
	FieldTypeText     = "text"
	FieldTypeTextarea = "textarea"
	FieldTypeNumber   = "number"
	FieldTypeDate     = "date"
	FieldTypeSelect   = "select"
	FieldTypeToggle   = "toggle"
)

// 字段作用域
const (
	FieldScopeManual         = "manual"
	FieldScopePortalResponse = "portal_response"
)

// FieldValue 委外单的字段取值，(job, field) 唯一，重复提交覆盖
type FieldValue struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	JobID     string    `json:"job_id" gorm:"size:32;not null;uniqueIndex:idx_job_field"`
	FieldID   string    `json:"field_id" gorm:"size:32;not null;uniqueIndex:idx_job_field"`
	Value     JSONValue `json:"value" gorm:"type:jsonb"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (FieldValue) TableName() string {
	return "external_job_field_values"
}
