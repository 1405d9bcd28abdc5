package entity

import (
	"time"
)

// Attachment 委外单附件
// 只存对象存储路径，访问一律走限时签名URL。
type Attachment struct {
	ID          string    `json:"id" gorm:"primaryKey;size:32"`
	JobID       string    `json:"job_id" gorm:"size:32;not null;index"`
	Name        string    `json:"name" gorm:"size:256;not null"`
	StoragePath string    `json:"storage_path" gorm:"size:512;not null"`
	Size        int64     `json:"size"`
	MimeType    string    `json:"mime_type" gorm:"size:128"`
	Category    string    `json:"category" gorm:"size:32;default:general"`
	AddedByName string    `json:"added_by_name" gorm:"size:100"`
	AddedByRole string    `json:"added_by_role" gorm:"size:50"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Attachment) TableName() string {
	return "external_job_attachments"
}

// 附件分类
const (
	AttachmentCategoryGeneral         = "general"
	AttachmentCategoryPartnerResponse = "partner_response"
)
