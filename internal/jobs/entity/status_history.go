package entity

import (
	"time"
)

// StatusHistoryEntry 委外单状态变更审计，append-only
// 每次实际发生的状态流转恰好写一条。
type StatusHistoryEntry struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	JobID     string    `json:"job_id" gorm:"size:32;not null;index"`
	Status    string    `json:"status" gorm:"size:20;not null"`
	ActorName string    `json:"actor_name" gorm:"size:100"`
	ActorRole string    `json:"actor_role" gorm:"size:50"`
	CreatedAt time.Time `json:"created_at"`
}

func (StatusHistoryEntry) TableName() string {
	return "external_job_status_histories"
}

// 合作方写审计时使用的角色字面量
const ActorRolePartner = "Partner"
