package entity

import (
	"time"
)

// User 员工档案
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	TenantID  string    `json:"tenant_id" gorm:"size:32;index"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	Email     string    `json:"email" gorm:"size:200;uniqueIndex"`
	Phone     string    `json:"phone" gorm:"size:50"`
	Role      string    `json:"role" gorm:"size:50"`
	Status    string    `json:"status" gorm:"size:20;default:active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// 静态角色
const (
	RoleAdmin       = "admin"
	RoleEngineering = "engineering"
)
