package entity

import (
	"time"
)

// OrderComment 订单动态（员工侧可见的审计留言），append-only
type OrderComment struct {
	ID         string    `json:"id" gorm:"primaryKey;size:32"`
	OrderID    string    `json:"order_id" gorm:"size:32;not null;index"`
	AuthorName string    `json:"author_name" gorm:"size:100"`
	AuthorRole string    `json:"author_role" gorm:"size:50"`
	Content    string    `json:"content" gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at"`
}

func (OrderComment) TableName() string {
	return "order_comments"
}
