package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/entity"
	"gorm.io/gorm"
)

// OrderCommentRepository 订单动态仓库
type OrderCommentRepository struct {
	db *gorm.DB
}

func NewOrderCommentRepository(db *gorm.DB) *OrderCommentRepository {
	return &OrderCommentRepository{db: db}
}

// Append 追加一条订单动态
func (r *OrderCommentRepository) Append(ctx context.Context, orderID, authorName, authorRole, content string) error {
	return r.db.WithContext(ctx).Create(&entity.OrderComment{
		ID:         uuid.New().String()[:32],
		OrderID:    orderID,
		AuthorName: authorName,
		AuthorRole: authorRole,
		Content:    content,
	}).Error
}

// ListByOrder 获取订单动态列表
func (r *OrderCommentRepository) ListByOrder(ctx context.Context, orderID string) ([]entity.OrderComment, error) {
	var items []entity.OrderComment
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}
