package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/entity"
	"gorm.io/gorm"
)

// StatusHistoryRepository 状态审计仓库
type StatusHistoryRepository struct {
	db *gorm.DB
}

func NewStatusHistoryRepository(db *gorm.DB) *StatusHistoryRepository {
	return &StatusHistoryRepository{db: db}
}

// Append 追加一条状态审计
func (r *StatusHistoryRepository) Append(ctx context.Context, jobID, status, actorName, actorRole string) error {
	return r.db.WithContext(ctx).Create(&entity.StatusHistoryEntry{
		ID:        uuid.New().String()[:32],
		JobID:     jobID,
		Status:    status,
		ActorName: actorName,
		ActorRole: actorRole,
	}).Error
}

// ListByJob 获取委外单状态审计
func (r *StatusHistoryRepository) ListByJob(ctx context.Context, jobID string) ([]entity.StatusHistoryEntry, error) {
	var items []entity.StatusHistoryEntry
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}
