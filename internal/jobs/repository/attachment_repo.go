package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/entity"
	"gorm.io/gorm"
)

// AttachmentRepository 附件仓库
type AttachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create 创建附件记录
func (r *AttachmentRepository) Create(ctx context.Context, att *entity.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.New().String()[:32]
	}
	return r.db.WithContext(ctx).Create(att).Error
}

// ListByJob 获取委外单附件列表
func (r *AttachmentRepository) ListByJob(ctx context.Context, jobID string) ([]entity.Attachment, error) {
	var items []entity.Attachment
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("created_at ASC").
		Find(&items).Error
	return items, err
}
