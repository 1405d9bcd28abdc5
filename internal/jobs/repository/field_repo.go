package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FieldRepository 回单字段定义/取值仓库
type FieldRepository struct {
	db *gorm.DB
}

func NewFieldRepository(db *gorm.DB) *FieldRepository {
	return &FieldRepository{db: db}
}

// ListActiveDefinitions 获取租户启用的字段定义，按排序值、创建时间排列
func (r *FieldRepository) ListActiveDefinitions(ctx context.Context, tenantID string) ([]entity.FieldDefinition, error) {
	var defs []entity.FieldDefinition
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("sort_order ASC, created_at ASC").
		Find(&defs).Error
	return defs, err
}

// ListValuesByJob 获取委外单已存的字段取值
func (r *FieldRepository) ListValuesByJob(ctx context.Context, jobID string) ([]entity.FieldValue, error) {
	var values []entity.FieldValue
	err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Find(&values).Error
	return values, err
}

// UpsertValue 按 (job, field) 写入字段取值，重复提交覆盖而非新增
func (r *FieldRepository) UpsertValue(ctx context.Context, jobID, fieldID string, value interface{}) error {
	now := time.Now()
	v := entity.FieldValue{
		ID:        uuid.New().String()[:32],
		JobID:     jobID,
		FieldID:   fieldID,
		Value:     entity.JSONValue{V: value},
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "job_id"}, {Name: "field_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&v).Error
}
