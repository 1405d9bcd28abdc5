package repository

import (
	"context"
	"errors"
	"time"

	"github.com/vapl/production-workflow-system-sub005/internal/jobs/entity"
	"gorm.io/gorm"
)

// ExternalJobRepository 委外单仓库
type ExternalJobRepository struct {
	db *gorm.DB
}

func NewExternalJobRepository(db *gorm.DB) *ExternalJobRepository {
	return &ExternalJobRepository{db: db}
}

// FindByIDForTenant 按租户查询委外单
func (r *ExternalJobRepository) FindByIDForTenant(ctx context.Context, id, tenantID string) (*entity.ExternalJob, error) {
	var job entity.ExternalJob
	err := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// FindByTokenHash 按令牌摘要查询委外单
func (r *ExternalJobRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*entity.ExternalJob, error) {
	var job entity.ExternalJob
	err := r.db.WithContext(ctx).
		Where("partner_request_token_hash = ?", tokenHash).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateFields 更新指定列
func (r *ExternalJobRepository) UpdateFields(ctx context.Context, id string, fields map[string]interface{}) error {
	fields["updated_at"] = time.Now()
	return r.db.WithContext(ctx).
		Model(&entity.ExternalJob{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// AdvanceStatus 条件推进状态：仅当当前状态在 from 中才写入。
// 返回是否真正发生了流转，并发下最多一个调用方拿到 true。
func (r *ExternalJobRepository) AdvanceStatus(ctx context.Context, id string, from []string, to string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&entity.ExternalJob{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkViewedOnce 首次访问时盖章 viewed_at，已有值则不变
func (r *ExternalJobRepository) MarkViewedOnce(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entity.ExternalJob{}).
		Where("id = ? AND viewed_at IS NULL", id).
		Update("viewed_at", at).Error
}
