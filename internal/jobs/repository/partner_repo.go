package repository

import (
	"context"
	"errors"

	"github.com/vapl/production-workflow-system-sub005/internal/jobs/entity"
	"gorm.io/gorm"
)

// PartnerRepository 合作方仓库
type PartnerRepository struct {
	db *gorm.DB
}

func NewPartnerRepository(db *gorm.DB) *PartnerRepository {
	return &PartnerRepository{db: db}
}

// FindByID 查询合作方
func (r *PartnerRepository) FindByID(ctx context.Context, id string) (*entity.Partner, error) {
	var p entity.Partner
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
