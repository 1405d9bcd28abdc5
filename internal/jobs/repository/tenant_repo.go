package repository

import (
	"context"
	"errors"

	"github.com/vapl/production-workflow-system-sub005/internal/jobs/entity"
	"gorm.io/gorm"
)

// TenantRepository 租户仓库
type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// FindByID 查询租户
func (r *TenantRepository) FindByID(ctx context.Context, id string) (*entity.Tenant, error) {
	var t entity.Tenant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AllowedRoles 查询租户为某权限配置的角色列表，未配置返回空
func (r *TenantRepository) AllowedRoles(ctx context.Context, tenantID, permission string) ([]string, error) {
	var row entity.TenantRolePermission
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND permission = ?", tenantID, permission).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if row.Roles == nil {
		return nil, nil
	}
	roles := make([]string, 0, len(*row.Roles))
	for _, v := range *row.Roles {
		if s, ok := v.(string); ok {
			roles = append(roles, s)
		}
	}
	return roles, nil
}
