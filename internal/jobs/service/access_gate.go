package service

import (
	"context"
	"errors"

	"github.com/vapl/production-workflow-system-sub005/internal/jobs/entity"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/repository"
)

// Caller 通过鉴权的调用方
type Caller struct {
	User   *entity.User
	Tenant *entity.Tenant
}

// AccessGate 员工侧操作的鉴权门面
// 响应回单侧故意不走这里，只靠令牌校验。
type AccessGate struct {
	userRepo   *repository.UserRepository
	tenantRepo *repository.TenantRepository
}

func NewAccessGate(userRepo *repository.UserRepository, tenantRepo *repository.TenantRepository) *AccessGate {
	return &AccessGate{userRepo: userRepo, tenantRepo: tenantRepo}
}

// Authorize 解析调用方档案并做权限判定
// 静态高权角色直接放行；否则只要调用方角色出现在租户为
// 任一给定权限配置的角色列表里即通过（权限之间是OR关系）。
func (g *AccessGate) Authorize(ctx context.Context, userID string, permissions ...string) (*Caller, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	user, err := g.userRepo.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if user.TenantID == "" {
		return nil, ErrForbidden
	}

	tenant, err := g.tenantRepo.FindByID(ctx, user.TenantID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrForbidden
	}
	if err != nil {
		return nil, err
	}

	caller := &Caller{User: user, Tenant: tenant}
	if user.Role == entity.RoleAdmin || user.Role == entity.RoleEngineering {
		return caller, nil
	}

	for _, perm := range permissions {
		roles, err := g.tenantRepo.AllowedRoles(ctx, tenant.ID, perm)
		if err != nil {
			return nil, err
		}
		for _, role := range roles {
			if role == user.Role {
				return caller, nil
			}
		}
	}
	return nil, ErrForbidden
}
