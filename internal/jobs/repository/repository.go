package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repositories 委外模块仓库集合
type Repositories struct {
	ExternalJob   *ExternalJobRepository
	Field         *FieldRepository
	Attachment    *AttachmentRepository
	StatusHistory *StatusHistoryRepository
	OrderComment  *OrderCommentRepository
	Tenant        *TenantRepository
	Partner       *PartnerRepository
	User          *UserRepository
}

// NewRepositories 创建委外模块仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		ExternalJob:   NewExternalJobRepository(db),
		Field:         NewFieldRepository(db),
		Attachment:    NewAttachmentRepository(db),
		StatusHistory: NewStatusHistoryRepository(db),
		OrderComment:  NewOrderCommentRepository(db),
		Tenant:        NewTenantRepository(db),
		Partner:       NewPartnerRepository(db),
		User:          NewUserRepository(db),
	}
}
