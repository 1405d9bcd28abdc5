package service

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/repository"
	"github.com/vapl/production-workflow-system-sub005/internal/shared/mailer"
	"github.com/vapl/production-workflow-system-sub005/internal/shared/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config 委外模块服务配置
type Config struct {
	PortalBaseURL      string
	TokenTTL           int // 小时
	Bucket             string
	DefaultFromName    string
	DefaultFromAddress string
}

// Services 委外模块服务集合
type Services struct {
	Gate     *AccessGate
	Resolver *FieldResolver
	Dispatch *DispatchService
	Response *ResponseService
}

// NewServices 创建委外模块服务集合
func NewServices(db *gorm.DB, rdb *redis.Client, store storage.ObjectStore, mail mailer.Mailer,
	logger *zap.Logger, cfg Config) *Services {

	repos := repository.NewRepositories(db)
	gate := NewAccessGate(repos.User, repos.Tenant)
	resolver := NewFieldResolver(repos.Field, rdb, logger)

	dispatch := NewDispatchService(db, repos, gate, resolver, store, mail, logger, DispatchConfig{
		PortalBaseURL:      cfg.PortalBaseURL,
		TokenTTL:           hoursToDuration(cfg.TokenTTL),
		DefaultFromName:    cfg.DefaultFromName,
		DefaultFromAddress: cfg.DefaultFromAddress,
	})
	response := NewResponseService(db, repos, resolver, store, mail, logger, ResponseConfig{
		Bucket:             cfg.Bucket,
		DefaultFromName:    cfg.DefaultFromName,
		DefaultFromAddress: cfg.DefaultFromAddress,
	})

	return &Services{
		Gate:     gate,
		Resolver: resolver,
		Dispatch: dispatch,
		Response: response,
	}
}

func hoursToDuration(hours int) time.Duration {
	if hours <= 0 {
		return 0
	}
	return time.Duration(hours) * time.Hour
}
