package service

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/entity"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/repository"
	"go.uber.org/zap"
)

// 字段解析上下文
const (
	FieldContextDispatchView   = "dispatch-view"
	FieldContextPortalResponse = "portal-response"
)

const fieldCacheTTL = 5 * time.Minute

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeFieldKey 字段key归一化：小写，非字母数字折叠为下划线
func normalizeFieldKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	k = nonAlnum.ReplaceAllString(k, "_")
	return strings.Trim(k, "_")
}

// ResolveFields 按上下文筛选字段定义
// 状态字段由状态机驱动，无论怎么配置都剔除。
// 合作方回单上下文优先取 portal_response 作用域子集，
// 租户没配过就回退到 manual（含scope为空）子集；最后按ID去重保序。
func ResolveFields(defs []entity.FieldDefinition, fieldContext string) []entity.FieldDefinition {
	candidates := make([]entity.FieldDefinition, 0, len(defs))
	for _, d := range defs {
		if normalizeFieldKey(d.Key) == "status" {
			continue
		}
		candidates = append(candidates, d)
	}

	scopeOf := func(d entity.FieldDefinition) string {
		if d.Scope == nil || *d.Scope == "" {
			return entity.FieldScopeManual
		}
		return *d.Scope
	}

	var resolved []entity.FieldDefinition
	switch fieldContext {
	case FieldContextPortalResponse:
		for _, d := range candidates {
			if scopeOf(d) == entity.FieldScopePortalResponse {
				resolved = append(resolved, d)
			}
		}
		if len(resolved) == 0 {
			for _, d := range candidates {
				if scopeOf(d) == entity.FieldScopeManual {
					resolved = append(resolved, d)
				}
			}
		}
	default:
		for _, d := range candidates {
			if scopeOf(d) == entity.FieldScopeManual {
				resolved = append(resolved, d)
			}
		}
	}

	// 上游配置异常可能出现重复行，按ID去重
	seen := make(map[string]bool, len(resolved))
	out := make([]entity.FieldDefinition, 0, len(resolved))
	for _, d := range resolved {
		if seen[d.ID] {
			continue
		}
		seen[d.ID] = true
		out = append(out, d)
	}
	return out
}

// CoerceFieldValue 按字段类型收敛表单原始输入
// toggle只认字面量"true"；number空值视为未填，非数字报错；
// 其余类型去首尾空白，空串视为未填。必填字段未填直接报错。
func CoerceFieldValue(def *entity.FieldDefinition, raw string) (interface{}, error) {
	var value interface{}
	switch def.Type {
	case entity.FieldTypeToggle:
		value = strings.TrimSpace(raw) == "true"
	case entity.FieldTypeNumber:
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			value = nil
		} else {
			n, err := strconv.ParseFloat(trimmed, 64)
			if err != nil {
				return nil, NewValidationError(def.Label, "必须是数字")
			}
			value = n
		}
	default:
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			value = nil
		} else {
			value = trimmed
		}
	}

	if def.IsRequired && value == nil {
		return nil, NewValidationError(def.Label, "为必填项")
	}
	return value, nil
}

// FieldResolver 动态字段解析服务，读多写少，定义走短时缓存
type FieldResolver struct {
	fieldRepo *repository.FieldRepository
	cache     *redis.Client
	logger    *zap.Logger
}

func NewFieldResolver(fieldRepo *repository.FieldRepository, cache *redis.Client, logger *zap.Logger) *FieldResolver {
	return &FieldResolver{fieldRepo: fieldRepo, cache: cache, logger: logger}
}

func (s *FieldResolver) cacheKey(tenantID string) string {
	return "extjob:fields:" + tenantID
}

// ActiveDefinitions 获取租户启用的字段定义，优先读缓存
func (s *FieldResolver) ActiveDefinitions(ctx context.Context, tenantID string) ([]entity.FieldDefinition, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, s.cacheKey(tenantID)).Bytes(); err == nil {
			var defs []entity.FieldDefinition
			if json.Unmarshal(raw, &defs) == nil {
				return defs, nil
			}
		}
	}

	defs, err := s.fieldRepo.ListActiveDefinitions(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if raw, err := json.Marshal(defs); err == nil {
			if err := s.cache.Set(ctx, s.cacheKey(tenantID), raw, fieldCacheTTL).Err(); err != nil {
				s.logger.Warn("字段定义写缓存失败", zap.String("tenant_id", tenantID), zap.Error(err))
			}
		}
	}
	return defs, nil
}

// Resolve 获取并按上下文解析租户字段定义
func (s *FieldResolver) Resolve(ctx context.Context, tenantID, fieldContext string) ([]entity.FieldDefinition, error) {
	defs, err := s.ActiveDefinitions(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return ResolveFields(defs, fieldContext), nil
}
