package service

import (
	"strings"
	"testing"

	"github.com/vapl/production-workflow-system-sub005/internal/jobs/entity"
)

func strPtr(s string) *string {
	return &s
}

func fieldDef(id, key, label, fieldType string, scope *string, required bool) entity.FieldDefinition {
	return entity.FieldDefinition{
		ID:         id,
		TenantID:   "tenant-001",
		Key:        key,
		Label:      label,
		Type:       fieldType,
		Scope:      scope,
		IsRequired: required,
		IsActive:   true,
	}
}

func TestResolveFieldsPortalScopePrecedence(t *testing.T) {
	// F1 人工录入且必填，F2 门户回单非必填：
	// 门户上下文只出 F2，F1 不应出现也不应被当成必填校验
	f1 := fieldDef("f1", "inspection_result", "检验结果", entity.FieldTypeText, strPtr(entity.FieldScopeManual), true)
	f2 := fieldDef("f2", "batch_no", "批次号", entity.FieldTypeText, strPtr(entity.FieldScopePortalResponse), false)

	resolved := ResolveFields([]entity.FieldDefinition{f1, f2}, FieldContextPortalResponse)
	if len(resolved) != 1 {
		t.Fatalf("Expected 1 field, got %d", len(resolved))
	}
	if resolved[0].ID != "f2" {
		t.Errorf("Expected f2, got %s", resolved[0].ID)
	}
}

func TestResolveFieldsFallbackToManual(t *testing.T) {
	// 租户没配过门户作用域时回退到人工录入子集，scope为空也算manual
	f1 := fieldDef("f1", "qty", "数量", entity.FieldTypeNumber, strPtr(entity.FieldScopeManual), false)
	f2 := fieldDef("f2", "remark", "备注", entity.FieldTypeTextarea, nil, false)

	resolved := ResolveFields([]entity.FieldDefinition{f1, f2}, FieldContextPortalResponse)
	if len(resolved) != 2 {
		t.Fatalf("Expected 2 fields, got %d", len(resolved))
	}
	if resolved[0].ID != "f1" || resolved[1].ID != "f2" {
		t.Errorf("Expected order [f1 f2], got [%s %s]", resolved[0].ID, resolved[1].ID)
	}
}

func TestResolveFieldsDispatchViewIgnoresPortalScope(t *testing.T) {
	f1 := fieldDef("f1", "qty", "数量", entity.FieldTypeNumber, nil, false)
	f2 := fieldDef("f2", "batch_no", "批次号", entity.FieldTypeText, strPtr(entity.FieldScopePortalResponse), false)

	resolved := ResolveFields([]entity.FieldDefinition{f1, f2}, FieldContextDispatchView)
	if len(resolved) != 1 || resolved[0].ID != "f1" {
		t.Fatalf("Expected only f1 for dispatch view, got %v", resolved)
	}
}

func TestResolveFieldsDropsStatusKey(t *testing.T) {
	// 状态字段无论大小写和分隔符变体都要剔除
	for _, key := range []string{"status", "Status", "STATUS", "  status  ", "sta-tus"} {
		f := fieldDef("f1", key, "状态", entity.FieldTypeSelect, strPtr(entity.FieldScopePortalResponse), false)
		resolved := ResolveFields([]entity.FieldDefinition{f}, FieldContextPortalResponse)
		if key == "sta-tus" {
			// sta_tus 不等于 status，应保留
			if len(resolved) != 1 {
				t.Errorf("Key %q should be kept, got %d fields", key, len(resolved))
			}
			continue
		}
		if len(resolved) != 0 {
			t.Errorf("Key %q should be dropped, got %d fields", key, len(resolved))
		}
	}
}

func TestResolveFieldsDeduplicatesByID(t *testing.T) {
	f := fieldDef("f1", "batch_no", "批次号", entity.FieldTypeText, strPtr(entity.FieldScopePortalResponse), false)
	resolved := ResolveFields([]entity.FieldDefinition{f, f, f}, FieldContextPortalResponse)
	if len(resolved) != 1 {
		t.Fatalf("Expected 1 field after dedup, got %d", len(resolved))
	}
}

func TestCoerceFieldValueToggle(t *testing.T) {
	def := fieldDef("f1", "urgent", "是否加急", entity.FieldTypeToggle, nil, false)
	for raw, want := range map[string]bool{"true": true, "false": false, "": false, "yes": false} {
		v, err := CoerceFieldValue(&def, raw)
		if err != nil {
			t.Fatalf("Coerce toggle %q failed: %v", raw, err)
		}
		if v != want {
			t.Errorf("Toggle %q: expected %v, got %v", raw, want, v)
		}
	}
}

func TestCoerceFieldValueNumber(t *testing.T) {
	def := fieldDef("f1", "qty", "完成数量", entity.FieldTypeNumber, nil, false)

	v, err := CoerceFieldValue(&def, "42.5")
	if err != nil {
		t.Fatalf("Coerce number failed: %v", err)
	}
	if v != 42.5 {
		t.Errorf("Expected 42.5, got %v", v)
	}

	v, err = CoerceFieldValue(&def, "  ")
	if err != nil {
		t.Fatalf("Empty number should be null, got error: %v", err)
	}
	if v != nil {
		t.Errorf("Expected nil for empty number, got %v", v)
	}

	_, err = CoerceFieldValue(&def, "abc")
	if err == nil {
		t.Fatal("Expected error for non-numeric input")
	}
	if !strings.Contains(err.Error(), "完成数量") {
		t.Errorf("Error should name the field label, got %q", err.Error())
	}
}

func TestCoerceFieldValueRequired(t *testing.T) {
	def := fieldDef("f1", "batch_no", "批次号", entity.FieldTypeText, nil, true)

	_, err := CoerceFieldValue(&def, "   ")
	if err == nil {
		t.Fatal("Expected error for empty required field")
	}
	if !strings.Contains(err.Error(), "批次号") {
		t.Errorf("Error should name the field label, got %q", err.Error())
	}

	v, err := CoerceFieldValue(&def, "  B-100  ")
	if err != nil {
		t.Fatalf("Coerce failed: %v", err)
	}
	if v != "B-100" {
		t.Errorf("Expected trimmed string, got %v", v)
	}
}

func TestNormalizeFieldKey(t *testing.T) {
	cases := map[string]string{
		"Status":       "status",
		"  STATUS  ":   "status",
		"batch-no":     "batch_no",
		"Batch No.":    "batch_no",
		"完成数量qty": "qty",
	}
	for in, want := range cases {
		if got := normalizeFieldKey(in); got != want {
			t.Errorf("normalizeFieldKey(%q) = %q, want %q", in, got, want)
		}
	}
}
