package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/entity"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/service"
	"github.com/vapl/production-workflow-system-sub005/internal/jobs/testutil"
	"github.com/vapl/production-workflow-system-sub005/internal/shared/mailer"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeStore struct {
	puts []string
}

func (f *fakeStore) Put(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	io.Copy(io.Discard, reader)
	f.puts = append(f.puts, objectName)
	return nil
}

func (f *fakeStore) PresignedGet(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	return "https://signed.example.com/" + objectName, nil
}

type fakeMailer struct {
	sent []*mailer.Message
	err  error
}

func (f *fakeMailer) Send(msg *mailer.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type jobsTestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	Store  *fakeStore
	Mail   *fakeMailer
}

func setupJobsTest(t *testing.T) *jobsTestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	router := testutil.SetupRouter()
	store := &fakeStore{}
	mail := &fakeMailer{}

	services := service.NewServices(db, nil, store, mail, zap.NewNop(), service.Config{
		PortalBaseURL:      "https://portal.test",
		TokenTTL:           168,
		Bucket:             "external-jobs",
		DefaultFromName:    "委外协作平台",
		DefaultFromAddress: "no-reply@platform.test",
	})
	h := NewHandlers(services)

	router.GET("/external-jobs/respond/:token", h.Respond.View)
	router.POST("/external-jobs/respond/:token", h.Respond.Submit)
	api := testutil.AuthGroup(router, "/api/v1")
	api.POST("/external-jobs/dispatch", h.Dispatch.Dispatch)
	api.GET("/external-jobs/:id/dispatch-context", h.Dispatch.DispatchContext)

	return &jobsTestEnv{DB: db, Router: router, Store: store, Mail: mail}
}

// seedDispatchFixture 标准派发场景：已开通套餐的租户、管理员、待派发委外单
func seedDispatchFixture(t *testing.T, db *gorm.DB) (*entity.User, *entity.ExternalJob) {
	t.Helper()
	testutil.SeedTenant(t, db, "tenant-001", "Acme制造")
	user := testutil.SeedUser(t, db, "user-001", "tenant-001", "张工", "zhang@acme.test", entity.RoleAdmin)
	job := testutil.SeedJob(t, db, "job-001", "tenant-001", "order-001", "PO-1001", entity.JobStatusRequested)
	db.Model(job).Update("partner_email", "partner@factory.test")
	job.PartnerEmail = "partner@factory.test"
	return user, job
}

func countHistory(t *testing.T, db *gorm.DB, jobID, status string) int64 {
	t.Helper()
	var n int64
	db.Model(&entity.StatusHistoryEntry{}).Where("job_id = ? AND status = ?", jobID, status).Count(&n)
	return n
}

func TestDispatchSuccess(t *testing.T) {
	env := setupJobsTest(t)
	user, job := seedDispatchFixture(t, env.DB)
	token := testutil.GenerateTestToken(user.ID, user.Name, user.Email)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/external-jobs/dispatch",
		map[string]interface{}{"externalJobId": job.ID, "comment": "请尽快确认"}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if resp["success"] != true {
		t.Errorf("Expected success true, got %v", resp["success"])
	}
	if resp["expiresAt"] == nil {
		t.Error("Expected expiresAt in response")
	}

	var saved entity.ExternalJob
	env.DB.First(&saved, "id = ?", job.ID)
	if saved.Status != entity.JobStatusOrdered {
		t.Errorf("Expected status ordered, got %s", saved.Status)
	}
	if saved.RequestMode != entity.RequestModePartnerPortal {
		t.Errorf("Expected request_mode partner_portal, got %s", saved.RequestMode)
	}
	if saved.PartnerRequestTokenHash == nil || *saved.PartnerRequestTokenHash == "" {
		t.Error("Expected token hash to be persisted")
	}
	if saved.SenderName != "张工" || saved.SenderEmail != "zhang@acme.test" {
		t.Errorf("Expected sender snapshot, got %s <%s>", saved.SenderName, saved.SenderEmail)
	}

	if n := countHistory(t, env.DB, job.ID, entity.JobStatusOrdered); n != 1 {
		t.Errorf("Expected 1 ordered history row, got %d", n)
	}

	if len(env.Mail.sent) != 1 {
		t.Fatalf("Expected 1 mail, got %d", len(env.Mail.sent))
	}
	msg := env.Mail.sent[0]
	if msg.To != "partner@factory.test" {
		t.Errorf("Expected mail to partner, got %s", msg.To)
	}
	if msg.HTML == "" || msg.Text == "" {
		t.Error("Expected dual-body mail")
	}
	// 原始令牌只出现在邮件链接里，不等于落库的摘要
	if saved.PartnerRequestTokenHash != nil {
		if !strings.Contains(msg.Text, "https://portal.test/external-jobs/respond/") {
			t.Error("Expected response link in mail body")
		}
		if strings.Contains(msg.Text, *saved.PartnerRequestTokenHash) {
			t.Error("Mail must not contain the stored digest")
		}
	}
}

func TestDispatchAlreadyOrderedRotatesTokenOnly(t *testing.T) {
	env := setupJobsTest(t)
	user, job := seedDispatchFixture(t, env.DB)
	token := testutil.GenerateTestToken(user.ID, user.Name, user.Email)

	// 第一次派发推进到 ordered
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/external-jobs/dispatch",
		map[string]interface{}{"externalJobId": job.ID}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("First dispatch failed: %d %s", w.Code, w.Body.String())
	}
	var afterFirst entity.ExternalJob
	env.DB.First(&afterFirst, "id = ?", job.ID)
	firstHash := *afterFirst.PartnerRequestTokenHash

	// 再次派发：状态不变、不追加审计，但令牌必须轮换
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/external-jobs/dispatch",
		map[string]interface{}{"externalJobId": job.ID}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Second dispatch failed: %d %s", w.Code, w.Body.String())
	}

	var afterSecond entity.ExternalJob
	env.DB.First(&afterSecond, "id = ?", job.ID)
	if afterSecond.Status != entity.JobStatusOrdered {
		t.Errorf("Expected status to stay ordered, got %s", afterSecond.Status)
	}
	if *afterSecond.PartnerRequestTokenHash == firstHash {
		t.Error("Expected token hash to rotate on re-dispatch")
	}
	if n := countHistory(t, env.DB, job.ID, entity.JobStatusOrdered); n != 1 {
		t.Errorf("Expected exactly 1 ordered history row, got %d", n)
	}
}

func TestDispatchMailFailureRollsBack(t *testing.T) {
	env := setupJobsTest(t)
	user, job := seedDispatchFixture(t, env.DB)
	token := testutil.GenerateTestToken(user.ID, user.Name, user.Email)

	var before entity.ExternalJob
	env.DB.First(&before, "id = ?", job.ID)

	env.Mail.err = errors.New("smtp unavailable")
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/external-jobs/dispatch",
		map[string]interface{}{"externalJobId": job.ID}, token)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d: %s", w.Code, w.Body.String())
	}

	// 发送失败整体回滚，委外单必须回到派发前的状态
	var after entity.ExternalJob
	env.DB.First(&after, "id = ?", job.ID)
	if after.Status != before.Status {
		t.Errorf("Expected status %s, got %s", before.Status, after.Status)
	}
	if after.PartnerRequestTokenHash != nil {
		t.Error("Expected no token hash after rollback")
	}
	if after.SenderName != before.SenderName || after.RequestMode != before.RequestMode {
		t.Error("Expected sender/request_mode unchanged after rollback")
	}
	if n := countHistory(t, env.DB, job.ID, entity.JobStatusOrdered); n != 0 {
		t.Errorf("Expected no history rows after rollback, got %d", n)
	}

	// 回滚后重试必须成功
	env.Mail.err = nil
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/external-jobs/dispatch",
		map[string]interface{}{"externalJobId": job.ID}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Retry after rollback failed: %d %s", w.Code, w.Body.String())
	}
}

func TestDispatchPermissionDenied(t *testing.T) {
	env := setupJobsTest(t)
	testutil.SeedTenant(t, env.DB, "tenant-001", "Acme制造")
	user := testutil.SeedUser(t, env.DB, "user-002", "tenant-001", "小李", "li@acme.test", "viewer")
	job := testutil.SeedJob(t, env.DB, "job-001", "tenant-001", "order-001", "PO-1001", entity.JobStatusRequested)
	env.DB.Model(job).Update("partner_email", "partner@factory.test")
	token := testutil.GenerateTestToken(user.ID, user.Name, user.Email)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/external-jobs/dispatch",
		map[string]interface{}{"externalJobId": job.ID}, token)
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if resp["error"] != "permission_denied" {
		t.Errorf("Expected permission_denied, got %v", resp["error"])
	}

	// 未放行就不能发出任何东西
	if len(env.Mail.sent) != 0 {
		t.Errorf("Expected no mail, got %d", len(env.Mail.sent))
	}
	var after entity.ExternalJob
	env.DB.First(&after, "id = ?", job.ID)
	if after.PartnerRequestTokenHash != nil {
		t.Error("Expected no token issued")
	}
}

func TestDispatchEngineeringRoleAllowed(t *testing.T) {
	env := setupJobsTest(t)
	testutil.SeedTenant(t, env.DB, "tenant-001", "Acme制造")
	// 工程角色不走租户角色配置，固定放行
	user := testutil.SeedUser(t, env.DB, "user-004", "tenant-001", "陈工", "chen@acme.test", entity.RoleEngineering)
	job := testutil.SeedJob(t, env.DB, "job-001", "tenant-001", "order-001", "PO-1001", entity.JobStatusRequested)
	env.DB.Model(job).Update("partner_email", "partner@factory.test")

	token := testutil.GenerateTestToken(user.ID, user.Name, user.Email)
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/external-jobs/dispatch",
		map[string]interface{}{"externalJobId": job.ID}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for engineering role, got %d: %s", w.Code, w.Body.String())
	}
	if len(env.Mail.sent) != 1 {
		t.Errorf("Expected 1 mail, got %d", len(env.Mail.sent))
	}
}

func TestDispatchAllowedByTenantRoleConfig(t *testing.T) {
	env := setupJobsTest(t)
	testutil.SeedTenant(t, env.DB, "tenant-001", "Acme制造")
	user := testutil.SeedUser(t, env.DB, "user-003", "tenant-001", "王主管", "wang@acme.test", "production_lead")
	job := testutil.SeedJob(t, env.DB, "job-001", "tenant-001", "order-001", "PO-1001", entity.JobStatusRequested)
	env.DB.Model(job).Update("partner_email", "partner@factory.test")

	roles := entity.JSONBArray{"production_lead"}
	env.DB.Create(&entity.TenantRolePermission{
		ID:         "perm-001",
		TenantID:   "tenant-001",
		Permission: entity.PermissionViewProduction,
		Roles:      &roles,
	})

	token := testutil.GenerateTestToken(user.ID, user.Name, user.Email)
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/external-jobs/dispatch",
		map[string]interface{}{"externalJobId": job.ID}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for tenant-configured role, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDispatchFeatureNotAvailable(t *testing.T) {
	env := setupJobsTest(t)
	tenant := testutil.SeedTenant(t, env.DB, "tenant-001", "Acme制造")
	env.DB.Model(tenant).Update("plan_tier", entity.PlanTierBasic)
	user := testutil.SeedUser(t, env.DB, "user-001", "tenant-001", "张工", "zhang@acme.test", entity.RoleAdmin)
	job := testutil.SeedJob(t, env.DB, "job-001", "tenant-001", "order-001", "PO-1001", entity.JobStatusRequested)
	token := testutil.GenerateTestToken(user.ID, user.Name, user.Email)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/external-jobs/dispatch",
		map[string]interface{}{"externalJobId": job.ID}, token)
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if resp["error"] != "feature_not_available" {
		t.Errorf("Expected feature_not_available, got %v", resp["error"])
	}
}

func TestDispatchJobNotFoundInTenant(t *testing.T) {
	env := setupJobsTest(t)
	user, _ := seedDispatchFixture(t, env.DB)
	// 别的租户的委外单对调用方不可见
	testutil.SeedTenant(t, env.DB, "tenant-002", "其他租户")
	other := testutil.SeedJob(t, env.DB, "job-x", "tenant-002", "order-x", "PO-X", entity.JobStatusRequested)
	token := testutil.GenerateTestToken(user.ID, user.Name, user.Email)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/external-jobs/dispatch",
		map[string]interface{}{"externalJobId": other.ID}, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDispatchMissingPartnerEmail(t *testing.T) {
	env := setupJobsTest(t)
	testutil.SeedTenant(t, env.DB, "tenant-001", "Acme制造")
	user := testutil.SeedUser(t, env.DB, "user-001", "tenant-001", "张工", "zhang@acme.test", entity.RoleAdmin)
	job := testutil.SeedJob(t, env.DB, "job-001", "tenant-001", "order-001", "PO-1001", entity.JobStatusRequested)
	token := testutil.GenerateTestToken(user.ID, user.Name, user.Email)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/external-jobs/dispatch",
		map[string]interface{}{"externalJobId": job.ID}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestDispatchPartnerEmailFallback(t *testing.T) {
	env := setupJobsTest(t)
	testutil.SeedTenant(t, env.DB, "tenant-001", "Acme制造")
	user := testutil.SeedUser(t, env.DB, "user-001", "tenant-001", "张工", "zhang@acme.test", entity.RoleAdmin)
	env.DB.Create(&entity.Partner{ID: "partner-001", TenantID: "tenant-001", Name: "精工厂", Email: "jing@factory.test"})
	job := testutil.SeedJob(t, env.DB, "job-001", "tenant-001", "order-001", "PO-1001", entity.JobStatusRequested)
	env.DB.Model(job).Update("partner_id", "partner-001")
	token := testutil.GenerateTestToken(user.ID, user.Name, user.Email)

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/external-jobs/dispatch",
		map[string]interface{}{"externalJobId": job.ID}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(env.Mail.sent) != 1 || env.Mail.sent[0].To != "jing@factory.test" {
		t.Errorf("Expected mail to partner profile email, got %+v", env.Mail.sent)
	}
}

func TestDispatchUnauthenticated(t *testing.T) {
	env := setupJobsTest(t)
	w := testutil.DoRequest(env.Router, "POST", "/api/v1/external-jobs/dispatch",
		map[string]interface{}{"externalJobId": "job-001"}, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}
}

func TestDispatchContextManualFieldsOnly(t *testing.T) {
	env := setupJobsTest(t)
	user, job := seedDispatchFixture(t, env.DB)
	portalScope := entity.FieldScopePortalResponse
	env.DB.Create(&entity.FieldDefinition{
		ID: "f1", TenantID: "tenant-001", Key: "qty", Label: "数量",
		Type: entity.FieldTypeNumber, IsActive: true,
	})
	env.DB.Create(&entity.FieldDefinition{
		ID: "f2", TenantID: "tenant-001", Key: "batch_no", Label: "批次号",
		Type: entity.FieldTypeText, Scope: &portalScope, IsActive: true,
	})

	token := testutil.GenerateTestToken(user.ID, user.Name, user.Email)
	w := testutil.DoRequest(env.Router, "GET", "/api/v1/external-jobs/"+job.ID+"/dispatch-context", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	fields := resp["fields"].([]interface{})
	if len(fields) != 1 {
		t.Fatalf("Expected only the manual field, got %d", len(fields))
	}
	first := fields[0].(map[string]interface{})
	if first["id"] != "f1" {
		t.Errorf("Expected f1, got %v", first["id"])
	}
}
