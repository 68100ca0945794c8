package front

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marketforge/marketforge/internal/config"
	"github.com/marketforge/marketforge/internal/db"
	"github.com/marketforge/marketforge/internal/gateway"
	"github.com/marketforge/marketforge/internal/generation"
	"github.com/marketforge/marketforge/internal/models"
	"github.com/marketforge/marketforge/internal/policy"
	"github.com/marketforge/marketforge/internal/ratelimit"
	"github.com/marketforge/marketforge/internal/security"
	"github.com/marketforge/marketforge/internal/store"
	"github.com/marketforge/marketforge/internal/tools"
	"github.com/marketforge/marketforge/internal/usage"
	"gorm.io/gorm"
)

const testSecret = "front-test-secret"

type testServer struct {
	engine *gin.Engine
	conn   *gorm.DB
	jwt    config.JWTConfig
	now    time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "front.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	registry := tools.Default()
	provider := policy.StaticProvider(policy.NewEvaluator(registry, policy.NewTable(registry, nil, nil)))
	limiter := ratelimit.NewManager(func() ratelimit.SettingsConfig {
		return ratelimit.SettingsConfig{
			GenerateLimit:  10,
			GenerateWindow: time.Minute,
			LoginLimit:     3,
			LoginWindow:    time.Minute,
		}
	}, clock, nil)
	gw := gateway.New(gateway.Config{
		Registry:  registry,
		Users:     store.NewGormUserStore(conn),
		Limiter:   limiter,
		Limits:    func() ratelimit.Decision { return ratelimit.ResolveLimit(limiter.Settings(), ratelimit.ScopeGenerate) },
		Policy:    provider,
		Generator: generation.PlaceholderGenerator{},
		Recorder:  usage.NewRecorder(conn),
		Now:       clock,
	})
	jwtCfg := config.JWTConfig{Secret: testSecret, UserExpiry: 7 * 24 * time.Hour, AdminExpiry: 24 * time.Hour}

	r := gin.New()
	RegisterFrontRoutes(r, Deps{
		DB:       conn,
		JWT:      jwtCfg,
		Registry: registry,
		Policy:   provider,
		Gateway:  gw,
		Limiter:  limiter,
		Now:      clock,
	})
	return &testServer{engine: r, conn: conn, jwt: jwtCfg, now: now}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var payload map[string]any
	if w.Body.Len() > 0 {
		if errDecode := json.Unmarshal(w.Body.Bytes(), &payload); errDecode != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, w.Body.String(), errDecode)
		}
	}
	return w, payload
}

func (s *testServer) userWithPlan(t *testing.T, email, plan string) string {
	t.Helper()
	users := store.NewGormUserStore(s.conn)
	user, err := users.Create(context.Background(), store.NewUser{Name: "Tester", Email: email, Password: "secret1"}, s.now)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if plan != models.PlanFreeTrial {
		user.Subscription = models.Subscription{Plan: plan, Status: models.SubscriptionActive}
		if errSave := s.conn.Save(user).Error; errSave != nil {
			t.Fatalf("save user: %v", errSave)
		}
	}
	token, _, errToken := security.IssueUserToken(s.jwt.Secret, user.ID, user.Role, s.jwt.UserExpiry)
	if errToken != nil {
		t.Fatalf("issue token: %v", errToken)
	}
	return token
}

func TestRegisterThenMe(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{
		"name": "Ada", "email": "Ada@Example.com", "password": "secret1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("expected token, got %v", body)
	}
	user := body["user"].(map[string]any)
	if user["email"] != "ada@example.com" {
		t.Fatalf("expected normalized email, got %v", user["email"])
	}
	sub := user["subscription"].(map[string]any)
	if sub["plan"] != models.PlanFreeTrial || sub["status"] != models.SubscriptionTrial {
		t.Fatalf("expected free trial, got %v", sub)
	}
	if sub["trialDaysLeft"] != float64(7) {
		t.Fatalf("expected 7 trial days left, got %v", sub["trialDaysLeft"])
	}

	w, body = s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body["user"].(map[string]any)["name"] != "Ada" {
		t.Fatalf("unexpected me body %v", body)
	}
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t)

	cases := []gin.H{
		{"name": "Ada", "email": "not-an-email", "password": "secret1"},
		{"name": "Ada", "email": "ada@example.com", "password": "123"},
		{"email": "ada@example.com", "password": "secret1"},
	}
	for _, body := range cases {
		w, resp := s.do(t, http.MethodPost, "/api/auth/register", "", body)
		if w.Code != http.StatusBadRequest || resp["error"] != "VALIDATION_ERROR" {
			t.Fatalf("%v: expected 400 VALIDATION_ERROR, got %d %v", body, w.Code, resp)
		}
	}

	first, _ := s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"name": "Ada", "email": "ada@example.com", "password": "secret1"})
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}
	dup, resp := s.do(t, http.MethodPost, "/api/auth/register", "", gin.H{"name": "Ada", "email": "ADA@example.com", "password": "secret1"})
	if dup.Code != http.StatusConflict || resp["error"] != "CONFLICT" {
		t.Fatalf("expected 409, got %d %v", dup.Code, resp)
	}
}

func TestLoginAndThrottle(t *testing.T) {
	s := newTestServer(t)
	s.userWithPlan(t, "bob@example.com", models.PlanStarter)

	w, body := s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "bob@example.com", "password": "secret1"})
	if w.Code != http.StatusOK || body["token"] == "" {
		t.Fatalf("expected login success, got %d %v", w.Code, body)
	}

	w, body = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "bob@example.com", "password": "wrong-pass"})
	if w.Code != http.StatusUnauthorized || body["error"] != "INVALID_CREDENTIALS" {
		t.Fatalf("expected 401 INVALID_CREDENTIALS, got %d %v", w.Code, body)
	}

	w, _ = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "Bob@example.com", "password": "wrong-pass"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected third attempt to reach credential check, got %d", w.Code)
	}
	w, body = s.do(t, http.MethodPost, "/api/auth/login", "", gin.H{"email": "bob@example.com", "password": "secret1"})
	if w.Code != http.StatusTooManyRequests || body["error"] != "RATE_LIMITED" {
		t.Fatalf("expected 429 after three attempts, got %d %v", w.Code, body)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestRequiresUserToken(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodGet, "/api/ai-tools", "", nil)
	if w.Code != http.StatusUnauthorized || body["error"] != "UNAUTHORIZED" {
		t.Fatalf("expected 401 without token, got %d %v", w.Code, body)
	}

	adminToken, _, err := security.IssueAdminToken(testSecret, 1, models.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("issue admin token: %v", err)
	}
	w, body = s.do(t, http.MethodGet, "/api/ai-tools", adminToken, nil)
	if w.Code != http.StatusUnauthorized || body["error"] != "INVALID_TOKEN" {
		t.Fatalf("expected admin token rejected, got %d %v", w.Code, body)
	}
}

func TestToolListReflectsPlan(t *testing.T) {
	s := newTestServer(t)
	proToken := s.userWithPlan(t, "pro@example.com", models.PlanPro)
	trialToken := s.userWithPlan(t, "trial@example.com", models.PlanFreeTrial)
	registry := tools.Default()

	w, body := s.do(t, http.MethodGet, "/api/ai-tools", proToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	list := body["tools"].([]any)
	if len(list) != len(registry.IDs()) {
		t.Fatalf("expected %d tools, got %d", len(registry.IDs()), len(list))
	}
	for _, item := range list {
		entry := item.(map[string]any)
		if entry["hasAccess"] != true {
			t.Fatalf("pro: expected access to %v", entry["id"])
		}
	}

	_, body = s.do(t, http.MethodGet, "/api/ai-tools", trialToken, nil)
	for _, item := range body["tools"].([]any) {
		entry := item.(map[string]any)
		def, _ := registry.Get(entry["id"].(string))
		if entry["hasAccess"] != def.FreeInTrial {
			t.Fatalf("trial: tool %s expected hasAccess=%v, got %v", def.ID, def.FreeInTrial, entry["hasAccess"])
		}
		if !def.FreeInTrial && entry["denyReason"] != "TOOL_NOT_IN_PLAN" {
			t.Fatalf("trial: tool %s expected TOOL_NOT_IN_PLAN, got %v", def.ID, entry["denyReason"])
		}
	}
}

func TestGenerateAndHistory(t *testing.T) {
	s := newTestServer(t)
	token := s.userWithPlan(t, "gen@example.com", models.PlanFreeTrial)

	w, body := s.do(t, http.MethodPost, "/api/ai-tools/ad-copy/generate", token, gin.H{
		"input": gin.H{"product": "trail shoes", "audience": "runners"},
	})
	if w.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("expected success, got %d %s", w.Code, w.Body.String())
	}
	if _, ok := body["output"].(map[string]any); !ok {
		t.Fatalf("expected object output, got %v", body["output"])
	}
	counters := body["usage"].(map[string]any)
	if counters["totalGenerations"] != float64(1) {
		t.Fatalf("expected one generation, got %v", counters)
	}

	w, body = s.do(t, http.MethodPost, "/api/ai-tools/brand-voice/generate", token, gin.H{"input": gin.H{"brand": "Acme"}})
	if w.Code != http.StatusForbidden || body["error"] != "TOOL_NOT_IN_PLAN" || body["requiredPlan"] != models.PlanStarter {
		t.Fatalf("expected 403 TOOL_NOT_IN_PLAN, got %d %v", w.Code, body)
	}

	w, body = s.do(t, http.MethodGet, "/api/ai-tools/usage-history?limit=5", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	records := body["records"].([]any)
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	record := records[0].(map[string]any)
	if record["toolId"] != tools.AdCopy || record["status"] != models.UsageStatusSuccess {
		t.Fatalf("unexpected record %v", record)
	}
	if _, hasInput := record["input"]; hasInput {
		t.Fatalf("expected list view without payloads")
	}
	pagination := body["pagination"].(map[string]any)
	if pagination["total"] != float64(1) || pagination["limit"] != float64(5) {
		t.Fatalf("unexpected pagination %v", pagination)
	}

	id := int(record["id"].(float64))
	w, body = s.do(t, http.MethodGet, "/api/ai-tools/usage-history/"+strconv.Itoa(id), token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected detail 200, got %d", w.Code)
	}
	detail := body["record"].(map[string]any)
	if detail["input"].(map[string]any)["product"] != "trail shoes" {
		t.Fatalf("expected stored input, got %v", detail["input"])
	}

	other := s.userWithPlan(t, "other@example.com", models.PlanPro)
	w, _ = s.do(t, http.MethodGet, "/api/ai-tools/usage-history/"+strconv.Itoa(id), other, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected other user to get 404, got %d", w.Code)
	}

	w, body = s.do(t, http.MethodGet, "/api/ai-tools/usage-stats", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected stats 200, got %d", w.Code)
	}
	if body["usage"].(map[string]any)["monthlyGenerations"] != float64(1) {
		t.Fatalf("unexpected stats %v", body)
	}

	w, body = s.do(t, http.MethodGet, "/api/ai-tools/usage-history/export?status=success", token, nil)
	if w.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("unexpected export %d %v", w.Code, body)
	}

	w, body = s.do(t, http.MethodGet, "/api/ai-tools/usage-history?status=pending", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d %v", w.Code, body)
	}
}

func TestPlansListIsPublic(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do(t, http.MethodGet, "/api/plans", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	plans := body["plans"].([]any)
	if len(plans) == 0 {
		t.Fatalf("expected seeded plans")
	}
	first := plans[0].(map[string]any)
	if first["key"] != models.PlanFreeTrial {
		t.Fatalf("expected free trial first, got %v", first["key"])
	}
	if len(first["tools"].([]any)) != len(tools.Default().FreeInTrialIDs()) {
		t.Fatalf("expected trial tools, got %v", first["tools"])
	}
	if len(body["tools"].([]any)) != len(tools.Default().IDs()) {
		t.Fatalf("expected per-tool required plans, got %v", body["tools"])
	}
}
