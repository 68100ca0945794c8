package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marketforge/marketforge/internal/apperr"
	"github.com/marketforge/marketforge/internal/db"
	"github.com/marketforge/marketforge/internal/generation"
	"github.com/marketforge/marketforge/internal/models"
	"github.com/marketforge/marketforge/internal/policy"
	"github.com/marketforge/marketforge/internal/ratelimit"
	"github.com/marketforge/marketforge/internal/store"
	"github.com/marketforge/marketforge/internal/tools"
	"github.com/marketforge/marketforge/internal/usage"
	"gorm.io/gorm"
)

var adCopyInput = json.RawMessage(`{"product":"trail shoes","audience":"runners"}`)

type harness struct {
	conn  *gorm.DB
	users *store.GormUserStore
	gw    *Gateway
	now   time.Time
}

type generatorFunc func(ctx context.Context, def tools.Definition, input map[string]any) (json.RawMessage, error)

func (f generatorFunc) Generate(ctx context.Context, def tools.Definition, input map[string]any) (json.RawMessage, error) {
	return f(ctx, def, input)
}

func newHarness(t *testing.T, gen generation.Generator, now time.Time) *harness {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "gateway.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if gen == nil {
		gen = generation.PlaceholderGenerator{}
	}
	registry := tools.Default()
	clock := func() time.Time { return now }
	limiter := ratelimit.NewManager(func() ratelimit.SettingsConfig { return ratelimit.SettingsConfig{} }, clock, nil)
	users := store.NewGormUserStore(conn)
	gw := New(Config{
		Registry: registry,
		Users:    users,
		Limiter:  limiter,
		Limits: func() ratelimit.Decision {
			return ratelimit.Decision{Limit: 10, Window: time.Minute, Scope: ratelimit.ScopeGenerate}
		},
		Policy:    policy.StaticProvider(policy.NewEvaluator(registry, policy.NewTable(registry, nil, nil))),
		Generator: gen,
		Recorder:  usage.NewRecorder(conn),
		Now:       clock,
		Timeout:   100 * time.Millisecond,
	})
	return &harness{conn: conn, users: users, gw: gw, now: now}
}

func (h *harness) createUser(t *testing.T, email string, mutate func(*models.User)) *models.User {
	t.Helper()
	user, err := h.users.Create(context.Background(), store.NewUser{Name: "Test", Email: email, Password: "secret1"}, h.now)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if mutate != nil {
		mutate(user)
		if errSave := h.conn.Save(user).Error; errSave != nil {
			t.Fatalf("save user: %v", errSave)
		}
	}
	return user
}

func (h *harness) ledgerCount(t *testing.T, userID uint64) int64 {
	t.Helper()
	var n int64
	if err := h.conn.Model(&models.UsageRecord{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		t.Fatalf("count ledger: %v", err)
	}
	return n
}

func proPlan(u *models.User) {
	u.Subscription = models.Subscription{Plan: models.PlanPro, Status: models.SubscriptionActive}
}

func expectAppErr(t *testing.T, err error, status int, code string) map[string]any {
	t.Helper()
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("expected apperr.Error, got %v", err)
	}
	gotStatus, body := apperr.Body(err)
	if gotStatus != status || body["error"] != code {
		t.Fatalf("expected %d %s, got %d %v", status, code, gotStatus, body)
	}
	return body
}

func TestSequentialSuccessesUpdateCounters(t *testing.T) {
	h := newHarness(t, nil, time.Now())
	user := h.createUser(t, "pro@example.com", proPlan)

	var last *Result
	for i := 0; i < 4; i++ {
		res, err := h.gw.Invoke(context.Background(), Request{UserID: user.ID, ToolID: tools.BrandVoice, Input: json.RawMessage(`{"brand":"Acme","samples":"We build rockets."}`)})
		if err != nil {
			t.Fatalf("invoke %d: %v", i, err)
		}
		last = res
	}
	if last.Usage == nil || last.Usage.TotalGenerations != 4 || last.Usage.ToolsUsed[0].UsageCount != 4 {
		t.Fatalf("expected usage snapshot with 4 generations, got %+v", last.Usage)
	}
	if n := h.ledgerCount(t, user.ID); n != 4 {
		t.Fatalf("expected 4 ledger entries, got %d", n)
	}
}

func TestEleventhRequestInWindowIsRateLimited(t *testing.T) {
	h := newHarness(t, nil, time.Now())
	user := h.createUser(t, "burst@example.com", nil)

	for i := 0; i < 10; i++ {
		if _, err := h.gw.Invoke(context.Background(), Request{UserID: user.ID, ToolID: tools.AdCopy, Input: adCopyInput}); err != nil {
			t.Fatalf("invoke %d: %v", i+1, err)
		}
	}
	_, err := h.gw.Invoke(context.Background(), Request{UserID: user.ID, ToolID: tools.AdCopy, Input: adCopyInput})
	body := expectAppErr(t, err, http.StatusTooManyRequests, apperr.CodeRateLimited)
	if retry, _ := body["retryAfter"].(int); retry < 1 {
		t.Fatalf("expected retryAfter, got %v", body)
	}
	if n := h.ledgerCount(t, user.ID); n != 10 {
		t.Fatalf("expected rejected request to leave no ledger entry, got %d", n)
	}
}

func TestExpiredTrialIsForbidden(t *testing.T) {
	registered := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := newHarness(t, nil, registered)
	user := h.createUser(t, "trial@example.com", nil)

	h.gw.now = func() time.Time { return registered.Add(8 * 24 * time.Hour) }
	_, err := h.gw.Invoke(context.Background(), Request{UserID: user.ID, ToolID: tools.AdCopy, Input: adCopyInput})
	body := expectAppErr(t, err, http.StatusForbidden, string(policy.ReasonTrialExpired))
	if body["trialExpired"] != true || body["requiredPlan"] != models.PlanStarter {
		t.Fatalf("unexpected body %v", body)
	}
	if n := h.ledgerCount(t, user.ID); n != 0 {
		t.Fatalf("expected no ledger entry, got %d", n)
	}
}

func TestTrialUserDeniedPaidTool(t *testing.T) {
	h := newHarness(t, nil, time.Now())
	user := h.createUser(t, "trial2@example.com", nil)
	_, err := h.gw.Invoke(context.Background(), Request{UserID: user.ID, ToolID: tools.BrandVoice, Input: json.RawMessage(`{"brand":"Acme","samples":"x"}`)})
	body := expectAppErr(t, err, http.StatusForbidden, string(policy.ReasonToolNotInPlan))
	if _, ok := body["trialExpired"]; ok {
		t.Fatalf("did not expect trialExpired flag, got %v", body)
	}
}

func TestSuspendedUserDenied(t *testing.T) {
	h := newHarness(t, nil, time.Now())
	user := h.createUser(t, "sus@example.com", func(u *models.User) {
		proPlan(u)
		u.IsSuspended = true
	})
	_, err := h.gw.Invoke(context.Background(), Request{UserID: user.ID, ToolID: tools.AdCopy, Input: adCopyInput})
	expectAppErr(t, err, http.StatusForbidden, string(policy.ReasonAccountSuspended))
}

func TestGenerationTimeoutRecordsErrorEntry(t *testing.T) {
	slow := generatorFunc(func(ctx context.Context, _ tools.Definition, _ map[string]any) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	h := newHarness(t, slow, time.Now())
	user := h.createUser(t, "slow@example.com", proPlan)

	_, err := h.gw.Invoke(context.Background(), Request{UserID: user.ID, ToolID: tools.AdCopy, Input: adCopyInput})
	expectAppErr(t, err, http.StatusInternalServerError, apperr.CodeUpstream)

	var row models.UsageRecord
	if errFind := h.conn.Where("user_id = ?", user.ID).Take(&row).Error; errFind != nil {
		t.Fatalf("expected error entry: %v", errFind)
	}
	if row.Status != models.UsageStatusError || row.ErrorMessage == "" {
		t.Fatalf("unexpected entry %+v", row)
	}
	reloaded, _ := h.users.GetByID(context.Background(), user.ID)
	if reloaded.TotalGenerations != 0 {
		t.Fatalf("expected counters untouched, got %d", reloaded.TotalGenerations)
	}
}

func TestUpstreamFallbackIsReturned(t *testing.T) {
	broken := generatorFunc(func(context.Context, tools.Definition, map[string]any) (json.RawMessage, error) {
		return nil, &generation.UpstreamError{Message: "malformed", Fallback: json.RawMessage(`{"headlines":[]}`), Raw: "Sure! Here are headlines"}
	})
	h := newHarness(t, broken, time.Now())
	user := h.createUser(t, "fb@example.com", proPlan)

	_, err := h.gw.Invoke(context.Background(), Request{UserID: user.ID, ToolID: tools.AdCopy, Input: adCopyInput})
	body := expectAppErr(t, err, http.StatusInternalServerError, apperr.CodeUpstream)
	if fb, ok := body["fallback"].(json.RawMessage); !ok || string(fb) != `{"headlines":[]}` {
		t.Fatalf("expected fallback in body, got %v", body)
	}
	if body["raw"] != "Sure! Here are headlines" {
		t.Fatalf("expected raw completion in body, got %v", body)
	}
	var row models.UsageRecord
	if errFind := h.conn.Where("user_id = ?", user.ID).Take(&row).Error; errFind != nil {
		t.Fatalf("expected one error entry: %v", errFind)
	}
	if !strings.Contains(row.ErrorMessage, "Sure! Here are headlines") {
		t.Fatalf("expected raw text in ledger message, got %q", row.ErrorMessage)
	}
}

func TestClientDisconnectDuringGenerationStillRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	disconnecting := generatorFunc(func(genCtx context.Context, def tools.Definition, input map[string]any) (json.RawMessage, error) {
		cancel()
		if genCtx.Err() != nil {
			return nil, genCtx.Err()
		}
		return generation.PlaceholderGenerator{}.Generate(genCtx, def, input)
	})
	h := newHarness(t, disconnecting, time.Now())
	user := h.createUser(t, "gone@example.com", proPlan)

	res, err := h.gw.Invoke(ctx, Request{UserID: user.ID, ToolID: tools.AdCopy, Input: adCopyInput})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if ctx.Err() == nil {
		t.Fatalf("expected client context canceled during generation")
	}
	if n := h.ledgerCount(t, user.ID); n != 1 || res.RecordID == 0 {
		t.Fatalf("expected entry despite canceled client, got %d (record %d)", n, res.RecordID)
	}
	reloaded, _ := h.users.GetByID(context.Background(), user.ID)
	if reloaded.TotalGenerations != 1 {
		t.Fatalf("expected counters bumped, got %d", reloaded.TotalGenerations)
	}
}

func TestCanceledBeforeAccessCheckIsNotInternal(t *testing.T) {
	h := newHarness(t, nil, time.Now())
	user := h.createUser(t, "early@example.com", proPlan)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.gw.Invoke(ctx, Request{UserID: user.ID, ToolID: tools.AdCopy, Input: adCopyInput})
	expectAppErr(t, err, apperr.StatusClientClosedRequest, apperr.CodeCanceled)
	if n := h.ledgerCount(t, user.ID); n != 0 {
		t.Fatalf("expected no ledger entry, got %d", n)
	}
}

func TestInvalidInputRejectedWithoutSideEffects(t *testing.T) {
	h := newHarness(t, nil, time.Now())
	user := h.createUser(t, "bad@example.com", proPlan)

	cases := []json.RawMessage{nil, json.RawMessage(`null`), json.RawMessage(`{}`), json.RawMessage(`[1]`), json.RawMessage(`{"product":"x"}`)}
	for _, input := range cases {
		_, err := h.gw.Invoke(context.Background(), Request{UserID: user.ID, ToolID: tools.AdCopy, Input: input})
		expectAppErr(t, err, http.StatusBadRequest, apperr.CodeValidation)
	}
	if n := h.ledgerCount(t, user.ID); n != 0 {
		t.Fatalf("expected no ledger entries, got %d", n)
	}
}

func TestUnknownToolIsNotFound(t *testing.T) {
	h := newHarness(t, nil, time.Now())
	user := h.createUser(t, "unk@example.com", proPlan)
	_, err := h.gw.Invoke(context.Background(), Request{UserID: user.ID, ToolID: "mind-reader", Input: json.RawMessage(`{"a":1}`)})
	expectAppErr(t, err, http.StatusNotFound, string(policy.ReasonUnknownTool))
}

func TestDeletedUserIsUnauthorized(t *testing.T) {
	h := newHarness(t, nil, time.Now())
	_, err := h.gw.Invoke(context.Background(), Request{UserID: 9999, ToolID: tools.AdCopy, Input: adCopyInput})
	expectAppErr(t, err, http.StatusUnauthorized, apperr.CodeUnauthorized)
}
