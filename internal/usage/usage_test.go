package usage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/marketforge/marketforge/internal/db"
	"github.com/marketforge/marketforge/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "usage.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func createUser(t *testing.T, conn *gorm.DB) *models.User {
	t.Helper()
	user := &models.User{
		Name:         "Grace",
		Email:        "grace@example.com",
		Password:     "x",
		Role:         models.RoleUser,
		Subscription: models.Subscription{Plan: models.PlanPro, Status: models.SubscriptionActive},
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func success(userID uint64, toolID string) Attempt {
	return Attempt{
		UserID:         userID,
		ToolID:         toolID,
		ToolName:       toolID,
		Input:          json.RawMessage(`{"product":"tea"}`),
		Output:         json.RawMessage(`{"ok":true}`),
		ProcessingTime: 250 * time.Millisecond,
	}
}

func TestSequentialSuccessesIncrementExactlyN(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn)
	rec := NewRecorder(conn)

	const n = 7
	var last Receipt
	for i := 0; i < n; i++ {
		receipt, err := rec.Record(context.Background(), success(user.ID, "ad-copy"))
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		last = receipt
	}
	if last.Counters.TotalGenerations != n || last.Counters.MonthlyGenerations != n {
		t.Fatalf("expected counters %d, got %+v", n, last.Counters)
	}
	if len(last.Counters.ToolsUsed) != 1 || last.Counters.ToolsUsed[0].UsageCount != n {
		t.Fatalf("expected one tool with count %d, got %+v", n, last.Counters.ToolsUsed)
	}

	var entries int64
	conn.Model(&models.UsageRecord{}).Where("user_id = ?", user.ID).Count(&entries)
	if entries != n {
		t.Fatalf("expected %d ledger entries, got %d", n, entries)
	}
}

func TestConcurrentSuccessesAreNotLost(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn)
	rec := NewRecorder(conn)

	const n = 12
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := rec.Record(context.Background(), success(user.ID, "seo-audit")); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("record: %v", err)
	}

	snap, err := NewCounters(conn).Snapshot(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.TotalGenerations != n || snap.ToolsUsed[0].UsageCount != n {
		t.Fatalf("expected %d, got %+v", n, snap)
	}
}

func TestErrorAttemptLeavesCountersUntouched(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn)
	rec := NewRecorder(conn)

	attempt := success(user.ID, "ad-copy")
	attempt.Output = nil
	attempt.ErrorMessage = "context deadline exceeded"
	receipt, err := rec.Record(context.Background(), attempt)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if receipt.Counters.TotalGenerations != 0 || len(receipt.Counters.ToolsUsed) != 0 {
		t.Fatalf("expected untouched counters, got %+v", receipt.Counters)
	}

	var row models.UsageRecord
	if errFind := conn.First(&row, receipt.RecordID).Error; errFind != nil {
		t.Fatalf("load entry: %v", errFind)
	}
	if row.Status != models.UsageStatusError || row.ErrorMessage != "context deadline exceeded" {
		t.Fatalf("unexpected entry %+v", row)
	}
}

func TestRecordSurvivesCanceledContext(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRecorder(conn).Record(ctx, success(user.ID, "ad-copy")); err != nil {
		t.Fatalf("expected record to ignore caller cancellation, got %v", err)
	}
}

func TestRecordForMissingUserRollsBack(t *testing.T) {
	conn := openTestDB(t)
	if _, err := NewRecorder(conn).Record(context.Background(), success(404, "ad-copy")); !IsUserMissing(err) {
		t.Fatalf("expected missing user error, got %v", err)
	}
	var entries int64
	conn.Model(&models.UsageRecord{}).Count(&entries)
	if entries != 0 {
		t.Fatalf("expected ledger append rolled back, got %d entries", entries)
	}
}

func TestErrorAttemptRecordedAfterUserDeleted(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn)
	if errDelete := conn.Delete(&models.User{}, user.ID).Error; errDelete != nil {
		t.Fatalf("delete user: %v", errDelete)
	}

	attempt := success(user.ID, "ad-copy")
	attempt.Output = nil
	attempt.ErrorMessage = "upstream unavailable"
	receipt, err := NewRecorder(conn).Record(context.Background(), attempt)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	var entries int64
	conn.Model(&models.UsageRecord{}).Where("user_id = ?", user.ID).Count(&entries)
	if entries != 1 || receipt.RecordID == 0 {
		t.Fatalf("expected error entry kept, got %d entries (record %d)", entries, receipt.RecordID)
	}
}

func TestRecomputeRepairsDriftedCounters(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn)
	rec := NewRecorder(conn)
	for i := 0; i < 3; i++ {
		if _, err := rec.Record(context.Background(), success(user.ID, "ad-copy")); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if _, err := rec.Record(context.Background(), success(user.ID, "blog-outline")); err != nil {
		t.Fatalf("record: %v", err)
	}
	conn.Model(&models.User{}).Where("id = ?", user.ID).UpdateColumn("total_generations", 99)
	conn.Where("user_id = ?", user.ID).Delete(&models.ToolUsage{})

	snap, err := NewCounters(conn).Recompute(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if snap.TotalGenerations != 4 || snap.MonthlyGenerations != 4 {
		t.Fatalf("expected 4 generations, got %+v", snap)
	}
	if len(snap.ToolsUsed) != 2 || snap.ToolsUsed[0].ToolID != "ad-copy" || snap.ToolsUsed[0].UsageCount != 3 {
		t.Fatalf("unexpected tools %+v", snap.ToolsUsed)
	}
}

func TestResetMonthlyZeroesMonthlyOnly(t *testing.T) {
	conn := openTestDB(t)
	user := createUser(t, conn)
	if _, err := NewRecorder(conn).Record(context.Background(), success(user.ID, "ad-copy")); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := ResetMonthly(context.Background(), conn, time.Now()); err != nil {
		t.Fatalf("reset: %v", err)
	}
	snap, _ := NewCounters(conn).Snapshot(context.Background(), user.ID)
	if snap.MonthlyGenerations != 0 || snap.TotalGenerations != 1 {
		t.Fatalf("unexpected counters after reset %+v", snap)
	}
}

func TestNewMonthlyResetRejectsBadSchedule(t *testing.T) {
	if _, err := NewMonthlyReset(nil, "not a schedule"); err == nil {
		t.Fatalf("expected schedule parse error")
	}
}
