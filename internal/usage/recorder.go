package usage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/marketforge/marketforge/internal/ledger"
	"github.com/marketforge/marketforge/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultWriteTimeout = 5 * time.Second

// errUserMissing is returned when the counters row vanished between access check and record.
var errUserMissing = errors.New("usage: user no longer exists")

// Attempt describes one finished generation attempt.
type Attempt struct {
	UserID         uint64
	ToolID         string
	ToolName       string
	Input          json.RawMessage
	Output         json.RawMessage
	ProcessingTime time.Duration
	ErrorMessage   string // Empty for successful attempts.
	At             time.Time
}

// Succeeded reports whether the attempt produced output.
func (a Attempt) Succeeded() bool {
	return a.ErrorMessage == ""
}

// Receipt is the outcome of a recorded attempt.
type Receipt struct {
	RecordID uint64
	Counters Snapshot
}

// Recorder appends ledger entries and keeps the user counters in step.
type Recorder struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewRecorder constructs a Recorder.
func NewRecorder(db *gorm.DB) *Recorder {
	return &Recorder{db: db, timeout: defaultWriteTimeout}
}

// Record writes the ledger entry and, for successes, the counter increments in one transaction.
// Receipt.Counters is only filled for successes.
// The write is detached from ctx cancellation so a disconnected client still leaves a record.
func (r *Recorder) Record(ctx context.Context, attempt Attempt) (Receipt, error) {
	if r == nil || r.db == nil {
		return Receipt{}, errors.New("usage: recorder not initialized")
	}
	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	at := attempt.At
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()

	entry := ledger.Entry{
		UserID:         attempt.UserID,
		ToolID:         attempt.ToolID,
		ToolName:       attempt.ToolName,
		Input:          attempt.Input,
		ProcessingTime: attempt.ProcessingTime,
		Status:         models.UsageStatusSuccess,
		CreatedAt:      at,
	}
	if attempt.Succeeded() {
		entry.Output = attempt.Output
	} else {
		entry.Status = models.UsageStatusError
		entry.ErrorMessage = attempt.ErrorMessage
	}

	var receipt Receipt
	errTx := r.db.WithContext(dbCtx).Transaction(func(tx *gorm.DB) error {
		row, errAppend := ledger.Append(dbCtx, tx, entry)
		if errAppend != nil {
			return errAppend
		}
		receipt.RecordID = row.ID
		if !attempt.Succeeded() {
			return nil
		}
		if errInc := increment(tx, attempt.UserID, attempt.ToolID, at); errInc != nil {
			return errInc
		}
		snap, errSnap := snapshot(tx, attempt.UserID)
		if errSnap != nil {
			return errSnap
		}
		receipt.Counters = snap
		return nil
	})
	if errTx != nil {
		return Receipt{}, fmt.Errorf("usage: record attempt: %w", errTx)
	}
	return receipt, nil
}

func increment(tx *gorm.DB, userID uint64, toolID string, at time.Time) error {
	res := tx.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]any{
			"total_generations":   gorm.Expr("total_generations + 1"),
			"monthly_generations": gorm.Expr("monthly_generations + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errUserMissing
	}
	row := models.ToolUsage{UserID: userID, ToolID: toolID, UsageCount: 1, LastUsed: at}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "tool_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"usage_count": gorm.Expr("tool_usages.usage_count + 1"),
			"last_used":   at,
		}),
	}).Create(&row).Error
}
