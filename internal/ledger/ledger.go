// Package ledger appends and queries the immutable per-attempt usage records.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/marketforge/marketforge/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Page size bounds for list queries.
const (
	DefaultLimit = 20
	MaxLimit     = 100
	MaxExport    = 1000
)

// ErrRecordNotFound is returned when a ledger entry does not exist for the user.
var ErrRecordNotFound = errors.New("ledger: record not found")

// listColumns excludes the input and output payloads.
var listColumns = []string{
	"id", "user_id", "tool_id", "tool_name", "processing_time_ms", "status", "error_message", "created_at",
}

// Entry is a single generation attempt to append.
type Entry struct {
	UserID         uint64
	ToolID         string
	ToolName       string
	Input          json.RawMessage
	Output         json.RawMessage
	ProcessingTime time.Duration
	Status         string
	ErrorMessage   string
	CreatedAt      time.Time
}

// Append writes entry using tx. It never updates existing rows.
func Append(ctx context.Context, tx *gorm.DB, entry Entry) (*models.UsageRecord, error) {
	if tx == nil {
		return nil, errors.New("ledger: nil tx")
	}
	status := entry.Status
	if status != models.UsageStatusSuccess && status != models.UsageStatusError {
		return nil, fmt.Errorf("ledger: invalid status %q", status)
	}
	if status == models.UsageStatusError && strings.TrimSpace(entry.ErrorMessage) == "" {
		entry.ErrorMessage = "generation failed"
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	row := models.UsageRecord{
		UserID:           entry.UserID,
		ToolID:           entry.ToolID,
		ToolName:         entry.ToolName,
		Input:            datatypes.JSON(entry.Input),
		ProcessingTimeMs: entry.ProcessingTime.Milliseconds(),
		Status:           status,
		ErrorMessage:     entry.ErrorMessage,
		CreatedAt:        createdAt.UTC(),
	}
	if len(entry.Output) > 0 {
		row.Output = datatypes.JSON(entry.Output)
	}
	if errCreate := tx.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return nil, fmt.Errorf("ledger: append: %w", errCreate)
	}
	return &row, nil
}

// Filter narrows list, export and stats queries. Zero values match everything.
type Filter struct {
	ToolID string
	Status string
	From   *time.Time
	To     *time.Time
}

// Page requests a 1-based offset page.
type Page struct {
	Page  int
	Limit int
}

// Normalize clamps the page into valid bounds.
func (p Page) Normalize() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// ListResult is one page of ledger entries, newest first.
type ListResult struct {
	Records []models.UsageRecord
	Page    int
	Limit   int
	Total   int64
	Pages   int
}

// Store reads the ledger.
type Store struct {
	db *gorm.DB
}

// NewStore constructs a Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Query lists entries for userID, or for every user when userID is zero.
func (s *Store) Query(ctx context.Context, userID uint64, filter Filter, page Page) (ListResult, error) {
	page = page.Normalize()
	q := s.scoped(ctx, userID, filter)

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return ListResult{}, fmt.Errorf("ledger: count: %w", errCount)
	}

	var rows []models.UsageRecord
	if errFind := q.Select(listColumns).
		Order("created_at DESC, id DESC").
		Offset((page.Page - 1) * page.Limit).
		Limit(page.Limit).
		Find(&rows).Error; errFind != nil {
		return ListResult{}, fmt.Errorf("ledger: list: %w", errFind)
	}

	return ListResult{
		Records: rows,
		Page:    page.Page,
		Limit:   page.Limit,
		Total:   total,
		Pages:   int(math.Ceil(float64(total) / float64(page.Limit))),
	}, nil
}

// Get returns one entry with its payloads. A zero userID skips the ownership check.
func (s *Store) Get(ctx context.Context, userID, id uint64) (*models.UsageRecord, error) {
	q := s.db.WithContext(ctx).Model(&models.UsageRecord{}).Where("id = ?", id)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	var row models.UsageRecord
	if errTake := q.Take(&row).Error; errTake != nil {
		if errors.Is(errTake, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("ledger: get: %w", errTake)
	}
	return &row, nil
}

// Export returns full entries matching filter, newest first, capped at MaxExport rows.
func (s *Store) Export(ctx context.Context, userID uint64, filter Filter) ([]models.UsageRecord, error) {
	var rows []models.UsageRecord
	if errFind := s.scoped(ctx, userID, filter).
		Order("created_at DESC, id DESC").
		Limit(MaxExport).
		Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("ledger: export: %w", errFind)
	}
	return rows, nil
}

func (s *Store) scoped(ctx context.Context, userID uint64, filter Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.UsageRecord{})
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	if toolID := strings.TrimSpace(filter.ToolID); toolID != "" {
		q = q.Where("tool_id = ?", toolID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		q = q.Where("status = ?", status)
	}
	if filter.From != nil {
		q = q.Where("created_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("created_at < ?", filter.To.UTC())
	}
	return q
}
