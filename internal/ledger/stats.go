package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/marketforge/marketforge/internal/db"
	"github.com/marketforge/marketforge/internal/models"
)

// ToolStat aggregates attempts for one tool.
type ToolStat struct {
	ToolID          string  `json:"toolId"`
	ToolName        string  `json:"toolName"`
	Success         int64   `json:"success"`
	Errors          int64   `json:"errors"`
	AvgProcessingMs float64 `json:"avgProcessingMs"`
}

// DayStat counts attempts per UTC day.
type DayStat struct {
	Day     string `json:"day"`
	Success int64  `json:"success"`
	Errors  int64  `json:"errors"`
}

// Stats summarizes the ledger since a point in time.
type Stats struct {
	Success int64      `json:"success"`
	Errors  int64      `json:"errors"`
	Tools   []ToolStat `json:"tools"`
	Days    []DayStat  `json:"days"`
}

// Stats aggregates entries created at or after since for userID, or for every user when zero.
func (s *Store) Stats(ctx context.Context, userID uint64, since time.Time) (Stats, error) {
	filter := Filter{}
	if !since.IsZero() {
		filter.From = &since
	}

	var toolRows []struct {
		ToolID   string
		ToolName string
		Status   string
		Count    int64
		AvgMs    float64
	}
	if errTools := s.scoped(ctx, userID, filter).
		Select("tool_id, MAX(tool_name) AS tool_name, status, COUNT(*) AS count, AVG(processing_time_ms) AS avg_ms").
		Group("tool_id, status").
		Order("tool_id ASC").
		Scan(&toolRows).Error; errTools != nil {
		return Stats{}, fmt.Errorf("ledger: tool stats: %w", errTools)
	}

	out := Stats{Tools: []ToolStat{}, Days: []DayStat{}}
	index := make(map[string]int)
	weighted := make(map[string]float64)
	for _, row := range toolRows {
		i, ok := index[row.ToolID]
		if !ok {
			i = len(out.Tools)
			index[row.ToolID] = i
			out.Tools = append(out.Tools, ToolStat{ToolID: row.ToolID, ToolName: row.ToolName})
		}
		switch row.Status {
		case models.UsageStatusSuccess:
			out.Tools[i].Success += row.Count
			out.Success += row.Count
		case models.UsageStatusError:
			out.Tools[i].Errors += row.Count
			out.Errors += row.Count
		}
		weighted[row.ToolID] += row.AvgMs * float64(row.Count)
	}
	for i := range out.Tools {
		if n := out.Tools[i].Success + out.Tools[i].Errors; n > 0 {
			out.Tools[i].AvgProcessingMs = weighted[out.Tools[i].ToolID] / float64(n)
		}
	}

	bucket := db.DayBucketExpr(s.db, "created_at")
	var dayRows []struct {
		Day    string
		Status string
		Count  int64
	}
	if errDays := s.scoped(ctx, userID, filter).
		Select(bucket + " AS day, status, COUNT(*) AS count").
		Group(bucket + ", status").
		Order("day ASC").
		Scan(&dayRows).Error; errDays != nil {
		return Stats{}, fmt.Errorf("ledger: daily stats: %w", errDays)
	}
	dayIndex := make(map[string]int)
	for _, row := range dayRows {
		i, ok := dayIndex[row.Day]
		if !ok {
			i = len(out.Days)
			dayIndex[row.Day] = i
			out.Days = append(out.Days, DayStat{Day: row.Day})
		}
		if row.Status == models.UsageStatusSuccess {
			out.Days[i].Success += row.Count
		} else {
			out.Days[i].Errors += row.Count
		}
	}
	return out, nil
}
