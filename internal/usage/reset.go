package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/marketforge/marketforge/internal/models"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DefaultMonthlyResetSchedule fires at 00:00 UTC on the first day of each month.
const DefaultMonthlyResetSchedule = "0 0 1 * *"

// ResetMonthly zeroes every user's monthly counter and returns how many rows changed.
func ResetMonthly(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(&models.User{}).
		Where("1 = 1").
		UpdateColumns(map[string]any{
			"monthly_generations": 0,
			"monthly_reset_at":    now.UTC(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("usage: monthly reset: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// MonthlyReset runs ResetMonthly on a cron schedule.
type MonthlyReset struct {
	db   *gorm.DB
	cron *cron.Cron
}

// NewMonthlyReset registers the reset job on schedule (standard five-field cron syntax, UTC).
func NewMonthlyReset(db *gorm.DB, schedule string) (*MonthlyReset, error) {
	if schedule == "" {
		schedule = DefaultMonthlyResetSchedule
	}
	m := &MonthlyReset{db: db, cron: cron.New(cron.WithLocation(time.UTC))}
	if _, errAdd := m.cron.AddFunc(schedule, m.run); errAdd != nil {
		return nil, fmt.Errorf("usage: invalid reset schedule %q: %w", schedule, errAdd)
	}
	return m, nil
}

// Start runs the scheduler until ctx is done.
func (m *MonthlyReset) Start(ctx context.Context) {
	m.cron.Start()
	go func() {
		<-ctx.Done()
		<-m.cron.Stop().Done()
	}()
}

func (m *MonthlyReset) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rows, errReset := ResetMonthly(ctx, m.db, time.Now())
	if errReset != nil {
		log.WithError(errReset).Error("usage: monthly counter reset failed")
		return
	}
	log.WithField("users", rows).Info("usage: monthly counters reset")
}
