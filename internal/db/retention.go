package db

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pulsemetrics/internal/schema"
)

// Retention holds the per-domain horizon in days.
type Retention struct {
	AI          int
	Engagement  int
	Sales       int
	Performance int
}

// DefaultRetention: engagement 90, sales 365, performance 30; AI requests
// share the engagement horizon.
var DefaultRetention = Retention{AI: 90, Engagement: 90, Sales: 365, Performance: 30}

// Horizon returns how long records of d are kept.
func (r Retention) Horizon(d schema.Domain) time.Duration {
	days := 0
	switch d {
	case schema.DomainAI:
		days = r.AI
	case schema.DomainEngagement:
		days = r.Engagement
	case schema.DomainSales:
		days = r.Sales
	case schema.DomainPerformance:
		days = r.Performance
	}
	return time.Duration(days) * 24 * time.Hour
}

// ExpiresAt is the expiring-index value for a record of d written at ts.
func (r Retention) ExpiresAt(d schema.Domain, ts time.Time) time.Time {
	return ts.Add(r.Horizon(d))
}

// runRetentionOnce performs a single pass of expiry housekeeping, deleting
// rows whose ExpiresAt is in the past. It returns the rows removed per table.
func runRetentionOnce(ctx context.Context, db *gorm.DB, now time.Time) (map[string]int64, error) {
	removed := make(map[string]int64, 4)
	expired := clause.Lte{Column: clause.Column{Name: "expires_at"}, Value: now.UTC()}
	for name, model := range map[string]any{
		"ai_requests":         &AIRequest{},
		"engagement_events":   &EngagementEvent{},
		"sales_transactions":  &SalesTransaction{},
		"performance_samples": &PerformanceSample{},
	} {
		res := db.WithContext(ctx).Where(expired).Delete(model)
		if res.Error != nil {
			return removed, res.Error
		}
		removed[name] = res.RowsAffected
	}
	return removed, nil
}

// StartRetentionWorker is the store-side half of the expiring index: a
// background goroutine that purges expired rows once at startup and then on
// every interval until ctx is cancelled. Deletion is eventual; rows may
// outlive their horizon by up to one interval.
func StartRetentionWorker(ctx context.Context, db *gorm.DB, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	sweep := func() {
		removed, err := runRetentionOnce(ctx, db, time.Now())
		if err != nil {
			log.Warn("retention sweep failed", zap.Error(err))
			return
		}
		for table, n := range removed {
			if n > 0 {
				log.Info("retention sweep", zap.String("table", table), zap.Int64("removed", n))
			}
		}
	}

	go func() {
		sweep()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sweep()
			}
		}
	}()
}
