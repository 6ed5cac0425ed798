package db

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pulsemetrics/internal/schema"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, Migrate(gdb))
	return gdb
}

var base = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func aiRow(id, user, model string, at time.Time) *AIRequest {
	return &AIRequest{
		RequestID:   id,
		UserID:      user,
		Model:       model,
		Status:      schema.AIPending,
		Performance: Timing{StartTime: at},
		Timestamp:   at,
		ExpiresAt:   DefaultRetention.ExpiresAt(schema.DomainAI, at),
	}
}

func TestCreateAIRequestDuplicate(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newTestDB(t))

	require.NoError(t, s.CreateAIRequest(ctx, aiRow("req-1", "u1", "gpt-4", base)))
	ok, err := s.AIRequestExists(ctx, "req-1")
	require.NoError(t, err)
	assert.True(t, ok)

	err = s.CreateAIRequest(ctx, aiRow("req-1", "u2", "mistral", base))
	assert.ErrorIs(t, err, ErrDuplicate)

	got, err := s.FindAIRequest(ctx, "req-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4", got.Model)
}

func TestFindAIRequestIsOwnerScoped(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newTestDB(t))
	require.NoError(t, s.CreateAIRequest(ctx, aiRow("req-1", "u1", "gpt-4", base)))

	_, err := s.FindAIRequest(ctx, "req-1", "u2")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindAIRequest(ctx, "missing", "u1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAIRequest(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newTestDB(t))
	require.NoError(t, s.CreateAIRequest(ctx, aiRow("req-1", "u1", "gpt-4", base)))

	r, err := s.FindAIRequest(ctx, "req-1", "u1")
	require.NoError(t, err)
	end := base.Add(1500 * time.Millisecond)
	d := end.Sub(r.Performance.StartTime).Milliseconds()
	r.Status = schema.AICompleted
	r.Tokens = TokenUsage{Input: 10, Output: 4, Total: 14}
	r.Performance.EndTime = &end
	r.Performance.Duration = &d
	require.NoError(t, s.SaveAIRequest(ctx, r))

	got, err := s.FindAIRequest(ctx, "req-1", "u1")
	require.NoError(t, err)
	assert.Equal(t, schema.AICompleted, got.Status)
	assert.Equal(t, int64(14), got.Tokens.Total)
	require.NotNil(t, got.Performance.Duration)
	assert.Equal(t, int64(1500), *got.Performance.Duration)
}

func TestListFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newTestDB(t))
	for i, m := range []string{"gpt-4", "mistral", "gpt-4", "gpt-4"} {
		user := "u1"
		if i == 3 {
			user = "u2"
		}
		require.NoError(t, s.CreateAIRequest(ctx, aiRow(fmt.Sprintf("req-%d", i), user, m, base.Add(time.Duration(i)*time.Hour))))
	}

	all, err := s.ListAIRequests(ctx, Filter{}, Page{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "req-0", all[0].RequestID)
	assert.Equal(t, "req-3", all[3].RequestID)

	start, end := base.Add(time.Hour), base.Add(2*time.Hour)
	ranged, err := s.ListAIRequests(ctx, Filter{Start: &start, End: &end}, Page{})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)

	mine, err := s.ListAIRequests(ctx, Filter{UserID: "u1", Equals: map[string]any{"model": "gpt-4"}}, Page{})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "req-0", mine[0].RequestID)
	assert.Equal(t, "req-2", mine[1].RequestID)

	page, err := s.ListAIRequests(ctx, Filter{}, Page{Offset: 1, Limit: 2, Desc: true})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "req-2", page[0].RequestID)

	n, err := s.CountAIRequests(ctx, Filter{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestEngagementPropertiesRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newTestDB(t))
	ev := &EngagementEvent{
		EventID:    "e1",
		UserID:     "u1",
		SessionID:  "s1",
		Event:      "click",
		Properties: map[string]any{"button": "buy", "count": float64(2)},
		DeviceType: schema.DeviceDesktop,
		Timestamp:  base,
		ExpiresAt:  DefaultRetention.ExpiresAt(schema.DomainEngagement, base),
	}
	require.NoError(t, s.CreateEngagementEvent(ctx, ev))

	rows, err := s.ListEngagementEvents(ctx, Filter{UserID: "u1"}, Page{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "buy", rows[0].Properties["button"])
}

func TestSalesAndPerformanceUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newTestDB(t))

	tx := &SalesTransaction{TransactionID: "tx-1", UserID: "u1", Type: "one_time", Amount: 10, Currency: "USD", Status: schema.SaleCompleted, Timestamp: base, ExpiresAt: base}
	require.NoError(t, s.CreateSalesTransaction(ctx, tx))
	dup := *tx
	dup.ID = 0
	assert.ErrorIs(t, s.CreateSalesTransaction(ctx, &dup), ErrDuplicate)

	p := &PerformanceSample{RequestID: "p-1", Service: "auth", Endpoint: "/login", Method: "POST", StatusCode: 200, ResponseTime: 12, Timestamp: base, ExpiresAt: base}
	require.NoError(t, s.CreatePerformanceSample(ctx, p))
	ok, err := s.PerformanceSampleExists(ctx, "p-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRetentionSweep(t *testing.T) {
	ctx := context.Background()
	gdb := newTestDB(t)
	s := NewStore(gdb)

	now := base.Add(31 * 24 * time.Hour)
	old := &PerformanceSample{RequestID: "old", Service: "auth", Endpoint: "/", Method: "GET", StatusCode: 200, Timestamp: base, ExpiresAt: DefaultRetention.ExpiresAt(schema.DomainPerformance, base)}
	fresh := &PerformanceSample{RequestID: "fresh", Service: "auth", Endpoint: "/", Method: "GET", StatusCode: 200, Timestamp: now, ExpiresAt: DefaultRetention.ExpiresAt(schema.DomainPerformance, now)}
	require.NoError(t, s.CreatePerformanceSample(ctx, old))
	require.NoError(t, s.CreatePerformanceSample(ctx, fresh))
	require.NoError(t, s.CreateAIRequest(ctx, aiRow("ai", "u1", "gpt-4", base)))

	removed, err := runRetentionOnce(ctx, gdb, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed["performance_samples"])
	assert.Equal(t, int64(0), removed["ai_requests"])

	rows, err := s.ListPerformanceSamples(ctx, Filter{}, Page{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "fresh", rows[0].RequestID)
}

func TestRetentionHorizons(t *testing.T) {
	assert.Equal(t, 90*24*time.Hour, DefaultRetention.Horizon(schema.DomainAI))
	assert.Equal(t, 90*24*time.Hour, DefaultRetention.Horizon(schema.DomainEngagement))
	assert.Equal(t, 365*24*time.Hour, DefaultRetention.Horizon(schema.DomainSales))
	assert.Equal(t, 30*24*time.Hour, DefaultRetention.Horizon(schema.DomainPerformance))
	assert.Equal(t, base.Add(30*24*time.Hour), DefaultRetention.ExpiresAt(schema.DomainPerformance, base))
}
