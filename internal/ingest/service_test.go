package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsemetrics/internal/apperr"
	"pulsemetrics/internal/db"
	"pulsemetrics/internal/metrics"
	"pulsemetrics/internal/schema"
	"pulsemetrics/internal/scope"
)

// memStore keeps rows keyed by natural key. failNext makes the next write
// fail with the given error; skipExists hides rows from the pre-check to
// simulate a racing insert.
type memStore struct {
	mu         sync.Mutex
	ai         map[string]db.AIRequest
	engagement []db.EngagementEvent
	sales      map[string]db.SalesTransaction
	perf       map[string]db.PerformanceSample
	failNext   error
	skipExists bool
}

func newMemStore() *memStore {
	return &memStore{
		ai:    map[string]db.AIRequest{},
		sales: map[string]db.SalesTransaction{},
		perf:  map[string]db.PerformanceSample{},
	}
}

func (m *memStore) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memStore) AIRequestExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ai[id]
	return ok && !m.skipExists, nil
}

func (m *memStore) CreateAIRequest(_ context.Context, r *db.AIRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if _, ok := m.ai[r.RequestID]; ok {
		return db.ErrDuplicate
	}
	m.ai[r.RequestID] = *r
	return nil
}

func (m *memStore) FindAIRequest(_ context.Context, id, userID string) (*db.AIRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ai[id]
	if !ok || r.UserID != userID {
		return nil, db.ErrNotFound
	}
	return &r, nil
}

func (m *memStore) SaveAIRequest(_ context.Context, r *db.AIRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.ai[r.RequestID] = *r
	return nil
}

func (m *memStore) CreateEngagementEvent(_ context.Context, e *db.EngagementEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.engagement = append(m.engagement, *e)
	return nil
}

func (m *memStore) SalesTransactionExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sales[id]
	return ok && !m.skipExists, nil
}

func (m *memStore) CreateSalesTransaction(_ context.Context, t *db.SalesTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if _, ok := m.sales[t.TransactionID]; ok {
		return db.ErrDuplicate
	}
	m.sales[t.TransactionID] = *t
	return nil
}

func (m *memStore) FindSalesTransaction(_ context.Context, id, userID string) (*db.SalesTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.sales[id]
	if !ok || t.UserID != userID {
		return nil, db.ErrNotFound
	}
	return &t, nil
}

func (m *memStore) SaveSalesTransaction(_ context.Context, t *db.SalesTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.sales[t.TransactionID] = *t
	return nil
}

func (m *memStore) PerformanceSampleExists(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.perf[id]
	return ok && !m.skipExists, nil
}

func (m *memStore) CreatePerformanceSample(_ context.Context, p *db.PerformanceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if _, ok := m.perf[p.RequestID]; ok {
		return db.ErrDuplicate
	}
	m.perf[p.RequestID] = *p
	return nil
}

type fixture struct {
	svc   *Service
	store *memStore
	reg   *metrics.Registry
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: newMemStore(),
		reg:   metrics.New(),
		now:   time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC),
	}
	f.svc = NewService(f.store, f.reg, db.DefaultRetention, nil)
	f.svc.now = func() time.Time { return f.now }
	ids := 0
	f.svc.newID = func() string {
		ids++
		return fmt.Sprintf("gen-%d", ids)
	}
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) value(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	samples, err := f.reg.Snapshot()
	require.NoError(t, err)
	total := 0.0
outer:
	for _, s := range samples {
		if s.Name != name {
			continue
		}
		for k, v := range labels {
			if s.Labels[k] != v {
				continue outer
			}
		}
		if s.Kind == metrics.KindHistogram {
			total += float64(s.Count)
		} else {
			total += s.Value
		}
	}
	return total
}

func (f *fixture) seriesCount(t *testing.T) int {
	t.Helper()
	samples, err := f.reg.Snapshot()
	require.NoError(t, err)
	return len(samples)
}

var (
	alice = scope.Scope{ActorID: "alice"}
	admin = scope.Scope{ActorID: "root", Elevated: true}
)

func ptr[T any](v T) *T { return &v }

func aiInput(id string) *schema.AIRequestInput {
	return &schema.AIRequestInput{
		RequestID: id,
		Model:     "gpt-4",
		Feature:   "chat",
		UserPlan:  "pro",
		Tokens:    &schema.Tokens{Input: 10, Output: 5},
		Cost:      0.01,
	}
}

func TestTrackAICreatesPendingRequest(t *testing.T) {
	f := newFixture(t)

	row, err := f.svc.TrackAI(context.Background(), alice, aiInput("r1"))
	require.NoError(t, err)
	assert.Equal(t, "alice", row.UserID)
	assert.Equal(t, schema.AIPending, row.Status)
	assert.Equal(t, int64(15), row.Tokens.Total)
	assert.Equal(t, f.now.Truncate(time.Millisecond), row.Timestamp)
	assert.Equal(t, row.Timestamp, row.Performance.StartTime)
	assert.Equal(t, row.Timestamp.Add(90*24*time.Hour), row.ExpiresAt)
	assert.Equal(t, 1.0, f.value(t, "ai_requests_total", map[string]string{"status": "pending", "model": "gpt-4"}))
}

func TestTrackAIDuplicateIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.TrackAI(ctx, alice, aiInput("r1"))
	require.NoError(t, err)

	dup := aiInput("r1")
	dup.Model = "mistral"
	_, err = f.svc.TrackAI(ctx, alice, dup)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	assert.Equal(t, "gpt-4", f.store.ai["r1"].Model)
	assert.Equal(t, 1.0, f.value(t, "ai_requests_total", nil))
}

func TestTrackAIRacingDuplicateFromStoreIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.TrackAI(ctx, alice, aiInput("r1"))
	require.NoError(t, err)

	f.store.skipExists = true
	_, err = f.svc.TrackAI(ctx, alice, aiInput("r1"))
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, 1.0, f.value(t, "ai_requests_total", nil))
}

func TestTrackAIListsEveryViolation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.TrackAI(context.Background(), alice, &schema.AIRequestInput{Model: "nope", Cost: -1})
	require.Error(t, err)

	e := apperr.As(err)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	fields := map[string]bool{}
	for _, fe := range e.Fields {
		fields[fe.Field] = true
	}
	assert.True(t, fields["requestId"])
	assert.True(t, fields["model"])
	assert.True(t, fields["cost"])
	assert.Zero(t, f.seriesCount(t))
}

func TestTrackAIStoreFailureIsUpstreamAndSkipsMetrics(t *testing.T) {
	f := newFixture(t)
	f.store.failNext = errors.New("connection refused")

	_, err := f.svc.TrackAI(context.Background(), alice, aiInput("r1"))
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Zero(t, f.seriesCount(t))
}

func TestTrackAIOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := aiInput("r1")
	in.UserID = "bob"
	row, err := f.svc.TrackAI(ctx, alice, in)
	require.NoError(t, err)
	assert.Equal(t, "alice", row.UserID, "standard callers always write as themselves")

	in = aiInput("r2")
	in.UserID = "bob"
	row, err = f.svc.TrackAI(ctx, admin, in)
	require.NoError(t, err)
	assert.Equal(t, "bob", row.UserID)
}

func TestUpdateAICompletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created, err := f.svc.TrackAI(ctx, alice, aiInput("r1"))
	require.NoError(t, err)

	f.advance(1500*time.Millisecond + 7*time.Microsecond)
	row, err := f.svc.UpdateAI(ctx, alice, "r1", &schema.AIRequestUpdate{
		Status: ptr("completed"),
		Tokens: &schema.Tokens{Input: 120, Output: 80},
		Cost:   ptr(0.5),
	})
	require.NoError(t, err)

	assert.Equal(t, schema.AICompleted, row.Status)
	assert.Equal(t, row.Tokens.Input+row.Tokens.Output, row.Tokens.Total)
	require.NotNil(t, row.Performance.EndTime)
	require.NotNil(t, row.Performance.Duration)
	assert.Equal(t, row.Performance.EndTime.Sub(created.Performance.StartTime).Milliseconds(), *row.Performance.Duration)
	assert.Equal(t, int64(1500), *row.Performance.Duration)

	assert.Equal(t, 1.0, f.value(t, "ai_requests_total", map[string]string{"status": "completed"}))
	assert.Equal(t, 1.0, f.value(t, "ai_request_duration_seconds", nil))
	assert.Equal(t, 120.0, f.value(t, "ai_tokens_total", map[string]string{"type": "input"}))
	assert.InDelta(t, 0.5, f.value(t, "ai_cost_total", nil), 1e-9)
}

func TestUpdateAIRecomputesTotalWithoutTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.TrackAI(ctx, alice, aiInput("r1"))
	require.NoError(t, err)

	row, err := f.svc.UpdateAI(ctx, alice, "r1", &schema.AIRequestUpdate{ResponseRef: ptr("s3://out")})
	require.NoError(t, err)
	assert.Equal(t, int64(15), row.Tokens.Total)
	assert.Nil(t, row.Performance.EndTime)
	assert.Equal(t, 2.0, f.value(t, "ai_requests_total", map[string]string{"status": "pending"}))
	assert.Zero(t, f.value(t, "ai_request_duration_seconds", nil))
}

func TestUpdateAIFailedSetsEndWithoutCompletionMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.TrackAI(ctx, alice, aiInput("r1"))
	require.NoError(t, err)

	f.advance(time.Second)
	row, err := f.svc.UpdateAI(ctx, alice, "r1", &schema.AIRequestUpdate{
		Status: ptr("failed"),
		Error:  &schema.AIError{Code: "rate_limit", Message: "too many requests"},
	})
	require.NoError(t, err)
	assert.Equal(t, "rate_limit", row.ErrorCode)
	require.NotNil(t, row.Performance.Duration)
	assert.Equal(t, int64(1000), *row.Performance.Duration)
	assert.Zero(t, f.value(t, "ai_tokens_total", nil))
	assert.Equal(t, 1.0, f.value(t, "ai_requests_total", map[string]string{"status": "failed"}))
}

func TestUpdateAIOtherOwnerIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.TrackAI(ctx, alice, aiInput("r1"))
	require.NoError(t, err)

	_, err = f.svc.UpdateAI(ctx, scope.Scope{ActorID: "mallory"}, "r1", &schema.AIRequestUpdate{Status: ptr("completed")})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = f.svc.UpdateAI(ctx, alice, "missing", &schema.AIRequestUpdate{Status: ptr("completed")})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assert.Equal(t, schema.AIPending, f.store.ai["r1"].Status)
}

func TestUpdateAIRejectsLeavingTerminalState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.TrackAI(ctx, alice, aiInput("r1"))
	require.NoError(t, err)
	_, err = f.svc.UpdateAI(ctx, alice, "r1", &schema.AIRequestUpdate{Status: ptr("completed")})
	require.NoError(t, err)
	before := f.seriesCount(t)

	_, err = f.svc.UpdateAI(ctx, alice, "r1", &schema.AIRequestUpdate{Status: ptr("processing")})
	require.Error(t, err)
	e := apperr.As(err)
	assert.Equal(t, apperr.KindValidation, e.Kind)
	require.Len(t, e.Fields, 1)
	assert.Equal(t, "status", e.Fields[0].Field)
	assert.Equal(t, before, f.seriesCount(t))
	assert.Equal(t, 1.0, f.value(t, "ai_requests_total", map[string]string{"status": "completed"}))
}

func TestUpdateAIRejectsUpdatesToTerminalRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.TrackAI(ctx, alice, aiInput("r1"))
	require.NoError(t, err)

	f.advance(time.Second)
	first, err := f.svc.UpdateAI(ctx, alice, "r1", &schema.AIRequestUpdate{Status: ptr("completed")})
	require.NoError(t, err)
	before := f.seriesCount(t)

	f.advance(time.Minute)
	for name, upd := range map[string]*schema.AIRequestUpdate{
		"same status": {Status: ptr("completed"), Cost: ptr(99.0), Tokens: &schema.Tokens{Input: 1000, Output: 1000}},
		"no status":   {Cost: ptr(99.0)},
	} {
		_, err = f.svc.UpdateAI(ctx, alice, "r1", upd)
		require.Error(t, err, name)
		e := apperr.As(err)
		assert.Equal(t, apperr.KindValidation, e.Kind, name)
		require.Len(t, e.Fields, 1, name)
		assert.Equal(t, "status", e.Fields[0].Field, name)
	}

	stored := f.store.ai["r1"]
	assert.Equal(t, first.Cost, stored.Cost)
	assert.Equal(t, first.Tokens, stored.Tokens)
	assert.Equal(t, *first.Performance.EndTime, *stored.Performance.EndTime)
	assert.Equal(t, before, f.seriesCount(t))
	assert.Equal(t, 1.0, f.value(t, "ai_requests_total", map[string]string{"status": "completed"}))
	assert.Equal(t, 1.0, f.value(t, "ai_request_duration_seconds", nil), "completion is observed once")
}

func TestTrackEngagementParsesUserAgent(t *testing.T) {
	f := newFixture(t)
	const iphone = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

	row, err := f.svc.TrackEngagement(context.Background(), alice, &schema.EngagementInput{
		SessionID:  "s1",
		Event:      "click",
		Value:      3,
		Properties: map[string]any{"button": "upgrade"},
	}, iphone)
	require.NoError(t, err)

	assert.Equal(t, "gen-1", row.EventID)
	assert.Equal(t, "alice", row.UserID)
	wantDevice, wantBrowser, wantOS := schema.ParseUserAgent(iphone)
	assert.Equal(t, wantDevice, row.DeviceType)
	assert.Equal(t, wantBrowser, row.Browser)
	assert.Equal(t, wantOS, row.OS)
	assert.Equal(t, "upgrade", row.Properties["button"])
	assert.Equal(t, 1.0, f.value(t, "engagement_events_total", map[string]string{"event": "click"}))
	assert.Equal(t, 3.0, f.value(t, "engagement_value_total", nil))
}

func TestTrackEngagementDefaultsDevice(t *testing.T) {
	f := newFixture(t)
	row, err := f.svc.TrackEngagement(context.Background(), alice, &schema.EngagementInput{SessionID: "s1", Event: "login"}, "")
	require.NoError(t, err)
	assert.Equal(t, schema.DeviceDesktop, row.DeviceType)
	assert.Equal(t, "Unknown", row.Browser)
	assert.Equal(t, "Unknown", row.OS)
	assert.Nil(t, row.Properties)
}

func TestTrackEngagementRejectsNestedProperties(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.TrackEngagement(context.Background(), alice, &schema.EngagementInput{
		SessionID:  "s1",
		Event:      "click",
		Properties: map[string]any{"nested": map[string]any{"a": 1}},
	}, "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Empty(t, f.store.engagement)
	assert.Zero(t, f.seriesCount(t))
}

func saleInput(id, status string, amount float64) *schema.SalesInput {
	return &schema.SalesInput{
		TransactionID: id,
		Type:          "subscription",
		Amount:        ptr(amount),
		Currency:      "usd",
		Status:        status,
		PaymentMethod: "card",
		Plan:          "pro",
	}
}

func TestTrackSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	row, err := f.svc.TrackSale(ctx, alice, saleInput("t1", "completed", 49))
	require.NoError(t, err)
	assert.Equal(t, "USD", row.Currency)
	assert.Equal(t, row.Timestamp.Add(365*24*time.Hour), row.ExpiresAt)
	assert.Equal(t, 49.0, f.value(t, "sales_revenue_total", map[string]string{"currency": "USD"}))

	pending, err := f.svc.TrackSale(ctx, alice, saleInput("t2", "", 10))
	require.NoError(t, err)
	assert.Equal(t, schema.SalePending, pending.Status)
	assert.Equal(t, 49.0, f.value(t, "sales_revenue_total", nil), "pending sales are not revenue")

	_, err = f.svc.TrackSale(ctx, alice, saleInput("t1", "completed", 49))
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, 2.0, f.value(t, "sales_transactions_total", nil))
}

func TestUpdateSaleLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.TrackSale(ctx, alice, saleInput("t1", "", 20))
	require.NoError(t, err)

	row, err := f.svc.UpdateSale(ctx, alice, "t1", &schema.SalesUpdate{Status: ptr("completed")})
	require.NoError(t, err)
	assert.Equal(t, schema.SaleCompleted, row.Status)
	assert.Equal(t, 20.0, f.value(t, "sales_revenue_total", nil))

	f.advance(time.Hour)
	row, err = f.svc.UpdateSale(ctx, alice, "t1", &schema.SalesUpdate{
		Status: ptr("refunded"),
		Refund: &schema.Refund{Amount: 20, Reason: "requested"},
	})
	require.NoError(t, err)
	require.NotNil(t, row.Refund.Amount)
	assert.Equal(t, 20.0, *row.Refund.Amount)
	require.NotNil(t, row.Refund.ProcessedAt)
	assert.Equal(t, f.now.Truncate(time.Millisecond), *row.Refund.ProcessedAt)
	assert.Equal(t, 20.0, f.value(t, "sales_revenue_total", nil))

	_, err = f.svc.UpdateSale(ctx, alice, "t1", &schema.SalesUpdate{Status: ptr("completed")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = f.svc.UpdateSale(ctx, alice, "t1", &schema.SalesUpdate{Status: ptr("refunded")})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "a refunded sale cannot be refunded again")
	_, err = f.svc.UpdateSale(ctx, alice, "t1", &schema.SalesUpdate{Refund: &schema.Refund{Amount: 5, Reason: "again"}})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	require.NotNil(t, f.store.sales["t1"].Refund.Amount)
	assert.Equal(t, 20.0, *f.store.sales["t1"].Refund.Amount)

	_, err = f.svc.UpdateSale(ctx, scope.Scope{ActorID: "bob"}, "t1", &schema.SalesUpdate{Status: ptr("refunded")})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func perfInput(status int, rt float64) *schema.PerformanceInput {
	return &schema.PerformanceInput{
		Service:      "auth",
		Endpoint:     "/login",
		Method:       "POST",
		StatusCode:   status,
		ResponseTime: ptr(rt),
	}
}

func TestTrackPerformance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := perfInput(500, 2500)
	in.Cache = &schema.CacheUsage{Hits: 3, Misses: 1}
	in.System = &schema.SystemUsage{CPU: 40, Memory: 60, Disk: 70}
	row, err := f.svc.TrackPerformance(ctx, alice, in)
	require.NoError(t, err)
	assert.Equal(t, "gen-1", row.RequestID)
	assert.Equal(t, "alice", row.UserID)
	require.NotNil(t, row.Cache.HitRate)
	assert.Equal(t, 75.0, *row.Cache.HitRate)
	assert.Equal(t, row.Timestamp.Add(30*24*time.Hour), row.ExpiresAt)

	anon, err := f.svc.TrackPerformance(ctx, admin, perfInput(200, 100))
	require.NoError(t, err)
	assert.Empty(t, anon.UserID)

	explicit := perfInput(200, 100)
	explicit.RequestID = "p1"
	_, err = f.svc.TrackPerformance(ctx, admin, explicit)
	require.NoError(t, err)
	_, err = f.svc.TrackPerformance(ctx, admin, explicit)
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	assert.Equal(t, 3.0, f.value(t, "http_requests_total", map[string]string{"service": "auth"}))
	assert.Equal(t, 1.0, f.value(t, "http_requests_total", map[string]string{"status_code": "500"}))
	assert.Equal(t, 40.0, f.value(t, "system_cpu_usage_percent", nil))
	assert.Equal(t, 75.0, f.value(t, "cache_hit_rate", nil))
}

func TestTrackPerformanceRequiresResponseTime(t *testing.T) {
	f := newFixture(t)
	in := perfInput(200, 0)
	in.ResponseTime = nil
	_, err := f.svc.TrackPerformance(context.Background(), alice, in)
	require.Error(t, err)
	assert.Equal(t, "responseTime", apperr.As(err).Fields[0].Field)
}

func TestConcurrentIngestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.TrackAI(ctx, alice, aiInput(fmt.Sprintf("r%d", i)))
			assert.NoError(t, err)
			_, _ = f.reg.Snapshot()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50.0, f.value(t, "ai_requests_total", nil))
}
