package db

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Filter narrows a collection read. Equals maps column names onto exact
// values; callers are responsible for whitelisting the column names.
type Filter struct {
	Start  *time.Time
	End    *time.Time
	UserID string
	Equals map[string]any
}

func (f Filter) apply(q *gorm.DB) *gorm.DB {
	ts := clause.Column{Name: "timestamp"}
	if f.Start != nil {
		q = q.Where(clause.Gte{Column: ts, Value: f.Start.UTC()})
	}
	if f.End != nil {
		q = q.Where(clause.Lte{Column: ts, Value: f.End.UTC()})
	}
	if f.UserID != "" {
		q = q.Where(clause.Eq{Column: clause.Column{Name: "user_id"}, Value: f.UserID})
	}
	cols := make([]string, 0, len(f.Equals))
	for col := range f.Equals {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	for _, col := range cols {
		q = q.Where(clause.Eq{Column: clause.Column{Name: col}, Value: f.Equals[col]})
	}
	return q
}

// Page selects a window of rows. Limit 0 means no limit.
type Page struct {
	Offset int
	Limit  int
	Desc   bool
}

// Store is the durable event store. All reads and writes are single
// statements; nothing here is retried.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Ping checks connectivity for the health probe.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func insert[T any](ctx context.Context, db *gorm.DB, row *T) error {
	return translate(db.WithContext(ctx).Create(row).Error)
}

func exists[T any](ctx context.Context, db *gorm.DB, column, value string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(new(T)).
		Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).
		Limit(1).Count(&n).Error
	return n > 0, translate(err)
}

func findOwned[T any](ctx context.Context, db *gorm.DB, column, value, userID string) (*T, error) {
	var row T
	err := db.WithContext(ctx).
		Where(clause.Eq{Column: clause.Column{Name: column}, Value: value}).
		Where(clause.Eq{Column: clause.Column{Name: "user_id"}, Value: userID}).
		First(&row).Error
	if err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

// list returns matching rows ordered by timestamp then insertion id, so
// callers grouping by first appearance see a stable order.
func list[T any](ctx context.Context, db *gorm.DB, f Filter, p Page) ([]T, error) {
	q := f.apply(db.WithContext(ctx).Model(new(T)))
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "timestamp"}, Desc: p.Desc},
		{Column: clause.Column{Name: "id"}, Desc: p.Desc},
	}})
	if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	var rows []T
	if err := q.Find(&rows).Error; err != nil {
		return nil, translate(err)
	}
	return rows, nil
}

func count[T any](ctx context.Context, db *gorm.DB, f Filter) (int64, error) {
	var n int64
	err := f.apply(db.WithContext(ctx).Model(new(T))).Count(&n).Error
	return n, translate(err)
}

// AI requests.

func (s *Store) AIRequestExists(ctx context.Context, requestID string) (bool, error) {
	return exists[AIRequest](ctx, s.db, "request_id", requestID)
}

func (s *Store) CreateAIRequest(ctx context.Context, r *AIRequest) error {
	return insert(ctx, s.db, r)
}

// FindAIRequest returns the request only if it is owned by userID.
func (s *Store) FindAIRequest(ctx context.Context, requestID, userID string) (*AIRequest, error) {
	return findOwned[AIRequest](ctx, s.db, "request_id", requestID, userID)
}

// SaveAIRequest re-saves every column of an existing request.
func (s *Store) SaveAIRequest(ctx context.Context, r *AIRequest) error {
	return translate(s.db.WithContext(ctx).Save(r).Error)
}

func (s *Store) ListAIRequests(ctx context.Context, f Filter, p Page) ([]AIRequest, error) {
	return list[AIRequest](ctx, s.db, f, p)
}

func (s *Store) CountAIRequests(ctx context.Context, f Filter) (int64, error) {
	return count[AIRequest](ctx, s.db, f)
}

// Engagement events.

func (s *Store) CreateEngagementEvent(ctx context.Context, e *EngagementEvent) error {
	return insert(ctx, s.db, e)
}

func (s *Store) ListEngagementEvents(ctx context.Context, f Filter, p Page) ([]EngagementEvent, error) {
	return list[EngagementEvent](ctx, s.db, f, p)
}

// Sales transactions.

func (s *Store) SalesTransactionExists(ctx context.Context, transactionID string) (bool, error) {
	return exists[SalesTransaction](ctx, s.db, "transaction_id", transactionID)
}

func (s *Store) CreateSalesTransaction(ctx context.Context, t *SalesTransaction) error {
	return insert(ctx, s.db, t)
}

func (s *Store) FindSalesTransaction(ctx context.Context, transactionID, userID string) (*SalesTransaction, error) {
	return findOwned[SalesTransaction](ctx, s.db, "transaction_id", transactionID, userID)
}

func (s *Store) SaveSalesTransaction(ctx context.Context, t *SalesTransaction) error {
	return translate(s.db.WithContext(ctx).Save(t).Error)
}

func (s *Store) ListSalesTransactions(ctx context.Context, f Filter, p Page) ([]SalesTransaction, error) {
	return list[SalesTransaction](ctx, s.db, f, p)
}

// Performance samples.

func (s *Store) PerformanceSampleExists(ctx context.Context, requestID string) (bool, error) {
	return exists[PerformanceSample](ctx, s.db, "request_id", requestID)
}

func (s *Store) CreatePerformanceSample(ctx context.Context, p *PerformanceSample) error {
	return insert(ctx, s.db, p)
}

func (s *Store) ListPerformanceSamples(ctx context.Context, f Filter, p Page) ([]PerformanceSample, error) {
	return list[PerformanceSample](ctx, s.db, f, p)
}
