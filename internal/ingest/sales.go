package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"pulsemetrics/internal/apperr"
	"pulsemetrics/internal/db"
	"pulsemetrics/internal/metrics"
	"pulsemetrics/internal/schema"
	"pulsemetrics/internal/scope"
)

const defaultCurrency = "USD"

// TrackSale records a new transaction. Status defaults to pending.
func (s *Service) TrackSale(ctx context.Context, sc scope.Scope, in *schema.SalesInput) (row *db.SalesTransaction, err error) {
	ctx, span := s.start(ctx, "track_sale", attribute.String("transaction_id", in.TransactionID))
	defer func() { finish(span, err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureAbsent(ctx, "track_sale", s.store.SalesTransactionExists, in.TransactionID); err != nil {
		return nil, err
	}

	status := schema.SalePending
	if in.Status != "" {
		status = schema.SaleStatus(in.Status)
	}
	currency := defaultCurrency
	if in.Currency != "" {
		currency = strings.ToUpper(in.Currency)
	}

	now := s.clock()
	row = &db.SalesTransaction{
		TransactionID: in.TransactionID,
		UserID:        sc.OwnerFor(in.UserID),
		Type:          in.Type,
		Amount:        *in.Amount,
		Currency:      currency,
		Status:        status,
		PaymentMethod: in.PaymentMethod,
		Plan:          in.Plan,
		Timestamp:     now,
		ExpiresAt:     s.retention.ExpiresAt(schema.DomainSales, now),
	}
	if sub := in.Subscription; sub != nil {
		start := sub.StartDate.UTC()
		row.Subscription = db.SubscriptionTerms{
			StartDate: &start,
			EndDate:   utcPtr(sub.EndDate),
			Interval:  sub.Interval,
			AutoRenew: sub.AutoRenew,
			TrialEnd:  utcPtr(sub.TrialEnd),
		}
	}
	if in.Refund != nil {
		row.Refund = refundInfo(in.Refund)
	}

	if err := s.store.CreateSalesTransaction(ctx, row); err != nil {
		return nil, s.storeErr("track_sale", err)
	}

	s.metrics.ObserveSale(saleLabels(row), row.Amount, row.Status == schema.SaleCompleted)
	return row, nil
}

// UpdateSale moves a transaction owned by the caller through its status
// lifecycle and records refund details. Each update re-saves the record.
func (s *Service) UpdateSale(ctx context.Context, sc scope.Scope, transactionID string, upd *schema.SalesUpdate) (row *db.SalesTransaction, err error) {
	ctx, span := s.start(ctx, "update_sale", attribute.String("transaction_id", transactionID))
	defer func() { finish(span, err) }()

	if transactionID == "" {
		return nil, apperr.Invalid("transactionId", "required", "transactionId is required")
	}
	if err := upd.Validate(); err != nil {
		return nil, err
	}

	row, err = s.store.FindSalesTransaction(ctx, transactionID, sc.ActorID)
	if err != nil {
		return nil, s.storeErr("update_sale", err)
	}

	prev := row.Status
	if prev.Terminal() {
		return nil, apperr.Invalid("status", "terminal", fmt.Sprintf("transaction is %s and accepts no further updates", prev))
	}
	if upd.Status != nil {
		next := schema.SaleStatus(*upd.Status)
		if !prev.CanTransition(next) {
			return nil, apperr.Invalid("status", "transition", fmt.Sprintf("cannot move from %s to %s", prev, next))
		}
		row.Status = next
	}
	if upd.Refund != nil {
		row.Refund = refundInfo(upd.Refund)
	}
	if row.Status == schema.SaleRefunded && row.Refund.ProcessedAt == nil {
		at := s.clock()
		row.Refund.ProcessedAt = &at
	}

	if err := s.store.SaveSalesTransaction(ctx, row); err != nil {
		return nil, s.storeErr("update_sale", err)
	}

	revenue := row.Status == schema.SaleCompleted && prev != schema.SaleCompleted
	s.metrics.ObserveSale(saleLabels(row), row.Amount, revenue)
	return row, nil
}

func refundInfo(r *schema.Refund) db.RefundInfo {
	amount := r.Amount
	return db.RefundInfo{Amount: &amount, Reason: r.Reason, ProcessedAt: utcPtr(r.ProcessedAt)}
}

func saleLabels(t *db.SalesTransaction) metrics.SaleLabels {
	return metrics.SaleLabels{
		Type:          t.Type,
		Status:        string(t.Status),
		Plan:          t.Plan,
		PaymentMethod: t.PaymentMethod,
		Currency:      t.Currency,
	}
}
