/*
stats.go - Read-side KPI aggregation

PURPOSE:
  Computes the dashboard numbers: trailing daily sales series, window
  totals, expiring-batch counts and the active product count. Everything
  here is read-only and idempotent, safe to run concurrently with
  checkouts - the store guarantees reads observe whole commits only.

WINDOWS:
  A trailing window of N days covers the N calendar days ending today,
  inclusive: [startOfDay(now) - (N-1) days, now]. The daily series is
  zero-filled, one point per calendar day, so a chart never has holes.

EXPIRY COUNTING:
  Batches are counted independently: a product with two batches expiring
  in the window counts twice, matching the expiry report which lists one
  row per batch.

SEE ALSO:
  - store.go: StatsStore contract
*/
package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Aggregator computes KPIs against the ledgers. Read-only.
type Aggregator struct {
	store StatsStore
	now   func() time.Time
}

// AggregatorOption customizes an Aggregator.
type AggregatorOption func(*Aggregator)

// WithStatsClock injects a time source (tests).
func WithStatsClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates a read-side aggregator.
func NewAggregator(store StatsStore, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// window returns the [from, to] bounds of a trailing N-day window.
func (a *Aggregator) window(days int) (time.Time, time.Time) {
	now := a.now()
	start := now.Truncate(24 * time.Hour).AddDate(0, 0, -(days - 1))
	return start, now
}

// ComputeDailySeries returns one point per calendar day for the trailing
// window, oldest first, zero-filled for days with no invoices.
func (a *Aggregator) ComputeDailySeries(ctx context.Context, days int) ([]DailyPoint, error) {
	if days <= 0 {
		return nil, &ValidationError{Field: "days", Message: "window must be positive"}
	}
	from, to := a.window(days)

	invoices, err := a.store.InvoicesBetween(ctx, from, to)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]decimal.Decimal, days)
	for _, inv := range invoices {
		day := inv.CreatedAt.UTC().Format(dateLayout)
		byDay[day] = byDay[day].Add(inv.GrandTotal)
	}

	series := make([]DailyPoint, 0, days)
	for d := 0; d < days; d++ {
		day := from.AddDate(0, 0, d).Format(dateLayout)
		series = append(series, DailyPoint{Date: day, Total: byDay[day]})
	}
	return series, nil
}

// ComputeTotals sums sales and invoice counts over the same trailing
// window the daily series uses, so the two agree exactly.
func (a *Aggregator) ComputeTotals(ctx context.Context, days int) (Totals, error) {
	if days <= 0 {
		return Totals{}, &ValidationError{Field: "days", Message: "window must be positive"}
	}
	from, to := a.window(days)

	invoices, err := a.store.InvoicesBetween(ctx, from, to)
	if err != nil {
		return Totals{}, err
	}

	total := decimal.Zero
	for _, inv := range invoices {
		total = total.Add(inv.GrandTotal)
	}
	return Totals{TotalSales: total, TotalInvoices: len(invoices)}, nil
}

// CountExpiringWithin counts batches with remaining stock whose expiry
// falls in [now, now+days]. Each batch counts independently.
func (a *Aggregator) CountExpiringWithin(ctx context.Context, days int) (int, error) {
	if days < 0 {
		return 0, &ValidationError{Field: "days", Message: "window cannot be negative"}
	}
	now := a.now()
	batches, err := a.store.BatchesExpiringBetween(ctx, now, now.AddDate(0, 0, days))
	if err != nil {
		return 0, err
	}
	return len(batches), nil
}

// CountActiveProducts returns the active catalog size.
func (a *Aggregator) CountActiveProducts(ctx context.Context) (int, error) {
	return a.store.CountActiveProducts(ctx)
}
