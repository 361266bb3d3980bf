/*
store.go - Persistence interfaces for batches, invoices and stats

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite or in-memory storage; the checkout
  processor only sees these interfaces.

KEY INTERFACES:
  Store:      Batch reads, stock reservation, invoice append (the write path)
  TxStore:    Store plus WithTx for atomic multi-write checkouts
  QueryStore: Invoice history listing
  StatsStore: Read-side queries for the dashboard aggregator

TRANSACTIONAL CONTRACT:
  Every mutation of a checkout - batch decrements, sequence advance,
  invoice append - happens inside a single WithTx call. Nothing becomes
  visible to readers until the transaction commits, and an aborted
  transaction leaves no trace. A checkout that decremented stock but
  failed to record its invoice (or vice versa) is a consistency
  violation the store must make impossible.

APPEND-ONLY INVOICES:
  There is no update or delete for invoices. Corrections are made with
  compensating invoices, never edits.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - engine/store: in-memory store for tests and dev

SEE ALSO:
  - checkout.go: the only caller of the write path
  - stats.go: consumer of StatsStore
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Write path used inside the checkout transaction
// =============================================================================

// Store is the persistence surface the checkout processor runs against.
// When obtained through TxStore.WithTx, all writes are part of one atomic
// unit of work.
type Store interface {
	// GetProduct returns the product or (nil, nil) if unknown.
	GetProduct(ctx context.Context, id ProductID) (*Product, error)

	// GetBatches returns all batches for a product in FEFO order:
	// expiry date ascending, insertion order as a stable tie-break.
	// Includes inert zero-quantity batches.
	GetBatches(ctx context.Context, id ProductID) ([]Batch, error)

	// Reserve decrements a batch's remaining quantity. Fails with
	// ErrBatchNotFound for an unknown batch, and ErrConcurrencyConflict
	// if the batch no longer holds qty units (the allocation snapshot
	// went stale). Never drives quantity below zero.
	Reserve(ctx context.Context, productID ProductID, batchID BatchID, qty int) error

	// NextInvoiceSeq advances and returns the invoice sequence counter.
	// Must be called inside WithTx so the number is gap-free: an aborted
	// checkout rolls the counter back with everything else.
	NextInvoiceSeq(ctx context.Context) (int64, error)

	// AppendInvoice persists a completed invoice with its items and
	// allocation breakdown. Append-only: no update or delete exists.
	AppendInvoice(ctx context.Context, inv *Invoice) error
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// READ-SIDE INTERFACES
// =============================================================================

// QueryStore serves invoice history listings.
type QueryStore interface {
	// QueryInvoices returns one page of invoices matching the filter,
	// ordered by creation time descending, plus the unpaginated total.
	QueryInvoices(ctx context.Context, filter InvoiceFilter) ([]Invoice, int, error)
}

// StatsStore serves the read-only dashboard aggregator. Reads observe
// whole commits only: never a batch decrement without its invoice.
type StatsStore interface {
	// InvoicesBetween returns invoices created in [from, to].
	// Implementations may omit line items; the aggregator only uses
	// header fields.
	InvoicesBetween(ctx context.Context, from, to time.Time) ([]Invoice, error)

	// CountActiveProducts returns the number of active catalog products.
	CountActiveProducts(ctx context.Context) (int, error)

	// BatchesExpiringBetween returns batches with remaining stock whose
	// expiry falls in [from, to], joined with product names, ordered by
	// expiry ascending. A zero from means no lower bound.
	BatchesExpiringBetween(ctx context.Context, from, to time.Time) ([]ExpiringBatch, error)
}
