/*
Package engine provides the core checkout and batch-inventory engine.

PURPOSE:
  This package contains the domain types and algorithms for selling stock
  out of expiry-dated batches. Given a cart of requested quantities, the
  engine consumes stock first-expiring-first-out (FEFO), records an
  immutable invoice with the exact allocation breakdown, and keeps sales
  and inventory aggregates consistent under concurrent checkouts.

KEY CONCEPTS IN THIS FILE (types.go):
  - Product/Batch: catalog items and the dated stock lots that back them
  - CartLine: transient client input, one requested quantity per product
  - Invoice: an append-only record of a completed sale
  - Allocation: which batches a line item actually drew from, and how much

DESIGN PRINCIPLES:
  1. Immutability: Invoices are never updated or deleted once written
  2. Precision: Uses decimal.Decimal for all prices - never float math
  3. Integer stock: Quantities are non-negative integers, checked on
     every mutation
  4. Traceability: Every sold unit maps back to a specific batch

SEE ALSO:
  - allocator.go: FEFO allocation algorithm
  - checkout.go: Transactional checkout processor
  - store.go: Persistence interfaces
*/
package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ProductID string
type BatchID string

// PaymentMethod is the tender type recorded on an invoice.
type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "CASH"
	PaymentCard  PaymentMethod = "CARD"
	PaymentMixed PaymentMethod = "MIXED"
)

// Valid reports whether m is one of the known payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMixed:
		return true
	}
	return false
}

// =============================================================================
// PRODUCT - Catalog identity. Metadata is mutable, identity is not.
// =============================================================================

type Product struct {
	ID        ProductID
	Name      string
	SKU       string
	Barcode   string
	Category  string
	Brand     string
	Unit      string // unit of measure, e.g. "pcs", "ml"
	Active    bool
	CreatedAt time.Time
}

// ProductWithStock is a read-model for product listings: the product plus
// its batches and the total remaining stock across them.
type ProductWithStock struct {
	Product
	Batches []Batch
	Stock   int
}

// =============================================================================
// BATCH - A dated lot of stock for one product
// =============================================================================

// Batch is a single stock lot.
//
// INVARIANT: 0 <= Quantity <= OriginalQty at all times. Quantity only
// decreases through checkout allocation. A batch that reaches zero stays
// in the ledger for historical traceability - it is inert, not deleted.
type Batch struct {
	ID          BatchID
	ProductID   ProductID
	BatchNo     string
	ExpiryDate  time.Time
	Quantity    int // remaining
	OriginalQty int
	CostPrice   decimal.Decimal
	SalePrice   decimal.Decimal
	CreatedAt   time.Time // insertion order, FEFO tie-break
}

// Expired reports whether the batch expiry has passed as of now.
func (b Batch) Expired(now time.Time) bool {
	return b.ExpiryDate.Before(now)
}

// ExpiringBatch is a read-model row for the expiry report: one row per
// batch, joined with its product name. A product with two batches in the
// window appears twice.
type ExpiringBatch struct {
	ProductID   ProductID
	ProductName string
	BatchNo     string
	ExpiryDate  time.Time
	Quantity    int
	SalePrice   decimal.Decimal
}

// =============================================================================
// CART - Transient checkout input, never persisted
// =============================================================================

// CartLine is one requested product quantity. Price is the unit price
// snapshot taken when the line was added to the cart.
type CartLine struct {
	ProductID ProductID
	Name      string
	SKU       string
	Qty       int
	Price     decimal.Decimal
}

// =============================================================================
// INVOICE - Immutable record of a completed sale
// =============================================================================

// Allocation records how much of a line item was drawn from one batch.
// The allocations of a line always sum exactly to the line quantity.
type Allocation struct {
	BatchID  BatchID
	BatchNo  string
	Quantity int
}

// InvoiceItem is one sold line with its batch-allocation breakdown.
type InvoiceItem struct {
	ProductID   ProductID
	Name        string
	SKU         string
	Qty         int
	UnitPrice   decimal.Decimal
	Allocations []Allocation
}

// Invoice is created exactly once per successful checkout and never
// mutated afterwards. Corrections require a compensating invoice.
//
// Seq is a strictly monotonic, gap-free sequence assigned inside the
// checkout transaction. InvoiceNo is its human-readable form.
type Invoice struct {
	ID            string
	Seq           int64
	InvoiceNo     string
	Items         []InvoiceItem
	SubTotal      decimal.Decimal
	Discount      decimal.Decimal
	Paid          decimal.Decimal
	GrandTotal    decimal.Decimal
	PaymentMethod PaymentMethod
	CustomerName  string
	CreatedAt     time.Time
}

// FormatInvoiceNo renders a sequence number as the human-readable
// invoice number, e.g. 42 -> "INV-000042".
func FormatInvoiceNo(seq int64) string {
	return fmt.Sprintf("INV-%06d", seq)
}

// =============================================================================
// QUERY FILTERS
// =============================================================================

// InvoiceFilter narrows invoice listing queries. Zero values mean "no
// constraint". Results are ordered by creation time descending.
type InvoiceFilter struct {
	Search string     // matches invoice number or customer name
	From   *time.Time // inclusive
	To     *time.Time // inclusive
	Page   int        // 1-based; 0 means first page
	Limit  int        // 0 means default page size
}

// ProductFilter narrows product listing queries.
type ProductFilter struct {
	Query      string // matches name or SKU
	OnlyActive bool
	Page       int
	Limit      int
}

// =============================================================================
// STATS READ-MODELS
// =============================================================================

// DailyPoint is one calendar day of the sales series.
type DailyPoint struct {
	Date  string // YYYY-MM-DD
	Total decimal.Decimal
}

// Totals summarizes a trailing sales window.
type Totals struct {
	TotalSales    decimal.Decimal
	TotalInvoices int
}
