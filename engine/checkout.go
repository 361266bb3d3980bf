/*
checkout.go - Transactional checkout processor

PURPOSE:
  Orchestrates a sale: validates the cart, allocates every line FEFO
  against the live batch state, decrements stock, assigns the next
  invoice number and appends the invoice - all inside one storage
  transaction. Either the whole cart commits or nothing does.

CRITICAL INVARIANTS:
  1. ATOMIC: batch decrements, the sequence advance and the invoice
     append share one commit. No partial checkouts, ever.
  2. NEVER OVERSELL: two checkouts contending for the same batches are
     serialized by the store; a lost race surfaces as a conflict and is
     retried against fresh state.
  3. GAP-FREE NUMBERING: the sequence counter advances inside the
     transaction, so aborted checkouts never burn a number.

VALIDATION:
  Input is checked once, at this boundary, before any transaction
  starts: non-empty cart, positive integer quantities, non-negative
  prices/discount/paid, known payment method. Validation failures have
  no side effects.

MONEY:
  subtotal = sum(qty * unitPrice) computed in decimal, unrounded.
  grandTotal = max(subtotal - discount, 0), rounded to 2 places only at
  the end - never mid-calculation. A discount larger than the subtotal
  clamps the total to zero rather than going negative.

RETRIES:
  ErrConcurrencyConflict aborts the transaction and the whole
  allocate-then-commit sequence is retried a bounded number of times
  before surfacing ErrBusy.

SEE ALSO:
  - allocator.go: per-line FEFO draw plan
  - store.go: TxStore contract
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// CHECKOUT REQUEST
// =============================================================================

// CheckoutRequest is the validated input schema for a sale. All fields
// are explicit; there is no implicit coercion at this boundary.
type CheckoutRequest struct {
	Items         []CartLine
	CustomerName  string // optional
	Discount      decimal.Decimal
	Paid          decimal.Decimal
	PaymentMethod PaymentMethod
}

// =============================================================================
// PROCESSOR
// =============================================================================

const defaultMaxRetries = 3

// Processor executes checkouts against a transactional store. Safe for
// concurrent use; all shared-state mutation funnels through WithTx.
type Processor struct {
	store      TxStore
	policy     AllocationPolicy
	maxRetries int
	now        func() time.Time
	log        logrus.FieldLogger
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithPolicy overrides the allocation policy.
func WithPolicy(p AllocationPolicy) ProcessorOption {
	return func(cp *Processor) { cp.policy = p }
}

// WithMaxRetries bounds the conflict retry budget.
func WithMaxRetries(n int) ProcessorOption {
	return func(cp *Processor) { cp.maxRetries = n }
}

// WithClock injects a time source (tests).
func WithClock(now func() time.Time) ProcessorOption {
	return func(cp *Processor) { cp.now = now }
}

// WithLogger attaches a structured logger.
func WithLogger(log logrus.FieldLogger) ProcessorOption {
	return func(cp *Processor) { cp.log = log }
}

// NewProcessor creates a checkout processor with the default FEFO policy.
func NewProcessor(store TxStore, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:      store,
		policy:     DefaultPolicy(),
		maxRetries: defaultMaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
		log:        logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// =============================================================================
// CHECKOUT - The only entry point that mutates shared state
// =============================================================================

// Checkout validates the cart, then runs the allocate-then-commit
// sequence as one atomic unit of work. On success the persisted invoice
// is returned; on failure nothing has changed.
func (p *Processor) Checkout(ctx context.Context, req CheckoutRequest) (*Invoice, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}

	var inv *Invoice
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		inv, err = p.attempt(ctx, req)
		if err == nil || !IsRetryable(err) {
			break
		}
		p.log.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"lines":   len(req.Items),
		}).Warn("checkout conflict, retrying")
	}
	if err != nil {
		if IsRetryable(err) {
			return nil, ErrBusy
		}
		return nil, err
	}

	p.log.WithFields(logrus.Fields{
		"invoice_no":  inv.InvoiceNo,
		"lines":       len(inv.Items),
		"grand_total": inv.GrandTotal.String(),
	}).Info("checkout committed")
	return inv, nil
}

// attempt runs one allocate-then-commit pass inside a transaction.
func (p *Processor) attempt(ctx context.Context, req CheckoutRequest) (*Invoice, error) {
	now := p.now()
	var inv *Invoice

	err := p.store.WithTx(ctx, func(s Store) error {
		subtotal := decimal.Zero
		items := make([]InvoiceItem, 0, len(req.Items))

		// Lines are processed in cart order. A product appearing twice
		// sees the first line's decrements: each GetBatches reads the
		// in-transaction state.
		for _, line := range req.Items {
			product, err := s.GetProduct(ctx, line.ProductID)
			if err != nil {
				return err
			}
			if product == nil {
				return fmt.Errorf("%w: %s", ErrProductNotFound, line.ProductID)
			}

			batches, err := s.GetBatches(ctx, line.ProductID)
			if err != nil {
				return err
			}

			allocs, err := Allocate(batches, line.Qty, p.policy, now)
			if err != nil {
				if short, ok := err.(*InsufficientStockError); ok {
					short.ProductID = product.ID
					short.Name = product.Name
				}
				return err
			}

			for _, a := range allocs {
				if err := s.Reserve(ctx, line.ProductID, a.BatchID, a.Quantity); err != nil {
					return err
				}
			}

			items = append(items, InvoiceItem{
				ProductID:   product.ID,
				Name:        product.Name,
				SKU:         product.SKU,
				Qty:         line.Qty,
				UnitPrice:   line.Price,
				Allocations: allocs,
			})
			subtotal = subtotal.Add(line.Price.Mul(decimal.NewFromInt(int64(line.Qty))))
		}

		grand := subtotal.Sub(req.Discount)
		if grand.IsNegative() {
			grand = decimal.Zero
		}

		seq, err := s.NextInvoiceSeq(ctx)
		if err != nil {
			return err
		}

		inv = &Invoice{
			ID:            uuid.NewString(),
			Seq:           seq,
			InvoiceNo:     FormatInvoiceNo(seq),
			Items:         items,
			SubTotal:      subtotal.Round(2),
			Discount:      req.Discount.Round(2),
			Paid:          req.Paid.Round(2),
			GrandTotal:    grand.Round(2),
			PaymentMethod: req.PaymentMethod,
			CustomerName:  req.CustomerName,
			CreatedAt:     now,
		}
		return s.AppendInvoice(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// =============================================================================
// VALIDATION - Runs before any transaction, no side effects
// =============================================================================

func (p *Processor) validate(req CheckoutRequest) error {
	if len(req.Items) == 0 {
		return &ValidationError{Field: "items", Message: "cart is empty"}
	}
	for i, line := range req.Items {
		if line.ProductID == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("items[%d].productId", i),
				Message: "product reference is required",
			}
		}
		if line.Qty <= 0 {
			return &ValidationError{
				Field:   fmt.Sprintf("items[%d].qty", i),
				Message: "quantity must be a positive integer",
			}
		}
		if line.Price.IsNegative() {
			return &ValidationError{
				Field:   fmt.Sprintf("items[%d].price", i),
				Message: "unit price cannot be negative",
			}
		}
	}
	if req.Discount.IsNegative() {
		return &ValidationError{Field: "discount", Message: "discount cannot be negative"}
	}
	if req.Paid.IsNegative() {
		return &ValidationError{Field: "paid", Message: "paid amount cannot be negative"}
	}
	if !req.PaymentMethod.Valid() {
		return &ValidationError{Field: "paymentMethod", Message: "unknown payment method"}
	}
	return nil
}
