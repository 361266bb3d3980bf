/*
errors.go - Centralized error types for the checkout engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; the HTTP layer maps these
  onto status codes via the helper predicates at the bottom.

ERROR CATEGORIES:
  1. Validation errors - rejected before any transaction starts
  2. Stock errors - allocation failures that abort the whole checkout
  3. Concurrency errors - serialization conflicts, retryable
  4. Not-found errors - unknown product/batch references

SEE ALSO:
  - allocator.go: raises InsufficientStockError
  - checkout.go: raises ValidationError, retries ErrConcurrencyConflict
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientStock is returned when a cart line requests more than
	// the product's batches hold in total. The checkout aborts atomically.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInvalidInput is the base for all pre-transaction validation
	// failures. No side effects have occurred when this is returned.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProductNotFound is returned when a cart line references an
	// unknown product. Rejected before allocation.
	ErrProductNotFound = errors.New("product not found")

	// ErrBatchNotFound is returned when a reserve targets an unknown batch.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrConcurrencyConflict is returned when a commit cannot serialize
	// against a competing checkout. Safe to retry.
	ErrConcurrencyConflict = errors.New("concurrent checkout conflict")

	// ErrBusy is returned after the bounded retry budget is exhausted.
	ErrBusy = errors.New("checkout busy, try again")

	// ErrQuantityInvariant indicates a batch quantity would leave the
	// range [0, originalQty]. This is a programming fault, not user input.
	ErrQuantityInvariant = errors.New("batch quantity invariant violated")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientStockError names the offending product and the shortfall so
// the point-of-sale UI can report exactly which item is short.
type InsufficientStockError struct {
	ProductID ProductID
	Name      string
	Requested int
	Available int
	Shortfall int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d (short %d)",
		e.Name, e.Requested, e.Available, e.Shortfall)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// ValidationError reports a single bad field in a checkout request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInsufficientStock)
}

// IsNotFound returns true if the error indicates a missing reference.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrBatchNotFound)
}
