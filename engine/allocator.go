/*
allocator.go - FEFO batch allocation

PURPOSE:
  Pure allocation algorithm: given a product's batches and a requested
  quantity, decide which batches to draw from and by how much. The
  allocator never mutates anything - committing the decrements is the
  checkout processor's job, inside its transaction.

POLICY: FEFO (first-expiring-first-out)
  Batches are consumed in ascending expiry order so the soonest-to-expire
  stock leaves the shelf first. Ties on expiry date are broken by
  insertion order, stable.

EXPIRED STOCK:
  Batches already past their expiry date remain allocatable by default.
  The expiry report lists them as informational; nothing forbids their
  sale. Set AllocationPolicy.AllowExpired to false for the stricter
  stance.

ALL-OR-NOTHING:
  Allocation for a single line is atomic: if the batches cannot cover
  the full request, the allocator fails with the exact shortfall and
  proposes no partial draw.

SEE ALSO:
  - checkout.go: invokes Allocate per cart line inside the transaction
  - types.go: Batch, Allocation
*/
package engine

import (
	"sort"
	"time"
)

// =============================================================================
// ALLOCATION POLICY
// =============================================================================

// AllocationPolicy tunes batch eligibility.
type AllocationPolicy struct {
	// AllowExpired keeps batches past their expiry date eligible.
	AllowExpired bool
}

// DefaultPolicy matches the observed point-of-sale behavior: expired
// stock is flagged in reports but still sellable.
func DefaultPolicy() AllocationPolicy {
	return AllocationPolicy{AllowExpired: true}
}

// =============================================================================
// ALLOCATE - Pure FEFO draw-down
// =============================================================================

// Allocate selects batches to cover requested units, first-expiring-first.
// The input slice is not modified. Returns the ordered draw plan, whose
// quantities sum exactly to requested, or an InsufficientStockError
// carrying the shortfall. Batches with zero remaining quantity are inert
// and skipped.
func Allocate(batches []Batch, requested int, policy AllocationPolicy, now time.Time) ([]Allocation, error) {
	if requested <= 0 {
		return nil, &ValidationError{Field: "qty", Message: "requested quantity must be positive"}
	}

	// Defensive re-sort: stores promise FEFO order, but the algorithm's
	// correctness must not depend on it.
	ordered := make([]Batch, len(batches))
	copy(ordered, batches)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].ExpiryDate.Equal(ordered[j].ExpiryDate) {
			return ordered[i].ExpiryDate.Before(ordered[j].ExpiryDate)
		}
		return ordered[i].CreatedAt.Before(ordered[j].CreatedAt)
	})

	var allocs []Allocation
	remaining := requested
	available := 0

	for _, b := range ordered {
		if b.Quantity <= 0 {
			continue
		}
		if !policy.AllowExpired && b.Expired(now) {
			continue
		}
		available += b.Quantity
		if remaining == 0 {
			continue
		}

		take := b.Quantity
		if take > remaining {
			take = remaining
		}
		allocs = append(allocs, Allocation{
			BatchID:  b.ID,
			BatchNo:  b.BatchNo,
			Quantity: take,
		})
		remaining -= take
	}

	if remaining > 0 {
		return nil, &InsufficientStockError{
			Requested: requested,
			Available: available,
			Shortfall: remaining,
		}
	}

	return allocs, nil
}
