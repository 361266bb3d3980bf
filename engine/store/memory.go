// Package store provides an in-memory Store implementation for tests and dev.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/infas01/pharmacy-pos-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	products map[engine.ProductID]engine.Product
	batches  map[engine.ProductID][]engine.Batch
	invoices []engine.Invoice
	seq      int64
}

func NewMemory() *Memory {
	return &Memory{
		products: make(map[engine.ProductID]engine.Product),
		batches:  make(map[engine.ProductID][]engine.Batch),
	}
}

// AddProduct seeds a product. Test/dev helper, not part of the engine
// write path.
func (m *Memory) AddProduct(p engine.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// AddBatch seeds a batch for an existing product.
func (m *Memory) AddBatch(b engine.Batch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.OriginalQty == 0 {
		b.OriginalQty = b.Quantity
	}
	m.batches[b.ProductID] = append(m.batches[b.ProductID], b)
}

// =============================================================================
// engine.Store
// =============================================================================

func (m *Memory) GetProduct(_ context.Context, id engine.ProductID) (*engine.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getProductLocked(id), nil
}

func (m *Memory) getProductLocked(id engine.ProductID) *engine.Product {
	p, ok := m.products[id]
	if !ok {
		return nil
	}
	return &p
}

func (m *Memory) GetBatches(_ context.Context, id engine.ProductID) ([]engine.Batch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBatchesLocked(id), nil
}

func (m *Memory) getBatchesLocked(id engine.ProductID) []engine.Batch {
	src := m.batches[id]
	out := make([]engine.Batch, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ExpiryDate.Equal(out[j].ExpiryDate) {
			return out[i].ExpiryDate.Before(out[j].ExpiryDate)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Memory) Reserve(_ context.Context, productID engine.ProductID, batchID engine.BatchID, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reserveLocked(productID, batchID, qty)
}

func (m *Memory) reserveLocked(productID engine.ProductID, batchID engine.BatchID, qty int) error {
	batches := m.batches[productID]
	for i := range batches {
		if batches[i].ID != batchID {
			continue
		}
		if qty <= 0 || batches[i].Quantity-qty < 0 {
			// Allocation snapshot went stale: someone else drew from
			// this batch first.
			if batches[i].Quantity < qty {
				return engine.ErrConcurrencyConflict
			}
			return engine.ErrQuantityInvariant
		}
		batches[i].Quantity -= qty
		return nil
	}
	return engine.ErrBatchNotFound
}

func (m *Memory) NextInvoiceSeq(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

func (m *Memory) AppendInvoice(_ context.Context, inv *engine.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendInvoiceLocked(inv)
	return nil
}

func (m *Memory) appendInvoiceLocked(inv *engine.Invoice) {
	m.invoices = append(m.invoices, *inv)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support, simulated with a
// snapshot + rollback on error. The store lock is held for the whole
// transaction, which also serializes concurrent checkouts.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

func (tm *TxMemory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm.Memory}

	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	batches  map[engine.ProductID][]engine.Batch
	invoices []engine.Invoice
	seq      int64
}

func (tm *TxMemory) snapshot() memorySnapshot {
	batchCopy := make(map[engine.ProductID][]engine.Batch, len(tm.batches))
	for k, v := range tm.batches {
		batchCopy[k] = append([]engine.Batch{}, v...)
	}
	return memorySnapshot{
		batches:  batchCopy,
		invoices: append([]engine.Invoice{}, tm.invoices...),
		seq:      tm.seq,
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.batches = s.batches
	tm.invoices = s.invoices
	tm.seq = s.seq
}

// txMemoryView accesses the parent without re-locking: the TxMemory lock
// is already held for the transaction's duration.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) GetProduct(_ context.Context, id engine.ProductID) (*engine.Product, error) {
	return tv.parent.getProductLocked(id), nil
}

func (tv *txMemoryView) GetBatches(_ context.Context, id engine.ProductID) ([]engine.Batch, error) {
	return tv.parent.getBatchesLocked(id), nil
}

func (tv *txMemoryView) Reserve(_ context.Context, productID engine.ProductID, batchID engine.BatchID, qty int) error {
	return tv.parent.reserveLocked(productID, batchID, qty)
}

func (tv *txMemoryView) NextInvoiceSeq(_ context.Context) (int64, error) {
	tv.parent.seq++
	return tv.parent.seq, nil
}

func (tv *txMemoryView) AppendInvoice(_ context.Context, inv *engine.Invoice) error {
	tv.parent.appendInvoiceLocked(inv)
	return nil
}

// =============================================================================
// READ-SIDE QUERIES (engine.QueryStore, engine.StatsStore)
// =============================================================================

func (m *Memory) QueryInvoices(_ context.Context, filter engine.InvoiceFilter) ([]engine.Invoice, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []engine.Invoice
	for _, inv := range m.invoices {
		if filter.Search != "" {
			needle := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(inv.InvoiceNo), needle) &&
				!strings.Contains(strings.ToLower(inv.CustomerName), needle) {
				continue
			}
		}
		if filter.From != nil && inv.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && inv.CreatedAt.After(*filter.To) {
			continue
		}
		matched = append(matched, inv)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	start := (page - 1) * limit
	if start >= total {
		return []engine.Invoice{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *Memory) InvoicesBetween(_ context.Context, from, to time.Time) ([]engine.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Invoice
	for _, inv := range m.invoices {
		if inv.CreatedAt.Before(from) || inv.CreatedAt.After(to) {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (m *Memory) CountActiveProducts(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, p := range m.products {
		if p.Active {
			count++
		}
	}
	return count, nil
}

func (m *Memory) BatchesExpiringBetween(_ context.Context, from, to time.Time) ([]engine.ExpiringBatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.ExpiringBatch
	for pid, batches := range m.batches {
		name := ""
		if p, ok := m.products[pid]; ok {
			name = p.Name
		}
		for _, b := range batches {
			if b.Quantity <= 0 {
				continue
			}
			if !from.IsZero() && b.ExpiryDate.Before(from) {
				continue
			}
			if b.ExpiryDate.After(to) {
				continue
			}
			out = append(out, engine.ExpiringBatch{
				ProductID:   pid,
				ProductName: name,
				BatchNo:     b.BatchNo,
				ExpiryDate:  b.ExpiryDate,
				Quantity:    b.Quantity,
				SalePrice:   b.SalePrice,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpiryDate.Before(out[j].ExpiryDate)
	})
	return out, nil
}
