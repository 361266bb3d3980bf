/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements the engine's persistence surface (engine.TxStore,
  engine.QueryStore, engine.StatsStore) plus the catalog operations the
  API layer needs (product listing and intake).

KEY TABLES:
  products:             catalog identity and metadata
  batches:              expiry-dated stock lots, one row per lot
  invoices:             append-only sale records
  invoice_items:        sold lines, ordered
  invoice_allocations:  per-line batch draw-down breakdown
  counters:             the invoice sequence, advanced inside the
                        checkout transaction

INVARIANT ENFORCEMENT:
  batches.quantity carries a CHECK (quantity >= 0), and every decrement
  is a guarded UPDATE (... AND quantity >= ?). A guard miss means the
  allocation snapshot went stale and surfaces as
  engine.ErrConcurrencyConflict, which the processor retries.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statements exist for the invoice tables.

CONCURRENCY:
  A sync.RWMutex serializes writers on top of SQLite's single-writer
  WAL mode; the connection pool is pinned to one connection so ":memory:"
  databases behave. Readers run against committed state only.

USAGE:
  st, err := sqlite.New("./data/pos.db")
  if err != nil { ... }
  defer st.Close()
  processor := engine.NewProcessor(st)

SEE ALSO:
  - engine/store.go: interface definitions
  - engine/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/infas01/pharmacy-pos-engine/engine"
)

// Store implements the engine storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path, migrating the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single connection: the store serializes writers itself, and
	// ":memory:" databases exist per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		sku TEXT NOT NULL,
		barcode TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		brand TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT 'pcs',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);
	CREATE INDEX IF NOT EXISTS idx_products_sku ON products(sku);

	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		batch_no TEXT NOT NULL,
		expiry_date TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		original_qty INTEGER NOT NULL,
		cost_price TEXT NOT NULL,
		sale_price TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- FEFO read path: batches per product in expiry order (hot path)
	CREATE INDEX IF NOT EXISTS idx_batches_product_expiry
		ON batches(product_id, expiry_date, created_at);
	-- Expiry report
	CREATE INDEX IF NOT EXISTS idx_batches_expiry ON batches(expiry_date);

	-- Invoices (append-only)
	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL UNIQUE,
		invoice_no TEXT NOT NULL UNIQUE,
		customer_name TEXT NOT NULL DEFAULT '',
		payment_method TEXT NOT NULL,
		sub_total TEXT NOT NULL,
		discount TEXT NOT NULL,
		paid TEXT NOT NULL,
		grand_total TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_created ON invoices(created_at DESC);

	CREATE TABLE IF NOT EXISTS invoice_items (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoices(id),
		position INTEGER NOT NULL,
		product_id TEXT NOT NULL,
		name TEXT NOT NULL,
		sku TEXT NOT NULL DEFAULT '',
		qty INTEGER NOT NULL,
		unit_price TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice
		ON invoice_items(invoice_id, position);

	CREATE TABLE IF NOT EXISTS invoice_allocations (
		item_id TEXT NOT NULL REFERENCES invoice_items(id),
		position INTEGER NOT NULL,
		batch_id TEXT NOT NULL,
		batch_no TEXT NOT NULL,
		quantity INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoice_allocations_item
		ON invoice_allocations(item_id, position);

	-- The invoice sequence. Advanced only inside the checkout
	-- transaction, never a free-standing global.
	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO counters (name, value) VALUES ('invoice_seq', 0);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds the SQL implementations shared by the store and its
// transaction views.
type queries struct {
	db dbtx
}

// =============================================================================
// WRITE PATH (engine.Store via engine.TxStore)
// =============================================================================

func (s *Store) GetProduct(ctx context.Context, id engine.ProductID) (*engine.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.getProduct(ctx, id)
}

func (s *Store) GetBatches(ctx context.Context, id engine.ProductID) ([]engine.Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queries{s.db}.getBatches(ctx, id)
}

func (s *Store) Reserve(ctx context.Context, productID engine.ProductID, batchID engine.BatchID, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.reserve(ctx, productID, batchID, qty)
}

func (s *Store) NextInvoiceSeq(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.nextInvoiceSeq(ctx)
}

func (s *Store) AppendInvoice(ctx context.Context, inv *engine.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return queries{s.db}.appendInvoice(ctx, inv)
}

// WithTx executes fn inside a database transaction, holding the writer
// lock for its whole duration. Busy/locked errors from SQLite map to
// engine.ErrConcurrencyConflict so the processor can retry.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txView{queries{tx}}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		if isBusyError(err) {
			return engine.ErrConcurrencyConflict
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txView exposes the write path inside an open transaction. The store
// lock is already held; no re-locking.
type txView struct {
	q queries
}

func (tv *txView) GetProduct(ctx context.Context, id engine.ProductID) (*engine.Product, error) {
	return tv.q.getProduct(ctx, id)
}

func (tv *txView) GetBatches(ctx context.Context, id engine.ProductID) ([]engine.Batch, error) {
	return tv.q.getBatches(ctx, id)
}

func (tv *txView) Reserve(ctx context.Context, productID engine.ProductID, batchID engine.BatchID, qty int) error {
	return tv.q.reserve(ctx, productID, batchID, qty)
}

func (tv *txView) NextInvoiceSeq(ctx context.Context) (int64, error) {
	return tv.q.nextInvoiceSeq(ctx)
}

func (tv *txView) AppendInvoice(ctx context.Context, inv *engine.Invoice) error {
	return tv.q.appendInvoice(ctx, inv)
}

// =============================================================================
// SQL IMPLEMENTATIONS
// =============================================================================

func (q queries) getProduct(ctx context.Context, id engine.ProductID) (*engine.Product, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, name, sku, barcode, category, brand, unit, active, created_at
		FROM products WHERE id = ?
	`, id)

	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return p, nil
}

func (q queries) getBatches(ctx context.Context, id engine.ProductID) ([]engine.Batch, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, product_id, batch_no, expiry_date, quantity, original_qty,
		       cost_price, sale_price, created_at
		FROM batches
		WHERE product_id = ?
		ORDER BY expiry_date ASC, created_at ASC, id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load batches: %w", err)
	}
	defer rows.Close()

	var batches []engine.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// reserve decrements with a guard so the quantity invariant holds even
// if the allocation snapshot raced another writer.
func (q queries) reserve(ctx context.Context, productID engine.ProductID, batchID engine.BatchID, qty int) error {
	if qty <= 0 {
		return engine.ErrQuantityInvariant
	}

	res, err := q.db.ExecContext(ctx, `
		UPDATE batches SET quantity = quantity - ?
		WHERE id = ? AND product_id = ? AND quantity >= ?
	`, qty, batchID, productID, qty)
	if err != nil {
		if isBusyError(err) {
			return engine.ErrConcurrencyConflict
		}
		return fmt.Errorf("failed to reserve stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		err := q.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM batches WHERE id = ? AND product_id = ?`,
			batchID, productID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return engine.ErrBatchNotFound
		}
		return engine.ErrConcurrencyConflict
	}
	return nil
}

func (q queries) nextInvoiceSeq(ctx context.Context) (int64, error) {
	_, err := q.db.ExecContext(ctx,
		`UPDATE counters SET value = value + 1 WHERE name = 'invoice_seq'`)
	if err != nil {
		if isBusyError(err) {
			return 0, engine.ErrConcurrencyConflict
		}
		return 0, fmt.Errorf("failed to advance invoice sequence: %w", err)
	}

	var seq int64
	err = q.db.QueryRowContext(ctx,
		`SELECT value FROM counters WHERE name = 'invoice_seq'`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read invoice sequence: %w", err)
	}
	return seq, nil
}

func (q queries) appendInvoice(ctx context.Context, inv *engine.Invoice) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO invoices
		(id, seq, invoice_no, customer_name, payment_method,
		 sub_total, discount, paid, grand_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inv.ID, inv.Seq, inv.InvoiceNo, inv.CustomerName, inv.PaymentMethod,
		inv.SubTotal.String(), inv.Discount.String(), inv.Paid.String(),
		inv.GrandTotal.String(), inv.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append invoice: %w", err)
	}

	for i, item := range inv.Items {
		itemID := fmt.Sprintf("%s/%d", inv.ID, i)
		_, err := q.db.ExecContext(ctx, `
			INSERT INTO invoice_items
			(id, invoice_id, position, product_id, name, sku, qty, unit_price)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, itemID, inv.ID, i, item.ProductID, item.Name, item.SKU,
			item.Qty, item.UnitPrice.String())
		if err != nil {
			return fmt.Errorf("failed to append invoice item: %w", err)
		}

		for j, a := range item.Allocations {
			_, err := q.db.ExecContext(ctx, `
				INSERT INTO invoice_allocations
				(item_id, position, batch_id, batch_no, quantity)
				VALUES (?, ?, ?, ?, ?)
			`, itemID, j, a.BatchID, a.BatchNo, a.Quantity)
			if err != nil {
				return fmt.Errorf("failed to append allocation: %w", err)
			}
		}
	}
	return nil
}

// =============================================================================
// INVOICE QUERIES (engine.QueryStore)
// =============================================================================

func (s *Store) QueryInvoices(ctx context.Context, filter engine.InvoiceFilter) ([]engine.Invoice, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := []string{"1=1"}
	var args []any
	if filter.Search != "" {
		where = append(where, "(invoice_no LIKE ? OR customer_name LIKE ?)")
		needle := "%" + filter.Search + "%"
		args = append(args, needle, needle)
	}
	if filter.From != nil {
		where = append(where, "created_at >= ?")
		args = append(args, filter.From.UTC().Format(time.RFC3339))
	}
	if filter.To != nil {
		where = append(where, "created_at <= ?")
		args = append(args, filter.To.UTC().Format(time.RFC3339))
	}
	cond := strings.Join(where, " AND ")

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM invoices WHERE "+cond, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count invoices: %w", err)
	}

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	pagedArgs := append(append([]any{}, args...), limit, (page-1)*limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, invoice_no, customer_name, payment_method,
		       sub_total, discount, paid, grand_total, created_at
		FROM invoices WHERE `+cond+`
		ORDER BY created_at DESC, seq DESC
		LIMIT ? OFFSET ?
	`, pagedArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	invoices := []engine.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range invoices {
		items, err := s.loadItems(ctx, invoices[i].ID)
		if err != nil {
			return nil, 0, err
		}
		invoices[i].Items = items
	}
	return invoices, total, nil
}

func (s *Store) loadItems(ctx context.Context, invoiceID string) ([]engine.InvoiceItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, name, sku, qty, unit_price
		FROM invoice_items
		WHERE invoice_id = ?
		ORDER BY position ASC
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice items: %w", err)
	}
	defer rows.Close()

	type itemRow struct {
		id   string
		item engine.InvoiceItem
	}
	var itemRows []itemRow
	for rows.Next() {
		var r itemRow
		var unitPrice string
		if err := rows.Scan(&r.id, &r.item.ProductID, &r.item.Name,
			&r.item.SKU, &r.item.Qty, &unitPrice); err != nil {
			return nil, err
		}
		r.item.UnitPrice, err = decimal.NewFromString(unitPrice)
		if err != nil {
			return nil, fmt.Errorf("corrupt unit price %q: %w", unitPrice, err)
		}
		itemRows = append(itemRows, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items := make([]engine.InvoiceItem, 0, len(itemRows))
	for _, r := range itemRows {
		allocs, err := s.loadAllocations(ctx, r.id)
		if err != nil {
			return nil, err
		}
		r.item.Allocations = allocs
		items = append(items, r.item)
	}
	return items, nil
}

func (s *Store) loadAllocations(ctx context.Context, itemID string) ([]engine.Allocation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch_id, batch_no, quantity
		FROM invoice_allocations
		WHERE item_id = ?
		ORDER BY position ASC
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allocations: %w", err)
	}
	defer rows.Close()

	var allocs []engine.Allocation
	for rows.Next() {
		var a engine.Allocation
		if err := rows.Scan(&a.BatchID, &a.BatchNo, &a.Quantity); err != nil {
			return nil, err
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

// =============================================================================
// STATS QUERIES (engine.StatsStore)
// =============================================================================

// InvoicesBetween returns invoice headers (no items) in [from, to].
func (s *Store) InvoicesBetween(ctx context.Context, from, to time.Time) ([]engine.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, invoice_no, customer_name, payment_method,
		       sub_total, discount, paid, grand_total, created_at
		FROM invoices
		WHERE created_at >= ? AND created_at <= ?
		ORDER BY created_at ASC
	`, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []engine.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (s *Store) CountActiveProducts(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM products WHERE active = 1`).Scan(&count)
	return count, err
}

func (s *Store) BatchesExpiringBetween(ctx context.Context, from, to time.Time) ([]engine.ExpiringBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := "b.quantity > 0 AND b.expiry_date <= ?"
	args := []any{to.UTC().Format(time.RFC3339)}
	if !from.IsZero() {
		where += " AND b.expiry_date >= ?"
		args = append(args, from.UTC().Format(time.RFC3339))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT b.product_id, p.name, b.batch_no, b.expiry_date, b.quantity, b.sale_price
		FROM batches b
		JOIN products p ON p.id = b.product_id
		WHERE `+where+`
		ORDER BY b.expiry_date ASC
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expiring batches: %w", err)
	}
	defer rows.Close()

	var out []engine.ExpiringBatch
	for rows.Next() {
		var e engine.ExpiringBatch
		var expiry, salePrice string
		if err := rows.Scan(&e.ProductID, &e.ProductName, &e.BatchNo,
			&expiry, &e.Quantity, &salePrice); err != nil {
			return nil, err
		}
		if e.ExpiryDate, err = time.Parse(time.RFC3339, expiry); err != nil {
			return nil, fmt.Errorf("corrupt expiry date %q: %w", expiry, err)
		}
		if e.SalePrice, err = decimal.NewFromString(salePrice); err != nil {
			return nil, fmt.Errorf("corrupt sale price %q: %w", salePrice, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// CATALOG (inventory intake and listing, used by the API layer)
// =============================================================================

// CreateProduct inserts a product and its initial batches atomically.
func (s *Store) CreateProduct(ctx context.Context, p *engine.Product, batches []engine.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	active := 0
	if p.Active {
		active = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, sku, barcode, category, brand, unit, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.SKU, p.Barcode, p.Category, p.Brand, p.Unit,
		active, p.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}

	for _, b := range batches {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO batches
			(id, product_id, batch_no, expiry_date, quantity, original_qty,
			 cost_price, sale_price, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, b.ID, b.ProductID, b.BatchNo,
			b.ExpiryDate.UTC().Format(time.RFC3339),
			b.Quantity, b.OriginalQty,
			b.CostPrice.String(), b.SalePrice.String(),
			b.CreatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert batch: %w", err)
		}
	}
	return tx.Commit()
}

// ListProducts returns a page of products with their batches and total
// remaining stock.
func (s *Store) ListProducts(ctx context.Context, filter engine.ProductFilter) ([]engine.ProductWithStock, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := []string{"1=1"}
	var args []any
	if filter.Query != "" {
		where = append(where, "(name LIKE ? OR sku LIKE ?)")
		needle := "%" + filter.Query + "%"
		args = append(args, needle, needle)
	}
	if filter.OnlyActive {
		where = append(where, "active = 1")
	}
	cond := strings.Join(where, " AND ")

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM products WHERE "+cond, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	pagedArgs := append(append([]any{}, args...), limit, (page-1)*limit)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, sku, barcode, category, brand, unit, active, created_at
		FROM products WHERE `+cond+`
		ORDER BY name ASC
		LIMIT ? OFFSET ?
	`, pagedArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []engine.ProductWithStock
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, engine.ProductWithStock{Product: *p})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range products {
		batches, err := queries{s.db}.getBatches(ctx, products[i].ID)
		if err != nil {
			return nil, 0, err
		}
		products[i].Batches = batches
		for _, b := range batches {
			products[i].Stock += b.Quantity
		}
	}
	return products, total, nil
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*engine.Product, error) {
	var p engine.Product
	var active int
	var createdAt string
	err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Barcode, &p.Category,
		&p.Brand, &p.Unit, &active, &createdAt)
	if err != nil {
		return nil, err
	}
	p.Active = active != 0
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("corrupt created_at %q: %w", createdAt, err)
	}
	return &p, nil
}

func scanBatch(row rowScanner) (engine.Batch, error) {
	var b engine.Batch
	var expiry, costPrice, salePrice, createdAt string
	err := row.Scan(&b.ID, &b.ProductID, &b.BatchNo, &expiry, &b.Quantity,
		&b.OriginalQty, &costPrice, &salePrice, &createdAt)
	if err != nil {
		return engine.Batch{}, err
	}
	if b.ExpiryDate, err = time.Parse(time.RFC3339, expiry); err != nil {
		return engine.Batch{}, fmt.Errorf("corrupt expiry date %q: %w", expiry, err)
	}
	if b.CostPrice, err = decimal.NewFromString(costPrice); err != nil {
		return engine.Batch{}, fmt.Errorf("corrupt cost price %q: %w", costPrice, err)
	}
	if b.SalePrice, err = decimal.NewFromString(salePrice); err != nil {
		return engine.Batch{}, fmt.Errorf("corrupt sale price %q: %w", salePrice, err)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return engine.Batch{}, fmt.Errorf("corrupt created_at %q: %w", createdAt, err)
	}
	return b, nil
}

func scanInvoice(row rowScanner) (engine.Invoice, error) {
	var inv engine.Invoice
	var subTotal, discount, paid, grandTotal, createdAt string
	err := row.Scan(&inv.ID, &inv.Seq, &inv.InvoiceNo, &inv.CustomerName,
		&inv.PaymentMethod, &subTotal, &discount, &paid, &grandTotal, &createdAt)
	if err != nil {
		return engine.Invoice{}, err
	}
	if inv.SubTotal, err = decimal.NewFromString(subTotal); err != nil {
		return engine.Invoice{}, fmt.Errorf("corrupt sub total %q: %w", subTotal, err)
	}
	if inv.Discount, err = decimal.NewFromString(discount); err != nil {
		return engine.Invoice{}, fmt.Errorf("corrupt discount %q: %w", discount, err)
	}
	if inv.Paid, err = decimal.NewFromString(paid); err != nil {
		return engine.Invoice{}, fmt.Errorf("corrupt paid %q: %w", paid, err)
	}
	if inv.GrandTotal, err = decimal.NewFromString(grandTotal); err != nil {
		return engine.Invoice{}, fmt.Errorf("corrupt grand total %q: %w", grandTotal, err)
	}
	if inv.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return engine.Invoice{}, fmt.Errorf("corrupt created_at %q: %w", createdAt, err)
	}
	return inv, nil
}

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	if sqliteErr, ok := err.(sqlite3.Error); ok {
		return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
