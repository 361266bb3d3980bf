/*
handlers.go - HTTP API handlers for the point-of-sale engine

PURPOSE:
  Exposes the checkout engine via REST. Handles HTTP request/response,
  JSON serialization, and delegates to the engine; no business logic
  lives here.

ENDPOINTS:
  Invoices:
    POST   /api/invoices            Checkout a cart, returns the invoice
    GET    /api/invoices            Paginated invoice history

  Products:
    GET    /api/products            Search/list products with stock
    POST   /api/products            Product intake with initial batches
    GET    /api/products/expired    Expiry report, one row per batch

  Stats:
    GET    /api/stats/sales         Trailing daily sales series + totals
    GET    /api/stats/summary       Dashboard KPIs

  Dev:
    POST   /api/seed                Load the demo pharmacy inventory

ERROR HANDLING:
  Engine errors map onto HTTP status via the engine predicates:
  - 400: validation failures
  - 404: unknown product/batch
  - 409: insufficient stock
  - 503: checkout busy (retry budget exhausted)
  - 500: everything else

SEE ALSO:
  - dto.go: request/response shapes
  - server.go: router and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/infas01/pharmacy-pos-engine/engine"
	"github.com/infas01/pharmacy-pos-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Checkout *engine.Processor
	Stats    *engine.Aggregator
	Log      logrus.FieldLogger
}

// NewHandler wires the handler with the store and engine components.
func NewHandler(store *sqlite.Store, checkout *engine.Processor, stats *engine.Aggregator, log logrus.FieldLogger) *Handler {
	return &Handler{Store: store, Checkout: checkout, Stats: stats, Log: log}
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// CreateInvoice checks out a cart.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	lines := make([]engine.CartLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, engine.CartLine{
			ProductID: engine.ProductID(item.ProductID),
			Name:      item.Name,
			SKU:       item.SKU,
			Qty:       item.Qty,
			Price:     decimal.NewFromFloat(item.Price),
		})
	}

	inv, err := h.Checkout.Checkout(r.Context(), engine.CheckoutRequest{
		Items:         lines,
		CustomerName:  req.CustomerName,
		Discount:      decimal.NewFromFloat(req.Discount),
		Paid:          decimal.NewFromFloat(req.Paid),
		PaymentMethod: engine.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toInvoiceDTO(inv))
}

// ListInvoices returns a page of invoice history.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := engine.InvoiceFilter{
		Search: q.Get("q"),
		Page:   intParam(q.Get("page"), 1),
		Limit:  intParam(q.Get("limit"), 10),
	}
	if from, err := time.Parse(time.RFC3339, q.Get("dateFrom")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse(time.RFC3339, q.Get("dateTo")); err == nil {
		filter.To = &to
	}

	invoices, total, err := h.Store.QueryInvoices(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list invoices", err)
		return
	}

	items := make([]InvoiceDTO, 0, len(invoices))
	for i := range invoices {
		items = append(items, toInvoiceDTO(&invoices[i]))
	}
	writeJSON(w, http.StatusOK, InvoiceListResponse{Items: items, Total: total})
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// ListProducts searches the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := engine.ProductFilter{
		Query:      q.Get("q"),
		OnlyActive: q.Get("onlyActive") == "true",
		Page:       intParam(q.Get("page"), 1),
		Limit:      intParam(q.Get("limit"), 20),
	}

	products, total, err := h.Store.ListProducts(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list products", err)
		return
	}

	items := make([]ProductDTO, 0, len(products))
	for _, p := range products {
		items = append(items, toProductDTO(p))
	}
	writeJSON(w, http.StatusOK, ProductListResponse{Items: items, Total: total})
}

// CreateProduct handles inventory intake: a product plus initial batches.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Product name is required", nil)
		return
	}
	if req.Unit == "" {
		req.Unit = "pcs"
	}

	now := time.Now().UTC()
	product := &engine.Product{
		ID:        engine.ProductID(uuid.NewString()),
		Name:      req.Name,
		SKU:       req.SKU,
		Barcode:   req.Barcode,
		Category:  req.Category,
		Brand:     req.Brand,
		Unit:      req.Unit,
		Active:    true,
		CreatedAt: now,
	}

	batches := make([]engine.Batch, 0, len(req.Batches))
	for i, b := range req.Batches {
		if b.Quantity < 0 {
			writeError(w, http.StatusBadRequest, "Batch quantity cannot be negative", nil)
			return
		}
		expiry, err := parseDate(b.ExpiryDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid batch expiry date", err)
			return
		}
		batches = append(batches, engine.Batch{
			ID:          engine.BatchID(uuid.NewString()),
			ProductID:   product.ID,
			BatchNo:     b.BatchNo,
			ExpiryDate:  expiry,
			Quantity:    b.Quantity,
			OriginalQty: b.Quantity,
			CostPrice:   decimal.NewFromFloat(b.CostPrice),
			SalePrice:   decimal.NewFromFloat(b.SalePrice),
			// Preserve submitted order as the FEFO tie-break.
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}

	if err := h.Store.CreateProduct(r.Context(), product, batches); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create product", err)
		return
	}

	stock := 0
	for _, b := range batches {
		stock += b.Quantity
	}
	writeJSON(w, http.StatusCreated, toProductDTO(engine.ProductWithStock{
		Product: *product,
		Batches: batches,
		Stock:   stock,
	}))
}

// ListExpired returns the expiry report: batches already expired or
// expiring within the requested window, one row per batch.
func (h *Handler) ListExpired(w http.ResponseWriter, r *http.Request) {
	withinDays := intParam(r.URL.Query().Get("withinDays"), 30)
	to := time.Now().UTC().AddDate(0, 0, withinDays)

	batches, err := h.Store.BatchesExpiringBetween(r.Context(), time.Time{}, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load expiry report", err)
		return
	}

	items := make([]ExpiringBatchDTO, 0, len(batches))
	for _, b := range batches {
		items = append(items, ExpiringBatchDTO{
			Name: b.ProductName,
			Batches: ExpiryDetailDTO{
				BatchNo:    b.BatchNo,
				ExpiryDate: b.ExpiryDate.Format(time.RFC3339),
				Quantity:   b.Quantity,
				SalePrice:  b.SalePrice.InexactFloat64(),
			},
		})
	}
	writeJSON(w, http.StatusOK, ExpiringListResponse{Items: items})
}

// =============================================================================
// STATS HANDLERS
// =============================================================================

// SalesStats returns the trailing sales series and window totals.
func (h *Handler) SalesStats(w http.ResponseWriter, r *http.Request) {
	days := intParam(r.URL.Query().Get("days"), 30)

	series, err := h.Stats.ComputeDailySeries(r.Context(), days)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	totals, err := h.Stats.ComputeTotals(r.Context(), days)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := SalesStatsResponse{
		TotalSales:    totals.TotalSales.InexactFloat64(),
		TotalInvoices: totals.TotalInvoices,
		Series:        make([]SeriesPointDTO, 0, len(series)),
	}
	for _, p := range series {
		resp.Series = append(resp.Series, SeriesPointDTO{
			Date:  p.Date,
			Total: p.Total.InexactFloat64(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Summary returns the dashboard KPI set.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	today, err := h.Stats.ComputeTotals(ctx, 1)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	active, err := h.Stats.CountActiveProducts(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count products", err)
		return
	}
	expiring, err := h.Stats.CountExpiringWithin(ctx, 30)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SummaryResponse{
		TodaySales:     today.TotalSales.InexactFloat64(),
		TodayInvoices:  today.TotalInvoices,
		ActiveProducts: active,
		ExpiringSoon:   expiring,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		message = message + ": " + err.Error()
	}
	writeJSON(w, status, ErrorResponse{Message: message})
}

// writeEngineError maps engine error classes onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, ErrorResponse{Message: err.Error()})
	case engine.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Message: err.Error()})
	case engine.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	case errors.Is(err, engine.ErrBusy):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Message: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
	}
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// parseDate accepts the date formats the frontend sends.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
