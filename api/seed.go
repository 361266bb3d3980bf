/*
seed.go - Demo inventory loader for testing and demonstrations

PURPOSE:
  Populates the database with a small, realistic pharmacy catalog so the
  POS screen has something to sell. Products carry multiple batches with
  staggered expiry dates, including one already-expired lot, so the
  FEFO draw-down and the expiry report are both visible immediately.

USAGE VIA API:
  POST /api/seed

NOTE:
  The loader only inserts; it does not reset existing data. Use a fresh
  database for a clean demo.

SEE ALSO:
  - handlers.go: CreateProduct, the production intake path
*/
package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/infas01/pharmacy-pos-engine/engine"
)

type seedBatch struct {
	batchNo    string
	expiryDays int // relative to now; negative means already expired
	quantity   int
	costPrice  string
	salePrice  string
}

type seedProduct struct {
	name     string
	sku      string
	category string
	brand    string
	unit     string
	batches  []seedBatch
}

var demoCatalog = []seedProduct{
	{
		name: "Paracetamol 500mg", sku: "PARA-500", category: "Analgesics",
		brand: "MediCare", unit: "tablet",
		batches: []seedBatch{
			{batchNo: "B-2025-01", expiryDays: 20, quantity: 120, costPrice: "1.50", salePrice: "2.75"},
			{batchNo: "B-2025-07", expiryDays: 180, quantity: 300, costPrice: "1.40", salePrice: "2.75"},
		},
	},
	{
		name: "Amoxicillin 250mg", sku: "AMOX-250", category: "Antibiotics",
		brand: "PharmaPlus", unit: "capsule",
		batches: []seedBatch{
			{batchNo: "AX-114", expiryDays: -10, quantity: 40, costPrice: "4.00", salePrice: "6.50"},
			{batchNo: "AX-139", expiryDays: 90, quantity: 200, costPrice: "3.80", salePrice: "6.50"},
		},
	},
	{
		name: "Cetirizine 10mg", sku: "CET-10", category: "Antihistamines",
		brand: "AllerFree", unit: "tablet",
		batches: []seedBatch{
			{batchNo: "CZ-52", expiryDays: 14, quantity: 60, costPrice: "0.90", salePrice: "1.80"},
		},
	},
	{
		name: "Vitamin C 1000mg", sku: "VITC-1000", category: "Supplements",
		brand: "NutraWell", unit: "tablet",
		batches: []seedBatch{
			{batchNo: "VC-220", expiryDays: 365, quantity: 500, costPrice: "0.60", salePrice: "1.25"},
		},
	},
	{
		name: "Omeprazole 20mg", sku: "OMEP-20", category: "Gastro",
		brand: "MediCare", unit: "capsule",
		batches: []seedBatch{
			{batchNo: "OM-18", expiryDays: 45, quantity: 90, costPrice: "2.20", salePrice: "4.10"},
			{batchNo: "OM-23", expiryDays: 45, quantity: 150, costPrice: "2.10", salePrice: "4.10"},
		},
	},
}

// SeedDemo loads the demo pharmacy catalog.
func (h *Handler) SeedDemo(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	created := 0

	for _, sp := range demoCatalog {
		product := &engine.Product{
			ID:        engine.ProductID(uuid.NewString()),
			Name:      sp.name,
			SKU:       sp.sku,
			Category:  sp.category,
			Brand:     sp.brand,
			Unit:      sp.unit,
			Active:    true,
			CreatedAt: now,
		}

		batches := make([]engine.Batch, 0, len(sp.batches))
		for i, sb := range sp.batches {
			batches = append(batches, engine.Batch{
				ID:          engine.BatchID(uuid.NewString()),
				ProductID:   product.ID,
				BatchNo:     sb.batchNo,
				ExpiryDate:  now.AddDate(0, 0, sb.expiryDays),
				Quantity:    sb.quantity,
				OriginalQty: sb.quantity,
				CostPrice:   mustDecimal(sb.costPrice),
				SalePrice:   mustDecimal(sb.salePrice),
				CreatedAt:   now.Add(time.Duration(i) * time.Microsecond),
			})
		}

		if err := h.Store.CreateProduct(r.Context(), product, batches); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to seed catalog", err)
			return
		}
		created++
	}

	h.Log.WithField("products", created).Info("demo catalog seeded")
	writeJSON(w, http.StatusOK, map[string]int{"products": created})
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
