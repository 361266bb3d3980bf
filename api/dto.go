/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, matching the shapes
  the point-of-sale frontend consumes. These types decouple the internal
  domain model (decimal money, typed IDs) from the wire contract
  (camelCase fields, plain numbers).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY ON THE WIRE:
  Internal math is decimal; DTOs carry float64 purely for JSON
  presentation. Conversion happens only at this boundary, after all
  rounding is done.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/infas01/pharmacy-pos-engine/engine"
)

// =============================================================================
// CHECKOUT
// =============================================================================

// CheckoutItemRequest is one cart line as the POS screen sends it.
type CheckoutItemRequest struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	SKU       string  `json:"sku"`
	Qty       int     `json:"qty"`
	Price     float64 `json:"price"`
}

// CheckoutRequest is the body of POST /api/invoices.
type CheckoutRequest struct {
	Items         []CheckoutItemRequest `json:"items"`
	CustomerName  string                `json:"customerName"`
	Discount      float64               `json:"discount"`
	Paid          float64               `json:"paid"`
	PaymentMethod string                `json:"paymentMethod"`
}

// =============================================================================
// INVOICES
// =============================================================================

// AllocationDTO is one batch draw within an invoice line.
type AllocationDTO struct {
	BatchID  string `json:"batchId"`
	BatchNo  string `json:"batchNo"`
	Quantity int    `json:"quantity"`
}

// InvoiceItemDTO is one sold line with its allocation breakdown.
type InvoiceItemDTO struct {
	ProductID   string          `json:"productId"`
	Name        string          `json:"name"`
	SKU         string          `json:"sku"`
	Qty         int             `json:"qty"`
	UnitPrice   float64         `json:"unitPrice"`
	Allocations []AllocationDTO `json:"allocations"`
}

// InvoiceDTO is an invoice in API responses.
type InvoiceDTO struct {
	ID            string           `json:"id"`
	InvoiceNo     string           `json:"invoiceNo"`
	CustomerName  string           `json:"customerName,omitempty"`
	PaymentMethod string           `json:"paymentMethod"`
	SubTotal      float64          `json:"subTotal"`
	Discount      float64          `json:"discount"`
	Paid          float64          `json:"paid"`
	GrandTotal    float64          `json:"grandTotal"`
	Items         []InvoiceItemDTO `json:"items,omitempty"`
	CreatedAt     string           `json:"createdAt"`
}

// InvoiceListResponse wraps a page of invoices.
type InvoiceListResponse struct {
	Items []InvoiceDTO `json:"items"`
	Total int          `json:"total"`
}

func toInvoiceDTO(inv *engine.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		ID:            inv.ID,
		InvoiceNo:     inv.InvoiceNo,
		CustomerName:  inv.CustomerName,
		PaymentMethod: string(inv.PaymentMethod),
		SubTotal:      inv.SubTotal.InexactFloat64(),
		Discount:      inv.Discount.InexactFloat64(),
		Paid:          inv.Paid.InexactFloat64(),
		GrandTotal:    inv.GrandTotal.InexactFloat64(),
		CreatedAt:     inv.CreatedAt.Format(time.RFC3339),
	}
	for _, item := range inv.Items {
		itemDTO := InvoiceItemDTO{
			ProductID: string(item.ProductID),
			Name:      item.Name,
			SKU:       item.SKU,
			Qty:       item.Qty,
			UnitPrice: item.UnitPrice.InexactFloat64(),
		}
		for _, a := range item.Allocations {
			itemDTO.Allocations = append(itemDTO.Allocations, AllocationDTO{
				BatchID:  string(a.BatchID),
				BatchNo:  a.BatchNo,
				Quantity: a.Quantity,
			})
		}
		dto.Items = append(dto.Items, itemDTO)
	}
	return dto
}

// =============================================================================
// PRODUCTS
// =============================================================================

// BatchDTO is one stock lot in API responses.
type BatchDTO struct {
	ID         string  `json:"id"`
	BatchNo    string  `json:"batchNo"`
	ExpiryDate string  `json:"expiryDate"`
	Quantity   int     `json:"quantity"`
	CostPrice  float64 `json:"costPrice"`
	SalePrice  float64 `json:"salePrice"`
}

// ProductDTO is a product with its batches and total stock.
type ProductDTO struct {
	ID       string     `json:"_id"`
	Name     string     `json:"name"`
	SKU      string     `json:"sku"`
	Barcode  string     `json:"barcode,omitempty"`
	Category string     `json:"category,omitempty"`
	Brand    string     `json:"brand,omitempty"`
	Unit     string     `json:"unit"`
	Active   bool       `json:"active"`
	Stock    int        `json:"stock"`
	Batches  []BatchDTO `json:"batches"`
}

// ProductListResponse wraps a page of products.
type ProductListResponse struct {
	Items []ProductDTO `json:"items"`
	Total int          `json:"total"`
}

// CreateBatchRequest is one initial stock lot on product intake.
type CreateBatchRequest struct {
	BatchNo    string  `json:"batchNo"`
	ExpiryDate string  `json:"expiryDate"` // YYYY-MM-DD or RFC3339
	Quantity   int     `json:"quantity"`
	CostPrice  float64 `json:"costPrice"`
	SalePrice  float64 `json:"salePrice"`
}

// CreateProductRequest is the body of POST /api/products.
type CreateProductRequest struct {
	Name     string               `json:"name"`
	SKU      string               `json:"sku"`
	Barcode  string               `json:"barcode"`
	Category string               `json:"category"`
	Brand    string               `json:"brand"`
	Unit     string               `json:"unit"`
	Batches  []CreateBatchRequest `json:"batches"`
}

func toProductDTO(p engine.ProductWithStock) ProductDTO {
	dto := ProductDTO{
		ID:       string(p.ID),
		Name:     p.Name,
		SKU:      p.SKU,
		Barcode:  p.Barcode,
		Category: p.Category,
		Brand:    p.Brand,
		Unit:     p.Unit,
		Active:   p.Active,
		Stock:    p.Stock,
		Batches:  []BatchDTO{},
	}
	for _, b := range p.Batches {
		dto.Batches = append(dto.Batches, BatchDTO{
			ID:         string(b.ID),
			BatchNo:    b.BatchNo,
			ExpiryDate: b.ExpiryDate.Format(time.RFC3339),
			Quantity:   b.Quantity,
			CostPrice:  b.CostPrice.InexactFloat64(),
			SalePrice:  b.SalePrice.InexactFloat64(),
		})
	}
	return dto
}

// =============================================================================
// EXPIRY REPORT
// =============================================================================

// ExpiringBatchDTO is one row of the expiry report: the product name
// plus the single batch in the window. One row per batch.
type ExpiringBatchDTO struct {
	Name    string          `json:"name"`
	Batches ExpiryDetailDTO `json:"batches"`
}

// ExpiryDetailDTO carries the batch fields the report shows.
type ExpiryDetailDTO struct {
	BatchNo    string  `json:"batchNo"`
	ExpiryDate string  `json:"expiryDate"`
	Quantity   int     `json:"quantity"`
	SalePrice  float64 `json:"salePrice"`
}

// ExpiringListResponse wraps the expiry report.
type ExpiringListResponse struct {
	Items []ExpiringBatchDTO `json:"items"`
}

// =============================================================================
// STATS
// =============================================================================

// SeriesPointDTO is one day of the sales chart.
type SeriesPointDTO struct {
	Date  string  `json:"date"`
	Total float64 `json:"total"`
}

// SalesStatsResponse is the body of GET /api/stats/sales.
type SalesStatsResponse struct {
	TotalSales    float64          `json:"totalSales"`
	TotalInvoices int              `json:"totalInvoices"`
	Series        []SeriesPointDTO `json:"series"`
}

// SummaryResponse is the dashboard KPI set.
type SummaryResponse struct {
	TodaySales     float64 `json:"todaySales"`
	TodayInvoices  int     `json:"todayInvoices"`
	ActiveProducts int     `json:"activeProducts"`
	ExpiringSoon   int     `json:"expiringSoon"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Message string `json:"message"`
}
