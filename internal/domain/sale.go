package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Sale is an immutable record of a completed purchase. Total always equals
// the sum of its items' subtotals; a sale with zero items is never persisted.
type Sale struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	CustomerID   uuid.UUID       `json:"customer_id" db:"customer_id"`
	CustomerName string          `json:"customer_name" db:"customer_name"`
	Total        decimal.Decimal `json:"total" db:"total"`
	CreatedBy    string          `json:"created_by" db:"created_by"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	Items        []*SaleItem     `json:"items"`
}

// SaleItem is a single line of a sale. UnitPrice is snapshotted from the
// product at sale time and never recomputed from the live catalog.
type SaleItem struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	SaleID      uuid.UUID       `json:"sale_id" db:"sale_id"`
	ProductID   uuid.UUID       `json:"product_id" db:"product_id"`
	ProductName string          `json:"product_name" db:"product_name"`
	Quantity    int             `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal" db:"subtotal"`
}

// SumSubtotals recomputes the aggregate total from the items.
func (s *Sale) SumSubtotals() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.Subtotal)
	}
	return total
}
