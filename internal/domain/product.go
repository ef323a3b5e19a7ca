package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product represents a sellable item in the catalog. Stock is the
// authoritative sellable quantity and never goes negative; an inactive
// product is not sellable regardless of stock.
type Product struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	UnitPrice decimal.Decimal `json:"unit_price" db:"unit_price"`
	Stock     int             `json:"stock" db:"stock"`
	Active    bool            `json:"active" db:"active"`
	CreatedBy string          `json:"created_by" db:"created_by"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Sellable reports whether the product can currently be sold.
func (p *Product) Sellable() bool {
	return p.Active && p.Stock > 0
}
