package domain

import (
	"time"

	"github.com/google/uuid"
)

// Customer represents a buyer. Customers have no lifecycle coupling to
// inventory; they are referenced by sales and resolved (or created) when
// an admin approves a purchase request.
type Customer struct {
	ID        uuid.UUID `json:"id" db:"id"`
	FullName  string    `json:"full_name" db:"full_name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone" db:"phone"`
	CreatedBy string    `json:"created_by" db:"created_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
