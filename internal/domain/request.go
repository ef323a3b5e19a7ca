package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle state of a purchase request.
type RequestStatus string

const (
	RequestStatusPending  RequestStatus = "Pending"
	RequestStatusApproved RequestStatus = "Approved"
	RequestStatusRejected RequestStatus = "Rejected"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether the status ends the normal flow. Re-processing a
// terminal request is supported as a correction mechanism, not normal flow.
func (s RequestStatus) Terminal() bool {
	return s == RequestStatusApproved || s == RequestStatusRejected
}

// ProductRequest is a customer's ask to buy a quantity of a product.
// Requests are created Pending without touching inventory; stock is only
// committed when an admin approves. Requests are never deleted — they are
// the audit trail of the approval workflow.
//
// SaleID is set while the request is fulfilled: it points at the sale whose
// stock has been committed. A Rejected request never carries a SaleID.
// ProductID goes Nil when the product is later retired; the request row
// itself stays.
type ProductRequest struct {
	ID              uuid.UUID     `json:"id" db:"id"`
	ProductID       uuid.UUID     `json:"product_id" db:"product_id"`
	ProductName     string        `json:"product_name" db:"product_name"`
	Quantity        int           `json:"quantity" db:"quantity"`
	Note            string        `json:"note" db:"note"`
	RequestedBy     string        `json:"requested_by" db:"requested_by"`
	RequestedEmail  string        `json:"requested_email" db:"requested_email"`
	RequestedAt     time.Time     `json:"requested_at" db:"requested_at"`
	Status          RequestStatus `json:"status" db:"status"`
	ResponseMessage string        `json:"response_message" db:"response_message"`
	ProcessedAt     *time.Time    `json:"processed_at,omitempty" db:"processed_at"`
	ProcessedBy     string        `json:"processed_by,omitempty" db:"processed_by"`
	SaleID          *uuid.UUID    `json:"sale_id,omitempty" db:"sale_id"`
}
