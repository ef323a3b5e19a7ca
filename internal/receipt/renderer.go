// Package receipt renders sale receipts for email attachments. Rendering is
// best effort: when it fails the notification goes out without the receipt.
package receipt

import "saleflow/internal/domain"

// Renderer produces a receipt document for a completed sale.
type Renderer interface {
	RenderReceipt(sale *domain.Sale, customer *domain.Customer) ([]byte, error)
}
