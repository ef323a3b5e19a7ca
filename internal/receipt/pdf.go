package receipt

import (
	"bytes"
	"fmt"

	"saleflow/internal/domain"

	"github.com/go-pdf/fpdf"
)

// PDFRenderer renders sale receipts as single-page PDFs.
type PDFRenderer struct{}

// NewPDFRenderer creates a new PDFRenderer
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{}
}

// RenderReceipt builds a sale receipt with one row per sale item
func (r *PDFRenderer) RenderReceipt(sale *domain.Sale, customer *domain.Customer) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Sales Receipt", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Customer: %s", customer.FullName), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Date: %s", sale.CreatedAt.Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Sale: %s", sale.ID.String()[:8]), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(12, 8, "#", "1", 0, "C", false, 0, "")
	pdf.CellFormat(98, 8, "Product", "1", 0, "L", false, 0, "")
	pdf.CellFormat(20, 8, "Qty", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 8, "Price", "1", 0, "R", false, 0, "")
	pdf.CellFormat(25, 8, "Subtotal", "1", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	for i, item := range sale.Items {
		pdf.CellFormat(12, 8, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(98, 8, item.ProductName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(20, 8, fmt.Sprintf("%d", item.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(25, 8, item.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 8, item.Subtotal.StringFixed(2), "1", 1, "R", false, 0, "")
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, fmt.Sprintf("Total: %s", sale.Total.StringFixed(2)), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render receipt: %w", err)
	}

	return buf.Bytes(), nil
}
