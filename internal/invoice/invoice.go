package invoice

import (
	"bytes"
	"fmt"
	"time"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

type Line struct {
	Name      string
	SKU       string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Document is everything printed on one invoice. Amounts come from the order
// snapshot, never from the live catalog.
type Document struct {
	OrderNumber   string
	IssuedAt      time.Time
	Status        string
	PaymentStatus string
	Lines         []Line
	Subtotal      decimal.Decimal
	DeliveryFee   decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
}

type Renderer struct {
	CompanyName string
	Currency    string
}

func NewRenderer(companyName, currency string) *Renderer {
	return &Renderer{CompanyName: companyName, Currency: currency}
}

// Render produces an A4 PDF with a QR code of the order number.
func (r *Renderer) Render(doc Document) ([]byte, error) {
	qrPNG, err := qrcode.Encode(doc.OrderNumber, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("qr code generation error: %w", err)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Invoice "+doc.OrderNumber, true)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.Cell(0, 10, r.CompanyName)
	pdf.Ln(10)
	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 10, "Invoice")
	pdf.Ln(12)

	pdf.SetFont("Arial", "", 11)
	pdf.Cell(0, 7, fmt.Sprintf("Order number: %s", doc.OrderNumber))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Date: %s", doc.IssuedAt.Format("2006-01-02 15:04")))
	pdf.Ln(7)
	pdf.Cell(0, 7, fmt.Sprintf("Status: %s / %s", doc.Status, doc.PaymentStatus))
	pdf.Ln(10)

	imageOpts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("order-qr", imageOpts, bytes.NewReader(qrPNG))
	pdf.ImageOptions("order-qr", 160, 12, 35, 35, false, imageOpts, 0, "")

	widths := []float64{80, 35, 20, 25, 30}
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, header := range []string{"Item", "SKU", "Qty", "Price", "Subtotal"} {
		align := "L"
		if i >= 2 {
			align = "R"
		}
		pdf.CellFormat(widths[i], 8, header, "1", 0, align, true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 10)
	for _, line := range doc.Lines {
		pdf.CellFormat(widths[0], 7, line.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 7, line.SKU, "1", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 7, fmt.Sprintf("%d", line.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, line.UnitPrice.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 7, line.Subtotal().StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)

	labelWidth := widths[0] + widths[1] + widths[2] + widths[3]
	totals := []struct {
		label  string
		amount decimal.Decimal
	}{
		{"Subtotal", doc.Subtotal},
		{"Delivery fee", doc.DeliveryFee},
		{"Discount", doc.Discount.Neg()},
	}
	for _, row := range totals {
		pdf.CellFormat(labelWidth, 7, row.label, "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 7, row.amount.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(labelWidth, 8, fmt.Sprintf("Total (%s)", r.Currency), "T", 0, "R", false, 0, "")
	pdf.CellFormat(widths[4], 8, doc.Total.StringFixed(2), "T", 0, "R", false, 0, "")
	pdf.Ln(-1)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf generation error: %w", err)
	}
	return buf.Bytes(), nil
}
