package invoice_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/anax-commerce/commerce-service/internal/invoice"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	renderer := invoice.NewRenderer("Anax Store", "UGX")

	pdf, err := renderer.Render(invoice.Document{
		OrderNumber:   "ANX-20260115-7K2Q9Z",
		IssuedAt:      time.Date(2026, 1, 15, 9, 30, 0, 0, time.UTC),
		Status:        "paid",
		PaymentStatus: "paid",
		Lines: []invoice.Line{
			{Name: "Phone case", SKU: "CASE-1", Quantity: 2, UnitPrice: decimal.RequireFromString("10.00")},
			{Name: "Charger", SKU: "CHG-1", Quantity: 1, UnitPrice: decimal.RequireFromString("5.00")},
		},
		Subtotal:    decimal.RequireFromString("25.00"),
		DeliveryFee: decimal.Zero,
		Discount:    decimal.Zero,
		Total:       decimal.RequireFromString("25.00"),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))
}

func TestLineSubtotal(t *testing.T) {
	line := invoice.Line{Quantity: 3, UnitPrice: decimal.RequireFromString("2.50")}
	assert.Equal(t, "7.50", line.Subtotal().StringFixed(2))
}
