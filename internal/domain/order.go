package domain

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type OrderPaymentStatus string

const (
	OrderPaymentUnpaid OrderPaymentStatus = "unpaid"
	OrderPaymentPaid   OrderPaymentStatus = "paid"
)

// orderTransitions lists the statuses reachable from each status. Terminal
// statuses have no entry.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped: {OrderStatusDelivered},
}

func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch status := OrderStatus(s); status {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return status, nil
	}
	return "", Invalid(ErrValidation, "order", "status", fmt.Sprintf("unknown status %q", s))
}

type Order struct {
	ID                uuid.UUID          `json:"id" db:"id"`
	CustomerID        uuid.UUID          `json:"customer_id" db:"customer_id"`
	OrderNumber       string             `json:"order_number" db:"order_number"`
	Status            OrderStatus        `json:"status" db:"status"`
	PaymentStatus     OrderPaymentStatus `json:"payment_status" db:"payment_status"`
	ShippingAddressID uuid.NullUUID      `json:"shipping_address_id" db:"shipping_address_id"`
	ShippingMethod    string             `json:"shipping_method" db:"shipping_method"`
	DeliveryFee       decimal.Decimal    `json:"delivery_fee" db:"delivery_fee"`
	DiscountApplied   decimal.Decimal    `json:"discount_applied" db:"discount_applied"`
	Items             []OrderItem        `json:"items" db:"-"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" db:"updated_at"`
}

// OrderItem is the price-at-purchase snapshot of one cart line.
type OrderItem struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	OrderID   uuid.UUID       `json:"order_id" db:"order_id"`
	ProductID uuid.UUID       `json:"product_id" db:"product_id"`
	Quantity  int             `json:"quantity" db:"quantity"`
	Price     decimal.Decimal `json:"price" db:"price"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type OrderTracking struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	OrderID   uuid.UUID   `json:"order_id" db:"order_id"`
	Status    OrderStatus `json:"status" db:"status"`
	Timestamp time.Time   `json:"timestamp" db:"timestamp"`
}

func NewOrderTracking(orderID uuid.UUID, status OrderStatus, now time.Time) *OrderTracking {
	return &OrderTracking{
		ID:        uuid.New(),
		OrderID:   orderID,
		Status:    status,
		Timestamp: now,
	}
}

type CheckoutRequest struct {
	ShippingAddressID *uuid.UUID `json:"shipping_address_id"`
	ShippingMethod    string     `json:"shipping_method"`
}

func NewOrder(customerID uuid.UUID, request CheckoutRequest, deliveryFee decimal.Decimal, now time.Time) *Order {
	order := &Order{
		ID:              uuid.New(),
		CustomerID:      customerID,
		Status:          OrderStatusPending,
		PaymentStatus:   OrderPaymentUnpaid,
		ShippingMethod:  request.ShippingMethod,
		DeliveryFee:     deliveryFee,
		DiscountApplied: decimal.Zero,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if request.ShippingAddressID != nil {
		order.ShippingAddressID = uuid.NullUUID{UUID: *request.ShippingAddressID, Valid: true}
	}
	return order
}

// AddItem snapshots the given unit price into a new order line.
func (o *Order) AddItem(productID uuid.UUID, quantity int, price decimal.Decimal) {
	o.Items = append(o.Items, OrderItem{
		ID:        uuid.New(),
		OrderID:   o.ID,
		ProductID: productID,
		Quantity:  quantity,
		Price:     price,
	})
}

func (o *Order) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Total is the amount a payment must match: items + delivery fee - discount.
func (o *Order) Total() decimal.Decimal {
	return o.Subtotal().Add(o.DeliveryFee).Sub(o.DiscountApplied)
}

func (o *Order) TransitionTo(status OrderStatus, now time.Time) error {
	if !CanTransition(o.Status, status) {
		return InvalidTransition("order", o.ID, string(o.Status), string(status))
	}
	o.Status = status
	o.UpdatedAt = now
	return nil
}

func (o *Order) MarkPaid(now time.Time) error {
	if err := o.TransitionTo(OrderStatusPaid, now); err != nil {
		return err
	}
	o.PaymentStatus = OrderPaymentPaid
	return nil
}

// CanAcceptPayment checks that a new payment may be authorized for the order.
func (o *Order) CanAcceptPayment() error {
	if o.Status != OrderStatusPending || o.PaymentStatus != OrderPaymentUnpaid {
		return &Error{
			Kind:   ErrInvalidTransition,
			Entity: "order",
			ID:     o.ID.String(),
			Field:  "payment_status",
			Reason: fmt.Sprintf("order is %s/%s", o.Status, o.PaymentStatus),
		}
	}
	return nil
}

const orderNumberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateOrderNumber returns ANX-YYYYMMDD-XXXXXX. Uniqueness is checked by the
// caller against stored orders.
func GenerateOrderNumber(now time.Time) (string, error) {
	suffix := make([]byte, 6)
	max := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("order number generation error: %w", err)
		}
		suffix[i] = orderNumberAlphabet[n.Int64()]
	}
	return fmt.Sprintf("ANX-%s-%s", now.UTC().Format("20060102"), suffix), nil
}
