package handlers

import (
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/google/uuid"
)

type AddCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type CartLineResponse struct {
	ID        uuid.UUID `json:"id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice string    `json:"unit_price"`
	Subtotal  string    `json:"subtotal"`
	AddedAt   time.Time `json:"added_at"`
}

type CartResponse struct {
	ID        uuid.UUID          `json:"id"`
	UserID    uuid.UUID          `json:"user_id"`
	Items     []CartLineResponse `json:"items"`
	Subtotal  string             `json:"subtotal"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type OrderItemResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Price     string    `json:"price"`
	Subtotal  string    `json:"subtotal"`
}

type OrderResponse struct {
	ID                uuid.UUID           `json:"id"`
	OrderNumber       string              `json:"order_number"`
	CustomerID        uuid.UUID           `json:"customer_id"`
	Status            string              `json:"status"`
	PaymentStatus     string              `json:"payment_status"`
	ShippingAddressID *uuid.UUID          `json:"shipping_address_id,omitempty"`
	ShippingMethod    string              `json:"shipping_method"`
	Items             []OrderItemResponse `json:"items"`
	Subtotal          string              `json:"subtotal"`
	DeliveryFee       string              `json:"delivery_fee"`
	DiscountApplied   string              `json:"discount_applied"`
	Total             string              `json:"total"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

type TrackingResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type PaymentResponse struct {
	ID            uuid.UUID `json:"id"`
	OrderID       uuid.UUID `json:"order_id"`
	Amount        string    `json:"amount"`
	PaymentMethod string    `json:"payment_method"`
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	Verified      bool      `json:"verified"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type CallbackResponse struct {
	Payment           PaymentResponse `json:"payment"`
	OrderStatus       string          `json:"order_status"`
	Reference         string          `json:"transaction_reference"`
	TransactionStatus string          `json:"transaction_status"`
	LateSettlement    bool            `json:"late_settlement,omitempty"`
}

func mapCart(view *domain.CartView) CartResponse {
	items := make([]CartLineResponse, len(view.Lines))
	for i, line := range view.Lines {
		items[i] = CartLineResponse{
			ID:        line.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice.StringFixed(2),
			Subtotal:  line.Subtotal().StringFixed(2),
			AddedAt:   line.AddedAt,
		}
	}
	return CartResponse{
		ID:        view.Cart.ID,
		UserID:    view.Cart.UserID,
		Items:     items,
		Subtotal:  view.Subtotal().StringFixed(2),
		UpdatedAt: view.Cart.UpdatedAt,
	}
}

func mapOrder(order *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, len(order.Items))
	for i, item := range order.Items {
		items[i] = OrderItemResponse{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.StringFixed(2),
			Subtotal:  item.Subtotal().StringFixed(2),
		}
	}

	response := OrderResponse{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		CustomerID:      order.CustomerID,
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		ShippingMethod:  order.ShippingMethod,
		Items:           items,
		Subtotal:        order.Subtotal().StringFixed(2),
		DeliveryFee:     order.DeliveryFee.StringFixed(2),
		DiscountApplied: order.DiscountApplied.StringFixed(2),
		Total:           order.Total().StringFixed(2),
		CreatedAt:       order.CreatedAt,
		UpdatedAt:       order.UpdatedAt,
	}
	if order.ShippingAddressID.Valid {
		id := order.ShippingAddressID.UUID
		response.ShippingAddressID = &id
	}
	return response
}

func mapOrders(orders []*domain.Order) []OrderResponse {
	responses := make([]OrderResponse, len(orders))
	for i, order := range orders {
		responses[i] = mapOrder(order)
	}
	return responses
}

func mapTracking(history []domain.OrderTracking) []TrackingResponse {
	responses := make([]TrackingResponse, len(history))
	for i, entry := range history {
		responses[i] = TrackingResponse{
			Status:    string(entry.Status),
			Timestamp: entry.Timestamp,
		}
	}
	return responses
}

func mapPayment(payment *domain.Payment) PaymentResponse {
	return PaymentResponse{
		ID:            payment.ID,
		OrderID:       payment.OrderID,
		Amount:        payment.Amount.StringFixed(2),
		PaymentMethod: string(payment.Method),
		TransactionID: payment.TransactionID,
		Status:        string(payment.Status),
		Verified:      payment.Verified,
		FailureReason: payment.FailureReason,
		CreatedAt:     payment.CreatedAt,
		UpdatedAt:     payment.UpdatedAt,
	}
}

func mapPayments(payments []*domain.Payment) []PaymentResponse {
	responses := make([]PaymentResponse, len(payments))
	for i, payment := range payments {
		responses[i] = mapPayment(payment)
	}
	return responses
}
