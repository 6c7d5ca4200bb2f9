package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	// Order Events
	OrderPlacedEvent        EventType = "order.placed"
	OrderCancelledEvent     EventType = "order.cancelled"
	OrderStatusChangedEvent EventType = "order.status_changed"

	// Payment Events
	PaymentCompletedEvent      EventType = "payment.completed"
	PaymentFailedEvent         EventType = "payment.failed"
	PaymentExpiredEvent        EventType = "payment.expired"
	PaymentLateSettlementEvent EventType = "payment.late_settlement"

	// Reconciliation commands
	PaymentExpireCommand      EventType = "payment.expire"
	PaymentExpireStaleCommand EventType = "payment.expire_stale"
)

const ServiceName = "commerce-service"

type Event struct {
	ID            uuid.UUID       `json:"id"`
	OrderID       uuid.UUID       `json:"order_id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	EventType     EventType       `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	Timestamp     time.Time       `json:"timestamp"`
	Service       string          `json:"service"`
	CorrelationID uuid.UUID       `json:"correlation_id"`
}

// New builds an event with a serialized payload.
func New(eventType EventType, orderID, customerID uuid.UUID, payload interface{}) (Event, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("event payload serialization error: %w", err)
	}
	return Event{
		ID:            uuid.New(),
		OrderID:       orderID,
		CustomerID:    customerID,
		EventType:     eventType,
		Payload:       body,
		Timestamp:     time.Now(),
		Service:       ServiceName,
		CorrelationID: uuid.New(),
	}, nil
}

func (e Event) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.EventType)
	}
	return json.Unmarshal(e.Payload, v)
}

// RoutingKey is the topic used on the commerce exchange.
func RoutingKey(eventType EventType) string {
	return "commerce." + string(eventType)
}

type OrderPlacedPayload struct {
	OrderNumber string `json:"order_number"`
	Total       string `json:"total"`
	ItemCount   int    `json:"item_count"`
}

type OrderStatusPayload struct {
	OrderNumber string `json:"order_number"`
	From        string `json:"from"`
	To          string `json:"to"`
}

type PaymentPayload struct {
	PaymentID     uuid.UUID `json:"payment_id"`
	TransactionID string    `json:"transaction_id"`
	Amount        string    `json:"amount"`
	Method        string    `json:"payment_method"`
	Reason        string    `json:"reason,omitempty"`
}

type ExpirePaymentCommand struct {
	PaymentID uuid.UUID `json:"payment_id"`
}
