package service

import (
	"context"
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/metrics"
	"github.com/anax-commerce/commerce-service/internal/repository"
	"github.com/google/uuid"
)

// Tracker keeps the append-only status history of orders. Every status change
// goes through Transition so that history and order row never disagree.
type Tracker struct {
	store   repository.Store
	metrics *metrics.Metrics
}

func NewTracker(store repository.Store, m *metrics.Metrics) *Tracker {
	return &Tracker{store: store, metrics: m}
}

// Append records status for the order inside tx.
func (t *Tracker) Append(ctx context.Context, tx repository.Tx, orderID uuid.UUID, status domain.OrderStatus, at time.Time) error {
	return tx.Orders().AppendTracking(ctx, domain.NewOrderTracking(orderID, status, at))
}

// Transition moves a locked order to status, persists it and appends the
// matching history row, all within tx.
func (t *Tracker) Transition(ctx context.Context, tx repository.Tx, order *domain.Order, status domain.OrderStatus, now time.Time) error {
	if status == domain.OrderStatusPaid {
		if err := order.MarkPaid(now); err != nil {
			return err
		}
	} else if err := order.TransitionTo(status, now); err != nil {
		return err
	}

	if err := tx.Orders().UpdateOrderStatus(ctx, order); err != nil {
		return err
	}
	if err := t.Append(ctx, tx, order.ID, order.Status, now); err != nil {
		return err
	}

	t.metrics.OrderTransitioned(string(status))
	return nil
}

// History returns the caller's order history, oldest first.
func (t *Tracker) History(ctx context.Context, userID, orderID uuid.UUID) ([]domain.OrderTracking, error) {
	var history []domain.OrderTracking
	err := t.store.WithTx(ctx, func(tx repository.Tx) error {
		order, err := tx.Orders().GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.CustomerID != userID {
			return domain.NotFound("order", orderID)
		}
		history, err = tx.Orders().ListTracking(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}
