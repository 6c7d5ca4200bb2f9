package repository

import (
	"context"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const orderColumns = `
	id, customer_id, order_number, status, payment_status, shipping_address_id,
	shipping_method, delivery_fee, discount_applied, created_at, updated_at
`

type orderRepository struct {
	tx *sqlx.Tx
}

func (r *orderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	query := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES (
			:id, :customer_id, :order_number, :status, :payment_status, :shipping_address_id,
			:shipping_method, :delivery_fee, :discount_applied, :created_at, :updated_at
		)
	`
	if _, err := r.tx.NamedExecContext(ctx, query, order); err != nil {
		if isUniqueViolation(err, "orders_order_number_key") {
			return domain.Invalid(domain.ErrValidation, "order", "order_number", "order number already taken")
		}
		return storageError("create order", "order", order.ID, err)
	}

	if len(order.Items) == 0 {
		return nil
	}

	itemsQuery := `
		INSERT INTO order_items (id, order_id, product_id, quantity, price)
		VALUES (:id, :order_id, :product_id, :quantity, :price)
	`
	if _, err := r.tx.NamedExecContext(ctx, itemsQuery, order.Items); err != nil {
		return storageError("create order items", "order", order.ID, err)
	}
	return nil
}

func (r *orderRepository) OrderNumberExists(ctx context.Context, orderNumber string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM orders WHERE order_number = $1)`
	if err := r.tx.GetContext(ctx, &exists, query, orderNumber); err != nil {
		return false, storageError("check order number", "order", orderNumber, err)
	}
	return exists, nil
}

func (r *orderRepository) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.getOrder(ctx, id, `SELECT `+orderColumns+` FROM orders WHERE id = $1`)
}

func (r *orderRepository) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.getOrder(ctx, id, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`)
}

func (r *orderRepository) getOrder(ctx context.Context, id uuid.UUID, query string) (*domain.Order, error) {
	var order domain.Order
	if err := r.tx.GetContext(ctx, &order, query, id); err != nil {
		return nil, storageError("get order", "order", id, err)
	}

	items := []domain.OrderItem{}
	itemsQuery := `SELECT id, order_id, product_id, quantity, price FROM order_items WHERE order_id = $1 ORDER BY id`
	if err := r.tx.SelectContext(ctx, &items, itemsQuery, id); err != nil {
		return nil, storageError("get order items", "order", id, err)
	}
	order.Items = items

	return &order, nil
}

// ListOrdersByCustomer returns one page, newest first, and the customer's total.
func (r *orderRepository) ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*domain.Order, int, error) {
	var total int
	if err := r.tx.GetContext(ctx, &total, `SELECT COUNT(*) FROM orders WHERE customer_id = $1`, customerID); err != nil {
		return nil, 0, storageError("count orders", "customer", customerID, err)
	}

	orders := []*domain.Order{}
	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`
	if err := r.tx.SelectContext(ctx, &orders, query, customerID, limit, offset); err != nil {
		return nil, 0, storageError("list orders", "customer", customerID, err)
	}
	if len(orders) == 0 {
		return orders, total, nil
	}

	ids := make([]uuid.UUID, 0, len(orders))
	byID := make(map[uuid.UUID]*domain.Order, len(orders))
	for _, order := range orders {
		ids = append(ids, order.ID)
		byID[order.ID] = order
		order.Items = []domain.OrderItem{}
	}

	itemsQuery, args, err := sqlx.In(
		`SELECT id, order_id, product_id, quantity, price FROM order_items WHERE order_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, 0, storageError("list order items", "customer", customerID, err)
	}

	var items []domain.OrderItem
	if err := r.tx.SelectContext(ctx, &items, r.tx.Rebind(itemsQuery), args...); err != nil {
		return nil, 0, storageError("list order items", "customer", customerID, err)
	}
	for _, item := range items {
		order := byID[item.OrderID]
		order.Items = append(order.Items, item)
	}

	return orders, total, nil
}

func (r *orderRepository) UpdateOrderStatus(ctx context.Context, order *domain.Order) error {
	query := `
		UPDATE orders
		SET status = $2, payment_status = $3, updated_at = $4
		WHERE id = $1
	`
	result, err := r.tx.ExecContext(ctx, query, order.ID, order.Status, order.PaymentStatus, order.UpdatedAt)
	if err != nil {
		return storageError("update order", "order", order.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageError("update order", "order", order.ID, err)
	}
	if rowsAffected == 0 {
		return domain.NotFound("order", order.ID)
	}
	return nil
}

func (r *orderRepository) AppendTracking(ctx context.Context, event *domain.OrderTracking) error {
	query := `INSERT INTO order_tracking (id, order_id, status, timestamp) VALUES ($1, $2, $3, $4)`
	if _, err := r.tx.ExecContext(ctx, query, event.ID, event.OrderID, event.Status, event.Timestamp); err != nil {
		return storageError("append tracking", "order", event.OrderID, err)
	}
	return nil
}

func (r *orderRepository) ListTracking(ctx context.Context, orderID uuid.UUID) ([]domain.OrderTracking, error) {
	history := []domain.OrderTracking{}
	query := `
		SELECT id, order_id, status, timestamp
		FROM order_tracking
		WHERE order_id = $1
		ORDER BY timestamp, id
	`
	if err := r.tx.SelectContext(ctx, &history, query, orderID); err != nil {
		return nil, storageError("list tracking", "order", orderID, err)
	}
	return history, nil
}
