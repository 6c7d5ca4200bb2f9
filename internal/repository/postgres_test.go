package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return &PostgresStore{db: sqlx.NewDb(db, "postgres")}, mock
}

var orderRowColumns = []string{
	"id", "customer_id", "order_number", "status", "payment_status", "shipping_address_id",
	"shipping_method", "delivery_fee", "discount_applied", "created_at", "updated_at",
}

func TestDecrementStock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	decrement := regexp.QuoteMeta(`UPDATE inventory SET quantity = quantity - $1 WHERE product_id = $2 AND quantity >= $1`)

	t.Run("conditional update takes the stock", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		productID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec(decrement).WithArgs(2, productID).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.WithTx(ctx, func(tx Tx) error {
			return tx.Products().DecrementStock(ctx, productID, 2)
		})
		assert.NoError(t, err)
	})

	t.Run("no matching row reports what is left", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		productID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec(decrement).WithArgs(3, productID).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(regexp.QuoteMeta(`FROM inventory WHERE product_id = $1`)).
			WithArgs(productID).
			WillReturnRows(sqlmock.NewRows([]string{"product_id", "quantity", "low_stock_threshold"}).
				AddRow(productID.String(), 1, 5))
		mock.ExpectRollback()

		err := store.WithTx(ctx, func(tx Tx) error {
			return tx.Products().DecrementStock(ctx, productID, 3)
		})
		require.ErrorIs(t, err, domain.ErrInsufficientStock)
		var stockErr *domain.InsufficientStockError
		require.True(t, errors.As(err, &stockErr))
		assert.Equal(t, 3, stockErr.Requested)
		assert.Equal(t, 1, stockErr.Available)
	})

	t.Run("deadlock is retryable", func(t *testing.T) {
		t.Parallel()
		store, mock := newMockStore(t)
		productID := uuid.New()

		mock.ExpectBegin()
		mock.ExpectExec(decrement).WillReturnError(&pq.Error{Code: deadlockDetected})
		mock.ExpectRollback()

		err := store.WithTx(ctx, func(tx Tx) error {
			return tx.Products().DecrementStock(ctx, productID, 1)
		})
		assert.ErrorIs(t, err, domain.ErrUnavailable)
	})
}

func TestGetOrderForUpdateLocksTheRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, mock := newMockStore(t)
	orderID, productID := uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders WHERE id = \$1 FOR UPDATE`).
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows(orderRowColumns).AddRow(
			orderID.String(), uuid.New().String(), "ANX-20260101-AAAAAA", "pending", "unpaid", nil,
			"standard", "0.00", "0.00", now, now))
	mock.ExpectQuery(`FROM order_items WHERE order_id = \$1`).
		WithArgs(orderID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "quantity", "price"}).
			AddRow(uuid.New().String(), orderID.String(), productID.String(), 2, "12.50"))
	mock.ExpectCommit()

	var order *domain.Order
	err := store.WithTx(ctx, func(tx Tx) error {
		var err error
		order, err = tx.Orders().GetOrderForUpdate(ctx, orderID)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.False(t, order.ShippingAddressID.Valid)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "25.00", order.Total().StringFixed(2))
}

func TestCreateOrderBatchesItems(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, mock := newMockStore(t)

	order := domain.NewOrder(uuid.New(), domain.CheckoutRequest{ShippingMethod: "standard"}, decimal.Zero, time.Now())
	order.OrderNumber = "ANX-20260101-BBBBBB"
	order.AddItem(uuid.New(), 1, decimal.RequireFromString("3.00"))
	order.AddItem(uuid.New(), 2, decimal.RequireFromString("4.00"))

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO orders`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_items .*\(\$1, \$2, \$3, \$4, \$5\),\s*\(\$6, \$7, \$8, \$9, \$10\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := store.WithTx(ctx, func(tx Tx) error {
		return tx.Orders().CreateOrder(ctx, order)
	})
	assert.NoError(t, err)
}

func TestCreateOrderNumberTaken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, mock := newMockStore(t)

	order := domain.NewOrder(uuid.New(), domain.CheckoutRequest{}, decimal.Zero, time.Now())
	order.OrderNumber = "ANX-20260101-CCCCCC"

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO orders`).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "orders_order_number_key"})
	mock.ExpectRollback()

	err := store.WithTx(ctx, func(tx Tx) error {
		return tx.Orders().CreateOrder(ctx, order)
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestListOrdersByCustomerLoadsItemsInOneQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, mock := newMockStore(t)
	customerID := uuid.New()
	first, second := uuid.New(), uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM orders WHERE customer_id = $1`)).
		WithArgs(customerID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(`FROM orders WHERE customer_id = \$1 ORDER BY created_at DESC, id LIMIT \$2 OFFSET \$3`).
		WithArgs(customerID, 2, 4).
		WillReturnRows(sqlmock.NewRows(orderRowColumns).
			AddRow(first.String(), customerID.String(), "ANX-20260101-DDDDDD", "paid", "paid", nil,
				"standard", "0.00", "0.00", now, now).
			AddRow(second.String(), customerID.String(), "ANX-20260101-EEEEEE", "pending", "unpaid", nil,
				"standard", "0.00", "0.00", now, now))
	mock.ExpectQuery(`FROM order_items WHERE order_id IN \(\$1, \$2\)`).
		WithArgs(first, second).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "product_id", "quantity", "price"}).
			AddRow(uuid.New().String(), first.String(), uuid.New().String(), 1, "5.00").
			AddRow(uuid.New().String(), first.String(), uuid.New().String(), 1, "6.00"))
	mock.ExpectCommit()

	var (
		orders []*domain.Order
		total  int
	)
	err := store.WithTx(ctx, func(tx Tx) error {
		var err error
		orders, total, err = tx.Orders().ListOrdersByCustomer(ctx, customerID, 2, 4)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, orders, 2)
	assert.Len(t, orders[0].Items, 2)
	assert.Empty(t, orders[1].Items)
	assert.NotNil(t, orders[1].Items)
}

func TestListStaleInitiatedFiltersByMethod(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, mock := newMockStore(t)
	cutoff := time.Now().Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM payments WHERE status = \$1 AND payment_method = \$2 AND created_at < \$3 ORDER BY created_at LIMIT \$4`).
		WithArgs(string(domain.PaymentStatusInitiated), string(domain.PaymentMethodMobileMoney), cutoff, 50).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	err := store.WithTx(ctx, func(tx Tx) error {
		payments, err := tx.Payments().ListStaleInitiated(ctx, domain.PaymentMethodMobileMoney, cutoff, 50)
		assert.Empty(t, payments)
		return err
	})
	assert.NoError(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)
	failure := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.WithTx(context.Background(), func(Tx) error { return failure })
	assert.ErrorIs(t, err, failure)
}
