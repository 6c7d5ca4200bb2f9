package service_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/events"
	"github.com/anax-commerce/commerce-service/internal/invoice"
	"github.com/anax-commerce/commerce-service/internal/lock"
	"github.com/anax-commerce/commerce-service/internal/service"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("two lines total 25.00", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		userID := uuid.New()
		a := env.product(t, "10.00", 5)
		b := env.product(t, "5.00", 5)

		order := env.placeOrder(t, userID, line{a, 2}, line{b, 1})

		assert.Equal(t, domain.OrderStatusPending, order.Status)
		assert.Equal(t, domain.OrderPaymentUnpaid, order.PaymentStatus)
		assert.Regexp(t, `^ANX-\d{8}-[0-9A-Z]{6}$`, order.OrderNumber)
		assert.Equal(t, "25.00", order.Total().StringFixed(2))

		require.Len(t, order.Items, 2)
		assert.Equal(t, a.ID, order.Items[0].ProductID)
		assert.Equal(t, "10.00", order.Items[0].Price.StringFixed(2))
		assert.Equal(t, 2, order.Items[0].Quantity)
		assert.Equal(t, b.ID, order.Items[1].ProductID)
		assert.Equal(t, "5.00", order.Items[1].Price.StringFixed(2))

		assert.Equal(t, 3, env.store.Stock(a.ID))
		assert.Equal(t, 4, env.store.Stock(b.ID))

		history, err := env.tracker.History(ctx, userID, order.ID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, domain.OrderStatusPending, history[0].Status)

		view, err := env.carts.GetOrCreateCart(ctx, userID)
		require.NoError(t, err)
		assert.Empty(t, view.Lines)

		assert.Equal(t, []events.EventType{events.OrderPlacedEvent}, env.publisher.Types())
		assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.OrdersPlaced))
	})

	t.Run("price snapshot survives catalog change", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		userID := uuid.New()
		a := env.product(t, "10.00", 5)

		order := env.placeOrder(t, userID, line{a, 2})
		env.store.SetPrice(a.ID, amount("99.99"))

		stored, err := env.orders.GetOrder(ctx, userID, order.ID)
		require.NoError(t, err)
		assert.Equal(t, "10.00", stored.Items[0].Price.StringFixed(2))
		assert.Equal(t, "20.00", stored.Total().StringFixed(2))
	})

	t.Run("empty cart", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)

		_, err := env.orders.PlaceOrder(ctx, uuid.New(), domain.CheckoutRequest{})
		assert.ErrorIs(t, err, domain.ErrEmptyCart)
		assert.Zero(t, env.store.CountOrders())
	})

	t.Run("insufficient stock changes nothing", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		userID := uuid.New()
		a := env.product(t, "10.00", 5)
		b := env.product(t, "5.00", 1)

		_, err := env.carts.AddItem(ctx, userID, a.ID, 2)
		require.NoError(t, err)
		_, err = env.carts.AddItem(ctx, userID, b.ID, 2)
		require.NoError(t, err)

		_, err = env.orders.PlaceOrder(ctx, userID, domain.CheckoutRequest{})
		require.ErrorIs(t, err, domain.ErrInsufficientStock)

		var stockErr *domain.InsufficientStockError
		require.True(t, errors.As(err, &stockErr))
		assert.Equal(t, b.ID, stockErr.ProductID)
		assert.Equal(t, 2, stockErr.Requested)
		assert.Equal(t, 1, stockErr.Available)

		assert.Zero(t, env.store.CountOrders())
		assert.Equal(t, 5, env.store.Stock(a.ID))
		assert.Equal(t, 1, env.store.Stock(b.ID))

		view, err := env.carts.GetOrCreateCart(ctx, userID)
		require.NoError(t, err)
		assert.Len(t, view.Lines, 2)
		assert.Empty(t, env.publisher.Types())
	})

	t.Run("inactive product at checkout", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		userID := uuid.New()
		a := env.product(t, "10.00", 5)

		_, err := env.carts.AddItem(ctx, userID, a.ID, 1)
		require.NoError(t, err)
		env.store.SetActive(a.ID, false)

		_, err = env.orders.PlaceOrder(ctx, userID, domain.CheckoutRequest{})
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, 5, env.store.Stock(a.ID))
	})

	t.Run("storage failure rolls back", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		userID := uuid.New()
		a := env.product(t, "10.00", 5)

		_, err := env.carts.AddItem(ctx, userID, a.ID, 3)
		require.NoError(t, err)
		env.store.FailOn("ClearCart", domain.Unavailable("clear cart", errors.New("connection reset")))

		_, err = env.orders.PlaceOrder(ctx, userID, domain.CheckoutRequest{})
		assert.ErrorIs(t, err, domain.ErrUnavailable)
		assert.Zero(t, env.store.CountOrders())
		assert.Equal(t, 5, env.store.Stock(a.ID))

		env.store.FailOn("ClearCart", nil)
		order, err := env.orders.PlaceOrder(ctx, userID, domain.CheckoutRequest{})
		require.NoError(t, err)
		assert.Equal(t, "30.00", order.Total().StringFixed(2))
	})

	t.Run("concurrent checkouts for the last unit", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		last := env.product(t, "10.00", 1)

		users := []uuid.UUID{uuid.New(), uuid.New()}
		for _, userID := range users {
			_, err := env.carts.AddItem(ctx, userID, last.ID, 1)
			require.NoError(t, err)
		}

		var wg sync.WaitGroup
		results := make([]error, len(users))
		for i, userID := range users {
			wg.Add(1)
			go func(i int, userID uuid.UUID) {
				defer wg.Done()
				_, results[i] = env.orders.PlaceOrder(ctx, userID, domain.CheckoutRequest{})
			}(i, userID)
		}
		wg.Wait()

		succeeded, rejected := 0, 0
		for _, err := range results {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			}
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, rejected)
		assert.Zero(t, env.store.Stock(last.ID))
		assert.Equal(t, 1, env.store.CountOrders())
	})

	t.Run("stock is taken in product id order", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		userID := uuid.New()
		products := []domain.Product{env.product(t, "1.00", 5), env.product(t, "2.00", 5), env.product(t, "3.00", 5)}
		sort.Slice(products, func(i, j int) bool {
			return bytes.Compare(products[i].ID[:], products[j].ID[:]) > 0
		})
		for _, product := range products {
			_, err := env.carts.AddItem(ctx, userID, product.ID, 1)
			require.NoError(t, err)
		}

		recorder := &decrementRecorder{Store: env.store}
		orders := service.NewOrderService(recorder, lock.NewLocal(), env.tracker, nil,
			invoice.NewRenderer("Anax", "UGX"), nil,
			service.OrderConfig{DeliveryFee: decimal.Zero, LockWait: time.Second})

		order, err := orders.PlaceOrder(ctx, userID, domain.CheckoutRequest{})
		require.NoError(t, err)

		taken := recorder.Order()
		require.Len(t, taken, 3)
		assert.True(t, sort.SliceIsSorted(taken, func(i, j int) bool {
			return bytes.Compare(taken[i][:], taken[j][:]) < 0
		}), "decrements: %v", taken)

		require.Len(t, order.Items, 3)
		for i, product := range products {
			assert.Equal(t, product.ID, order.Items[i].ProductID, "items keep cart order")
			assert.True(t, product.Price.Equal(order.Items[i].Price))
		}
	})
}

func TestGetAndListOrders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	userID := uuid.New()
	a := env.product(t, "1.00", 100)

	var placed []*domain.Order
	for i := 0; i < 3; i++ {
		placed = append(placed, env.placeOrder(t, userID, line{a, 1}))
	}

	t.Run("foreign order is not found", func(t *testing.T) {
		_, err := env.orders.GetOrder(ctx, uuid.New(), placed[0].ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = env.tracker.History(ctx, uuid.New(), placed[0].ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("pages newest first", func(t *testing.T) {
		page, err := env.orders.ListOrders(ctx, userID, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		require.Len(t, page.Orders, 2)
		assert.False(t, page.Orders[0].CreatedAt.Before(page.Orders[1].CreatedAt))

		page, err = env.orders.ListOrders(ctx, userID, 2, 2)
		require.NoError(t, err)
		assert.Len(t, page.Orders, 1)

		page, err = env.orders.ListOrders(ctx, uuid.New(), 0, 0)
		require.NoError(t, err)
		assert.Zero(t, page.Total)
		assert.Equal(t, 1, page.Page)
		assert.Equal(t, 20, page.Limit)
	})

	t.Run("page beyond the offset range", func(t *testing.T) {
		_, err := env.orders.ListOrders(ctx, userID, math.MaxInt, 20)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = env.orders.ListOrders(ctx, userID, math.MaxInt/20+1, 0)
		assert.ErrorIs(t, err, domain.ErrValidation)

		page, err := env.orders.ListOrders(ctx, userID, math.MaxInt/20, 20)
		require.NoError(t, err)
		assert.Empty(t, page.Orders)
		assert.Equal(t, 3, page.Total)
	})
}

func TestCancelOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("restocks and fails the initiated payment", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		userID := uuid.New()
		a := env.product(t, "10.00", 5)
		order := env.placeOrder(t, userID, line{a, 2})
		payment, _ := env.authorizeMobileMoney(t, userID, order)

		cancelled, err := env.orders.CancelOrder(ctx, userID, order.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
		assert.Equal(t, 5, env.store.Stock(a.ID))

		stored := env.payment(t, payment.ID)
		assert.Equal(t, domain.PaymentStatusFailed, stored.Status)
		assert.Equal(t, "order cancelled", stored.FailureReason)

		history, err := env.tracker.History(ctx, userID, order.ID)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, domain.OrderStatusCancelled, history[1].Status)

		assert.Contains(t, env.publisher.Types(), events.OrderCancelledEvent)
		assert.Contains(t, env.publisher.Types(), events.PaymentFailedEvent)

		_, err = env.orders.CancelOrder(ctx, userID, order.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.Equal(t, 5, env.store.Stock(a.ID))
	})

	t.Run("only the owner can cancel", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		order := env.placeOrder(t, uuid.New(), line{env.product(t, "1.00", 1), 1})

		_, err := env.orders.CancelOrder(ctx, uuid.New(), order.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestUpdateStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	userID := uuid.New()
	order := env.placeOrder(t, userID, line{env.product(t, "8.00", 3), 1})

	_, err := env.orders.UpdateStatus(ctx, order.ID, "shipped")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "pending orders cannot ship")

	_, err = env.orders.UpdateStatus(ctx, order.ID, "paid")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.orders.UpdateStatus(ctx, order.ID, "lost")
	assert.ErrorIs(t, err, domain.ErrValidation)

	payment, reference := env.authorizeMobileMoney(t, userID, order)
	_, err = env.payments.RecordCallback(ctx, domain.CallbackRequest{
		PaymentID: payment.ID,
		Provider:  "mtn",
		Reference: reference,
		Status:    "success",
	})
	require.NoError(t, err)

	shipped, err := env.orders.UpdateStatus(ctx, order.ID, "shipped")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, shipped.Status)

	_, err = env.orders.UpdateStatus(ctx, order.ID, "cancelled")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	delivered, err := env.orders.UpdateStatus(ctx, order.ID, "delivered")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, delivered.Status)

	_, err = env.orders.UpdateStatus(ctx, order.ID, "shipped")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	history, err := env.tracker.History(ctx, userID, order.ID)
	require.NoError(t, err)
	var statuses []domain.OrderStatus
	for _, entry := range history {
		statuses = append(statuses, entry.Status)
	}
	assert.Equal(t, []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusPaid,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
	}, statuses)
}

func TestInvoice(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	userID := uuid.New()
	order := env.placeOrder(t, userID, line{env.product(t, "10.00", 5), 2})

	stored, pdf, err := env.orders.Invoice(ctx, userID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, stored.OrderNumber)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")))

	_, _, err = env.orders.Invoice(ctx, uuid.New(), order.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
