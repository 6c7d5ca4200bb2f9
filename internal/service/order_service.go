package service

import (
	"bytes"
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/events"
	"github.com/anax-commerce/commerce-service/internal/invoice"
	"github.com/anax-commerce/commerce-service/internal/lock"
	"github.com/anax-commerce/commerce-service/internal/metrics"
	"github.com/anax-commerce/commerce-service/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	orderNumberAttempts = 5
	defaultPageSize     = 20
	maxPageSize         = 100
)

type OrderConfig struct {
	DeliveryFee decimal.Decimal
	LockWait    time.Duration
}

type OrderService struct {
	store     repository.Store
	locker    lock.Locker
	tracker   *Tracker
	publisher EventPublisher
	invoices  *invoice.Renderer
	metrics   *metrics.Metrics
	config    OrderConfig
	now       func() time.Time
}

func NewOrderService(
	store repository.Store,
	locker lock.Locker,
	tracker *Tracker,
	publisher EventPublisher,
	invoices *invoice.Renderer,
	m *metrics.Metrics,
	config OrderConfig,
) *OrderService {
	if publisher == nil {
		publisher = discardPublisher{}
	}
	return &OrderService{
		store:     store,
		locker:    locker,
		tracker:   tracker,
		publisher: publisher,
		invoices:  invoices,
		metrics:   m,
		config:    config,
		now:       time.Now,
	}
}

type OrderPage struct {
	Orders []*domain.Order
	Total  int
	Page   int
	Limit  int
}

// PlaceOrder turns the caller's cart into a pending order. Stock, order,
// tracking and cart changes commit together or not at all.
func (s *OrderService) PlaceOrder(ctx context.Context, userID uuid.UUID, request domain.CheckoutRequest) (*domain.Order, error) {
	if len(request.ShippingMethod) > 100 {
		return nil, domain.Invalid(domain.ErrValidation, "order", "shipping_method", "at most 100 characters")
	}

	var (
		order    *domain.Order
		lowStock []domain.Inventory
	)
	err := withLock(ctx, s.locker, s.config.LockWait, lock.CartKey(userID), func() error {
		return s.store.WithTx(ctx, func(tx repository.Tx) error {
			var err error
			order, lowStock, err = s.buildOrder(ctx, tx, userID, request)
			return err
		})
	})
	if err != nil {
		s.metrics.CheckoutFailed(failureReason(err))
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Checkout rejected")
		return nil, err
	}

	log.Info().
		Str("order_id", order.ID.String()).
		Str("order_number", order.OrderNumber).
		Str("customer_id", userID.String()).
		Str("total", order.Total().StringFixed(2)).
		Msg("Order placed")

	for _, inventory := range lowStock {
		log.Warn().
			Str("product_id", inventory.ProductID.String()).
			Int("quantity", inventory.Quantity).
			Int("threshold", inventory.LowStockThreshold).
			Msg("Low stock")
	}

	s.metrics.OrderPlaced()
	publish(ctx, s.publisher, events.OrderPlacedEvent, order, events.OrderPlacedPayload{
		OrderNumber: order.OrderNumber,
		Total:       order.Total().StringFixed(2),
		ItemCount:   len(order.Items),
	})

	return order, nil
}

func (s *OrderService) buildOrder(ctx context.Context, tx repository.Tx, userID uuid.UUID, request domain.CheckoutRequest) (*domain.Order, []domain.Inventory, error) {
	now := s.now()

	cart, err := tx.Carts().GetOrCreate(ctx, userID, now)
	if err != nil {
		return nil, nil, err
	}
	if cart.IsEmpty() {
		return nil, nil, domain.Invalid(domain.ErrEmptyCart, "cart", "items", "cart has no items")
	}

	// Inventory rows are locked in product id order so that two checkouts over
	// the same products cannot deadlock.
	lines := append([]domain.CartItem(nil), cart.Items...)
	sort.Slice(lines, func(i, j int) bool {
		return bytes.Compare(lines[i].ProductID[:], lines[j].ProductID[:]) < 0
	})

	prices := make(map[uuid.UUID]decimal.Decimal, len(lines))
	var lowStock []domain.Inventory
	for _, item := range lines {
		product, err := tx.Products().GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, nil, err
		}
		if !product.IsActive {
			return nil, nil, domain.NotFound("product", item.ProductID)
		}
		if err := tx.Products().DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			return nil, nil, err
		}
		inventory, err := tx.Products().GetInventory(ctx, item.ProductID)
		if err != nil {
			return nil, nil, err
		}
		if inventory.IsLowStock() {
			lowStock = append(lowStock, *inventory)
		}
		prices[item.ProductID] = product.Price
	}

	order := domain.NewOrder(userID, request, s.config.DeliveryFee, now)
	for _, item := range cart.Items {
		order.AddItem(item.ProductID, item.Quantity, prices[item.ProductID])
	}

	order.OrderNumber, err = s.nextOrderNumber(ctx, tx, now)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Orders().CreateOrder(ctx, order); err != nil {
		return nil, nil, err
	}
	if err := s.tracker.Append(ctx, tx, order.ID, order.Status, now); err != nil {
		return nil, nil, err
	}
	if err := tx.Carts().Clear(ctx, cart.ID); err != nil {
		return nil, nil, err
	}
	return order, lowStock, nil
}

func (s *OrderService) nextOrderNumber(ctx context.Context, tx repository.Tx, now time.Time) (string, error) {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number, err := domain.GenerateOrderNumber(now)
		if err != nil {
			return "", err
		}
		exists, err := tx.Orders().OrderNumberExists(ctx, number)
		if err != nil {
			return "", err
		}
		if !exists {
			return number, nil
		}
		log.Warn().Str("order_number", number).Int("attempt", attempt+1).Msg("Order number collision")
	}
	return "", domain.Unavailable("generate order number", errors.New("no free order number"))
}

func (s *OrderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	var order *domain.Order
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		order, err = ownedOrder(ctx, tx, userID, orderID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID, page, limit int) (*OrderPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if page > math.MaxInt/limit {
		return nil, domain.Invalid(domain.ErrValidation, "order", "page", "page is out of range")
	}

	result := &OrderPage{Page: page, Limit: limit}
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		result.Orders, result.Total, err = tx.Orders().ListOrdersByCustomer(ctx, userID, limit, (page-1)*limit)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelOrder cancels a pending or paid order of the caller and returns its
// stock to inventory.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	return s.cancel(ctx, orderID, func(order *domain.Order) error {
		if order.CustomerID != userID {
			return domain.NotFound("order", orderID)
		}
		return nil
	})
}

// UpdateStatus applies an administrative status change. Orders only become
// paid through a confirmed payment.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*domain.Order, error) {
	target, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	switch target {
	case domain.OrderStatusCancelled:
		return s.cancel(ctx, orderID, nil)
	case domain.OrderStatusPaid:
		return nil, domain.Invalid(domain.ErrValidation, "order", "status",
			"orders become paid through payment confirmation")
	}

	var (
		order *domain.Order
		from  domain.OrderStatus
	)
	err = withLock(ctx, s.locker, s.config.LockWait, lock.OrderKey(orderID), func() error {
		return s.store.WithTx(ctx, func(tx repository.Tx) error {
			var err error
			order, err = tx.Orders().GetOrderForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			from = order.Status
			return s.tracker.Transition(ctx, tx, order, target, s.now())
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", orderID.String()).
		Str("from", string(from)).
		Str("to", string(target)).
		Msg("Order status updated")

	publish(ctx, s.publisher, events.OrderStatusChangedEvent, order, events.OrderStatusPayload{
		OrderNumber: order.OrderNumber,
		From:        string(from),
		To:          string(target),
	})
	return order, nil
}

func (s *OrderService) cancel(ctx context.Context, orderID uuid.UUID, authorize func(order *domain.Order) error) (*domain.Order, error) {
	var (
		order  *domain.Order
		from   domain.OrderStatus
		failed []*domain.Payment
	)
	err := withLock(ctx, s.locker, s.config.LockWait, lock.OrderKey(orderID), func() error {
		return s.store.WithTx(ctx, func(tx repository.Tx) error {
			var err error
			order, err = tx.Orders().GetOrderForUpdate(ctx, orderID)
			if err != nil {
				return err
			}
			if authorize != nil {
				if err := authorize(order); err != nil {
					return err
				}
			}

			now := s.now()
			from = order.Status
			if err := s.tracker.Transition(ctx, tx, order, domain.OrderStatusCancelled, now); err != nil {
				return err
			}

			for _, item := range order.Items {
				if err := tx.Products().IncrementStock(ctx, item.ProductID, item.Quantity); err != nil {
					return err
				}
			}

			payments, err := tx.Payments().ListPaymentsByOrder(ctx, orderID)
			if err != nil {
				return err
			}
			failed = failed[:0]
			for _, payment := range payments {
				if payment.Status != domain.PaymentStatusInitiated {
					continue
				}
				if err := payment.Fail("order cancelled", now); err != nil {
					return err
				}
				if err := tx.Payments().UpdatePayment(ctx, payment); err != nil {
					return err
				}
				failed = append(failed, payment)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("order_id", orderID.String()).
		Str("from", string(from)).
		Int("failed_payments", len(failed)).
		Msg("Order cancelled")

	publish(ctx, s.publisher, events.OrderCancelledEvent, order, events.OrderStatusPayload{
		OrderNumber: order.OrderNumber,
		From:        string(from),
		To:          string(domain.OrderStatusCancelled),
	})
	for _, payment := range failed {
		s.metrics.PaymentStatus(string(payment.Method), string(payment.Status))
		publish(ctx, s.publisher, events.PaymentFailedEvent, order, paymentPayload(payment))
	}
	return order, nil
}

// Invoice renders the caller's order as a PDF.
func (s *OrderService) Invoice(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, []byte, error) {
	var (
		order *domain.Order
		doc   invoice.Document
	)
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		order, err = ownedOrder(ctx, tx, userID, orderID, false)
		if err != nil {
			return err
		}

		doc = invoice.Document{
			OrderNumber:   order.OrderNumber,
			IssuedAt:      order.CreatedAt,
			Status:        string(order.Status),
			PaymentStatus: string(order.PaymentStatus),
			Subtotal:      order.Subtotal(),
			DeliveryFee:   order.DeliveryFee,
			Discount:      order.DiscountApplied,
			Total:         order.Total(),
		}
		for _, item := range order.Items {
			line := invoice.Line{Name: item.ProductID.String(), Quantity: item.Quantity, UnitPrice: item.Price}
			product, err := tx.Products().GetProduct(ctx, item.ProductID)
			switch {
			case err == nil:
				line.Name = product.Name
				line.SKU = product.SKU
			case !errors.Is(err, domain.ErrNotFound):
				return err
			}
			doc.Lines = append(doc.Lines, line)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	pdf, err := s.invoices.Render(doc)
	if err != nil {
		return nil, nil, err
	}
	return order, pdf, nil
}

func ownedOrder(ctx context.Context, tx repository.Tx, userID, orderID uuid.UUID, forUpdate bool) (*domain.Order, error) {
	var (
		order *domain.Order
		err   error
	)
	if forUpdate {
		order, err = tx.Orders().GetOrderForUpdate(ctx, orderID)
	} else {
		order, err = tx.Orders().GetOrder(ctx, orderID)
	}
	if err != nil {
		return nil, err
	}
	if order.CustomerID != userID {
		return nil, domain.NotFound("order", orderID)
	}
	return order, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrNotFound):
		return "product_unavailable"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrUnavailable):
		return "unavailable"
	}
	return "other"
}

func paymentPayload(payment *domain.Payment) events.PaymentPayload {
	return events.PaymentPayload{
		PaymentID:     payment.ID,
		TransactionID: payment.TransactionID,
		Amount:        payment.Amount.StringFixed(2),
		Method:        string(payment.Method),
		Reason:        payment.FailureReason,
	}
}
