package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/events"
	"github.com/anax-commerce/commerce-service/internal/gateway"
	"github.com/anax-commerce/commerce-service/internal/invoice"
	"github.com/anax-commerce/commerce-service/internal/lock"
	"github.com/anax-commerce/commerce-service/internal/metrics"
	"github.com/anax-commerce/commerce-service/internal/repository"
	"github.com/anax-commerce/commerce-service/internal/repository/memory"
	"github.com/anax-commerce/commerce-service/internal/service"
	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) Types() []events.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]events.EventType, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.EventType)
	}
	return types
}

// stubGateway lets a test decide what the provider answers.
type stubGateway struct {
	request func(gateway.CollectionRequest) (*gateway.CollectionResponse, error)
}

func (g *stubGateway) RequestCollection(_ context.Context, request gateway.CollectionRequest) (*gateway.CollectionResponse, error) {
	return g.request(request)
}

func (g *stubGateway) CollectionStatus(context.Context, domain.Provider, string) (*gateway.CollectionStatusResponse, error) {
	return nil, domain.NotFound("collection", "")
}

type testEnv struct {
	store     *memory.Store
	publisher *recordingPublisher
	sandbox   *gateway.SandboxGateway
	metrics   *metrics.Metrics
	carts     *service.CartService
	orders    *service.OrderService
	payments  *service.PaymentService
	tracker   *service.Tracker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	sandbox := gateway.NewSandboxGateway(0, 0)
	return newTestEnvWithGateway(t, sandbox, sandbox)
}

func newTestEnvWithGateway(t *testing.T, gw gateway.MobileMoneyGateway, sandbox *gateway.SandboxGateway) *testEnv {
	t.Helper()

	store := memory.NewStore()
	locker := lock.NewLocal()
	publisher := &recordingPublisher{}
	m := metrics.New(prometheus.NewRegistry())
	tracker := service.NewTracker(store, m)

	return &testEnv{
		store:     store,
		publisher: publisher,
		sandbox:   sandbox,
		metrics:   m,
		tracker:   tracker,
		carts:     service.NewCartService(store, locker, time.Second),
		orders: service.NewOrderService(store, locker, tracker, publisher,
			invoice.NewRenderer("Anax", "UGX"), m,
			service.OrderConfig{DeliveryFee: decimal.Zero, LockWait: time.Second}),
		payments: service.NewPaymentService(store, locker, tracker, gw, publisher, m,
			service.PaymentConfig{Timeout: 15 * time.Minute, Currency: "UGX", LockWait: time.Second}),
	}
}

func (e *testEnv) product(t *testing.T, price string, stock int) domain.Product {
	t.Helper()
	id := uuid.New()
	product := domain.Product{
		ID:        id,
		Name:      "Product " + id.String()[:8],
		Price:     decimal.RequireFromString(price),
		SKU:       "SKU-" + id.String()[:8],
		Condition: domain.ConditionNew,
		IsActive:  true,
	}
	e.store.PutProduct(product, stock)
	return product
}

type line struct {
	product  domain.Product
	quantity int
}

// placeOrder fills the user's cart and checks out.
func (e *testEnv) placeOrder(t *testing.T, userID uuid.UUID, lines ...line) *domain.Order {
	t.Helper()
	ctx := context.Background()
	for _, l := range lines {
		_, err := e.carts.AddItem(ctx, userID, l.product.ID, l.quantity)
		require.NoError(t, err)
	}
	order, err := e.orders.PlaceOrder(ctx, userID, domain.CheckoutRequest{ShippingMethod: "standard"})
	require.NoError(t, err)
	return order
}

func (e *testEnv) authorizeMobileMoney(t *testing.T, userID uuid.UUID, order *domain.Order) (*domain.Payment, string) {
	t.Helper()
	payment, err := e.payments.Authorize(context.Background(), userID, order.ID, domain.AuthorizeRequest{
		Method:      string(domain.PaymentMethodMobileMoney),
		Amount:      order.Total(),
		Provider:    string(domain.ProviderMTN),
		PhoneNumber: "256770000001",
	})
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusInitiated, payment.Status)
	return payment, e.reference(t, payment.ID)
}

func (e *testEnv) reference(t *testing.T, paymentID uuid.UUID) string {
	t.Helper()
	var reference string
	require.NoError(t, e.store.WithTx(context.Background(), func(tx repository.Tx) error {
		txns, err := tx.Payments().ListTransactions(context.Background(), paymentID)
		if err != nil {
			return err
		}
		require.Len(t, txns, 1)
		reference = txns[0].Reference
		return nil
	}))
	return reference
}

func (e *testEnv) payment(t *testing.T, paymentID uuid.UUID) *domain.Payment {
	t.Helper()
	var payment *domain.Payment
	require.NoError(t, e.store.WithTx(context.Background(), func(tx repository.Tx) error {
		var err error
		payment, err = tx.Payments().GetPayment(context.Background(), paymentID)
		return err
	}))
	return payment
}

func (e *testEnv) transaction(t *testing.T, paymentID uuid.UUID) *domain.MobileMoneyTransaction {
	t.Helper()
	var txns []*domain.MobileMoneyTransaction
	require.NoError(t, e.store.WithTx(context.Background(), func(tx repository.Tx) error {
		var err error
		txns, err = tx.Payments().ListTransactions(context.Background(), paymentID)
		return err
	}))
	require.Len(t, txns, 1)
	return txns[0]
}

// dump renders a payment with its transactions and order for failure messages.
func (e *testEnv) dump(t *testing.T, paymentID uuid.UUID) string {
	t.Helper()
	ctx := context.Background()
	var (
		payment *domain.Payment
		order   *domain.Order
		txns    []*domain.MobileMoneyTransaction
	)
	require.NoError(t, e.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		if payment, err = tx.Payments().GetPayment(ctx, paymentID); err != nil {
			return err
		}
		if txns, err = tx.Payments().ListTransactions(ctx, paymentID); err != nil {
			return err
		}
		order, err = tx.Orders().GetOrder(ctx, payment.OrderID)
		return err
	}))
	return spew.Sdump(payment, txns, order)
}

func amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// decrementRecorder records the order in which checkouts take stock.
type decrementRecorder struct {
	repository.Store

	mu    sync.Mutex
	taken []uuid.UUID
}

func (r *decrementRecorder) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return r.Store.WithTx(ctx, func(tx repository.Tx) error {
		return fn(recordingTx{Tx: tx, recorder: r})
	})
}

func (r *decrementRecorder) Order() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uuid.UUID(nil), r.taken...)
}

type recordingTx struct {
	repository.Tx
	recorder *decrementRecorder
}

func (t recordingTx) Products() repository.ProductRepository {
	return recordingProducts{ProductRepository: t.Tx.Products(), recorder: t.recorder}
}

type recordingProducts struct {
	repository.ProductRepository
	recorder *decrementRecorder
}

func (p recordingProducts) DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	p.recorder.mu.Lock()
	p.recorder.taken = append(p.recorder.taken, productID)
	p.recorder.mu.Unlock()
	return p.ProductRepository.DecrementStock(ctx, productID, quantity)
}
