package repository

import (
	"context"
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/google/uuid"
)

// Store runs a unit of work atomically. Either everything fn wrote through tx
// commits or nothing does.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Payments() PaymentRepository
}

type ProductRepository interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	GetInventory(ctx context.Context, productID uuid.UUID) (*domain.Inventory, error)
	// DecrementStock fails with domain.ErrInsufficientStock instead of going negative.
	DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error
	IncrementStock(ctx context.Context, productID uuid.UUID, quantity int) error
}

type CartRepository interface {
	// GetOrCreate returns the user's cart with its items, locked for the
	// remainder of the transaction.
	GetOrCreate(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.Cart, error)
	AddItem(ctx context.Context, cartID, productID uuid.UUID, quantity int, now time.Time) (*domain.CartItem, error)
	UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) (*domain.CartItem, error)
	RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error
	Clear(ctx context.Context, cartID uuid.UUID) error
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	OrderNumberExists(ctx context.Context, orderNumber string) (bool, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*domain.Order, int, error)
	UpdateOrderStatus(ctx context.Context, order *domain.Order) error
	AppendTracking(ctx context.Context, event *domain.OrderTracking) error
	ListTracking(ctx context.Context, orderID uuid.UUID) ([]domain.OrderTracking, error)
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *domain.Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	UpdatePayment(ctx context.Context, payment *domain.Payment) error
	ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Payment, error)
	ListStaleInitiated(ctx context.Context, method domain.PaymentMethod, before time.Time, limit int) ([]*domain.Payment, error)
	GetTransactionByReference(ctx context.Context, provider domain.Provider, reference string) (*domain.MobileMoneyTransaction, error)
	SaveTransaction(ctx context.Context, txn *domain.MobileMoneyTransaction) error
	ListTransactions(ctx context.Context, paymentID uuid.UUID) ([]*domain.MobileMoneyTransaction, error)
}
