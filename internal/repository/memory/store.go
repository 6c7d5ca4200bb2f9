// Package memory is a transactional in-process Store. Transactions are
// serialized and run against a copy of the state that replaces the committed
// state only when the unit of work succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type state struct {
	products     map[uuid.UUID]domain.Product
	inventory    map[uuid.UUID]domain.Inventory
	carts        map[uuid.UUID]domain.Cart // keyed by user
	orders       map[uuid.UUID]domain.Order
	tracking     map[uuid.UUID][]domain.OrderTracking
	payments     map[uuid.UUID]domain.Payment
	transactions map[uuid.UUID]domain.MobileMoneyTransaction
}

func newState() *state {
	return &state{
		products:     map[uuid.UUID]domain.Product{},
		inventory:    map[uuid.UUID]domain.Inventory{},
		carts:        map[uuid.UUID]domain.Cart{},
		orders:       map[uuid.UUID]domain.Order{},
		tracking:     map[uuid.UUID][]domain.OrderTracking{},
		payments:     map[uuid.UUID]domain.Payment{},
		transactions: map[uuid.UUID]domain.MobileMoneyTransaction{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.inventory {
		c.inventory[k] = v
	}
	for k, v := range s.carts {
		v.Items = append([]domain.CartItem(nil), v.Items...)
		c.carts[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]domain.OrderItem(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.tracking {
		c.tracking[k] = append([]domain.OrderTracking(nil), v...)
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	return c
}

type Store struct {
	mu       sync.Mutex
	state    *state
	failures map[string]error
}

func NewStore() *Store {
	return &Store{
		state:    newState(),
		failures: map[string]error{},
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return domain.Unavailable("begin transaction", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{state: s.state.clone(), failures: s.failures}
	if err := fn(t); err != nil {
		return err
	}
	s.state = t.state
	return nil
}

// FailOn makes the named repository operation return err until cleared with a
// nil err. Used to exercise rollback paths.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// PutProduct seeds a catalog product with its stock level.
func (s *Store) PutProduct(product domain.Product, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.products[product.ID] = product
	s.state.inventory[product.ID] = domain.Inventory{
		ProductID:         product.ID,
		Quantity:          quantity,
		LowStockThreshold: domain.DefaultLowStockThreshold,
	}
}

func (s *Store) SetPrice(productID uuid.UUID, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product := s.state.products[productID]
	product.Price = price
	s.state.products[productID] = product
}

func (s *Store) SetActive(productID uuid.UUID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product := s.state.products[productID]
	product.IsActive = active
	s.state.products[productID] = product
}

func (s *Store) Stock(productID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.inventory[productID].Quantity
}

func (s *Store) CountOrders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.orders)
}

func (s *Store) CountPayments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.payments)
}

// BackdatePayment moves a payment's creation time, for expiry tests.
func (s *Store) BackdatePayment(paymentID uuid.UUID, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment, ok := s.state.payments[paymentID]
	if !ok {
		return
	}
	payment.CreatedAt = createdAt
	s.state.payments[paymentID] = payment
}

type tx struct {
	state    *state
	failures map[string]error
}

func (t *tx) Products() repository.ProductRepository { return &products{t} }
func (t *tx) Carts() repository.CartRepository       { return &carts{t} }
func (t *tx) Orders() repository.OrderRepository     { return &orders{t} }
func (t *tx) Payments() repository.PaymentRepository { return &payments{t} }

func (t *tx) fail(op string) error {
	return t.failures[op]
}

type products struct{ *tx }

func (r *products) GetProduct(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	if err := r.fail("GetProduct"); err != nil {
		return nil, err
	}
	product, ok := r.state.products[id]
	if !ok {
		return nil, domain.NotFound("product", id)
	}
	return &product, nil
}

func (r *products) GetInventory(_ context.Context, productID uuid.UUID) (*domain.Inventory, error) {
	inventory, ok := r.state.inventory[productID]
	if !ok {
		return nil, domain.NotFound("inventory", productID)
	}
	return &inventory, nil
}

func (r *products) DecrementStock(_ context.Context, productID uuid.UUID, quantity int) error {
	if err := r.fail("DecrementStock"); err != nil {
		return err
	}
	inventory, ok := r.state.inventory[productID]
	if !ok || !inventory.CanFulfil(quantity) {
		return &domain.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: inventory.Quantity,
		}
	}
	inventory.Quantity -= quantity
	r.state.inventory[productID] = inventory
	return nil
}

func (r *products) IncrementStock(_ context.Context, productID uuid.UUID, quantity int) error {
	inventory, ok := r.state.inventory[productID]
	if !ok {
		return domain.NotFound("inventory", productID)
	}
	inventory.Quantity += quantity
	r.state.inventory[productID] = inventory
	return nil
}

type carts struct{ *tx }

func (r *carts) GetOrCreate(_ context.Context, userID uuid.UUID, now time.Time) (*domain.Cart, error) {
	if err := r.fail("GetOrCreateCart"); err != nil {
		return nil, err
	}
	cart, ok := r.state.carts[userID]
	if !ok {
		cart = *domain.NewCart(userID, now)
		cart.Items = []domain.CartItem{}
		r.state.carts[userID] = cart
	}
	cart.Items = append([]domain.CartItem{}, cart.Items...)
	return &cart, nil
}

func (r *carts) byID(cartID uuid.UUID) (domain.Cart, bool) {
	for _, cart := range r.state.carts {
		if cart.ID == cartID {
			return cart, true
		}
	}
	return domain.Cart{}, false
}

func (r *carts) AddItem(_ context.Context, cartID, productID uuid.UUID, quantity int, now time.Time) (*domain.CartItem, error) {
	cart, ok := r.byID(cartID)
	if !ok {
		return nil, domain.NotFound("cart", cartID)
	}
	if _, ok := r.state.products[productID]; !ok {
		return nil, domain.NotFound("product", productID)
	}

	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			if err := domain.ValidateQuantity(quantity); err != nil {
				return nil, err
			}
			cart.Items[i].Quantity += quantity
			item := cart.Items[i]
			cart.UpdatedAt = now
			r.state.carts[cart.UserID] = cart
			return &item, nil
		}
	}

	item, err := domain.NewCartItem(cartID, productID, quantity, now)
	if err != nil {
		return nil, err
	}
	cart.Items = append(cart.Items, *item)
	cart.UpdatedAt = now
	r.state.carts[cart.UserID] = cart
	return item, nil
}

func (r *carts) UpdateItemQuantity(_ context.Context, cartID, itemID uuid.UUID, quantity int) (*domain.CartItem, error) {
	cart, ok := r.byID(cartID)
	if !ok {
		return nil, domain.NotFound("cart_item", itemID)
	}
	item, ok := cart.Item(itemID)
	if !ok {
		return nil, domain.NotFound("cart_item", itemID)
	}
	item.Quantity = quantity
	updated := *item
	cart.UpdatedAt = time.Now()
	r.state.carts[cart.UserID] = cart
	return &updated, nil
}

func (r *carts) RemoveItem(_ context.Context, cartID, itemID uuid.UUID) error {
	cart, ok := r.byID(cartID)
	if !ok {
		return domain.NotFound("cart_item", itemID)
	}
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			cart.UpdatedAt = time.Now()
			r.state.carts[cart.UserID] = cart
			return nil
		}
	}
	return domain.NotFound("cart_item", itemID)
}

func (r *carts) Clear(_ context.Context, cartID uuid.UUID) error {
	if err := r.fail("ClearCart"); err != nil {
		return err
	}
	cart, ok := r.byID(cartID)
	if !ok {
		return nil
	}
	cart.Items = []domain.CartItem{}
	cart.UpdatedAt = time.Now()
	r.state.carts[cart.UserID] = cart
	return nil
}

type orders struct{ *tx }

func (r *orders) CreateOrder(_ context.Context, order *domain.Order) error {
	if err := r.fail("CreateOrder"); err != nil {
		return err
	}
	for _, existing := range r.state.orders {
		if existing.OrderNumber == order.OrderNumber {
			return domain.Invalid(domain.ErrValidation, "order", "order_number", "order number already taken")
		}
	}
	stored := *order
	stored.Items = append([]domain.OrderItem(nil), order.Items...)
	r.state.orders[order.ID] = stored
	return nil
}

func (r *orders) OrderNumberExists(_ context.Context, orderNumber string) (bool, error) {
	for _, order := range r.state.orders {
		if order.OrderNumber == orderNumber {
			return true, nil
		}
	}
	return false, nil
}

func (r *orders) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	order, ok := r.state.orders[id]
	if !ok {
		return nil, domain.NotFound("order", id)
	}
	order.Items = append([]domain.OrderItem{}, order.Items...)
	return &order, nil
}

func (r *orders) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.GetOrder(ctx, id)
}

func (r *orders) ListOrdersByCustomer(_ context.Context, customerID uuid.UUID, limit, offset int) ([]*domain.Order, int, error) {
	var matched []*domain.Order
	for _, order := range r.state.orders {
		if order.CustomerID == customerID {
			order := order
			order.Items = append([]domain.OrderItem{}, order.Items...)
			matched = append(matched, &order)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return []*domain.Order{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *orders) UpdateOrderStatus(_ context.Context, order *domain.Order) error {
	if err := r.fail("UpdateOrderStatus"); err != nil {
		return err
	}
	stored, ok := r.state.orders[order.ID]
	if !ok {
		return domain.NotFound("order", order.ID)
	}
	stored.Status = order.Status
	stored.PaymentStatus = order.PaymentStatus
	stored.UpdatedAt = order.UpdatedAt
	r.state.orders[order.ID] = stored
	return nil
}

func (r *orders) AppendTracking(_ context.Context, event *domain.OrderTracking) error {
	if err := r.fail("AppendTracking"); err != nil {
		return err
	}
	if _, ok := r.state.orders[event.OrderID]; !ok {
		return domain.NotFound("order", event.OrderID)
	}
	r.state.tracking[event.OrderID] = append(r.state.tracking[event.OrderID], *event)
	return nil
}

func (r *orders) ListTracking(_ context.Context, orderID uuid.UUID) ([]domain.OrderTracking, error) {
	history := append([]domain.OrderTracking{}, r.state.tracking[orderID]...)
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].Timestamp.Before(history[j].Timestamp)
	})
	return history, nil
}

type payments struct{ *tx }

func (r *payments) activeConflict(payment *domain.Payment) bool {
	if !payment.IsActive() {
		return false
	}
	for _, existing := range r.state.payments {
		if existing.ID != payment.ID && existing.OrderID == payment.OrderID && existing.IsActive() {
			return true
		}
	}
	return false
}

func (r *payments) CreatePayment(_ context.Context, payment *domain.Payment) error {
	if err := r.fail("CreatePayment"); err != nil {
		return err
	}
	if _, ok := r.state.orders[payment.OrderID]; !ok {
		return domain.NotFound("order", payment.OrderID)
	}
	if r.activeConflict(payment) {
		return domain.Invalid(domain.ErrPaymentInProgress, "order", "payment", "order already has an active payment")
	}
	r.state.payments[payment.ID] = *payment
	return nil
}

func (r *payments) GetPayment(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	payment, ok := r.state.payments[id]
	if !ok {
		return nil, domain.NotFound("payment", id)
	}
	return &payment, nil
}

func (r *payments) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return r.GetPayment(ctx, id)
}

func (r *payments) UpdatePayment(_ context.Context, payment *domain.Payment) error {
	if err := r.fail("UpdatePayment"); err != nil {
		return err
	}
	if _, ok := r.state.payments[payment.ID]; !ok {
		return domain.NotFound("payment", payment.ID)
	}
	if r.activeConflict(payment) {
		return domain.Invalid(domain.ErrPaymentInProgress, "order", "payment", "order already has an active payment")
	}
	r.state.payments[payment.ID] = *payment
	return nil
}

func (r *payments) ListPaymentsByOrder(_ context.Context, orderID uuid.UUID) ([]*domain.Payment, error) {
	result := []*domain.Payment{}
	for _, payment := range r.state.payments {
		if payment.OrderID == orderID {
			payment := payment
			result = append(result, &payment)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *payments) ListStaleInitiated(_ context.Context, method domain.PaymentMethod, before time.Time, limit int) ([]*domain.Payment, error) {
	result := []*domain.Payment{}
	for _, payment := range r.state.payments {
		if payment.Status == domain.PaymentStatusInitiated && payment.Method == method && payment.CreatedAt.Before(before) {
			payment := payment
			result = append(result, &payment)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *payments) GetTransactionByReference(_ context.Context, provider domain.Provider, reference string) (*domain.MobileMoneyTransaction, error) {
	for _, txn := range r.state.transactions {
		if txn.Provider == provider && txn.Reference == reference {
			return &txn, nil
		}
	}
	return nil, domain.NotFound("mobile_money_transaction", reference)
}

func (r *payments) SaveTransaction(_ context.Context, txn *domain.MobileMoneyTransaction) error {
	if err := r.fail("SaveTransaction"); err != nil {
		return err
	}
	for id, existing := range r.state.transactions {
		if existing.Provider != txn.Provider || existing.Reference != txn.Reference {
			continue
		}
		if existing.PaymentID != txn.PaymentID {
			return domain.Invalid(domain.ErrInvalidCallback, "mobile_money_transaction", "transaction_reference",
				"reference belongs to another payment")
		}
		existing.Status = txn.Status
		existing.PhoneNumber = txn.PhoneNumber
		existing.UpdatedAt = txn.UpdatedAt
		r.state.transactions[id] = existing
		return nil
	}
	r.state.transactions[txn.ID] = *txn
	return nil
}

func (r *payments) ListTransactions(_ context.Context, paymentID uuid.UUID) ([]*domain.MobileMoneyTransaction, error) {
	result := []*domain.MobileMoneyTransaction{}
	for _, txn := range r.state.transactions {
		if txn.PaymentID == paymentID {
			txn := txn
			result = append(result, &txn)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
