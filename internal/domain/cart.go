package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Cart struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	Items     []CartItem `json:"items" db:"-"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

type CartItem struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CartID    uuid.UUID `json:"cart_id" db:"cart_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	AddedAt   time.Time `json:"added_at" db:"added_at"`
}

func NewCart(userID uuid.UUID, now time.Time) *Cart {
	return &Cart{
		ID:        uuid.New(),
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NewCartItem(cartID, productID uuid.UUID, quantity int, now time.Time) (*CartItem, error) {
	if err := ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	return &CartItem{
		ID:        uuid.New(),
		CartID:    cartID,
		ProductID: productID,
		Quantity:  quantity,
		AddedAt:   now,
	}, nil
}

// ValidateQuantity rejects line quantities below one.
func ValidateQuantity(quantity int) error {
	if quantity < 1 {
		return Invalid(ErrInvalidQuantity, "cart_item", "quantity",
			fmt.Sprintf("quantity must be at least 1, got %d", quantity))
	}
	return nil
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) Item(itemID uuid.UUID) (*CartItem, bool) {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return &c.Items[i], true
		}
	}
	return nil, false
}

// CartLine pairs a cart item with the product's current catalog price.
type CartLine struct {
	CartItem
	UnitPrice decimal.Decimal `json:"unit_price"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartView is the priced read model of a cart. Prices are informational only;
// checkout re-reads the catalog.
type CartView struct {
	Cart  *Cart      `json:"cart"`
	Lines []CartLine `json:"lines"`
}

func (v CartView) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range v.Lines {
		total = total.Add(line.Subtotal())
	}
	return total
}
