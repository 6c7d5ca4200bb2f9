package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ProductCondition string

const (
	ConditionNew         ProductCondition = "new"
	ConditionRefurbished ProductCondition = "refurbished"
	ConditionUsed        ProductCondition = "used"
)

// Product is the catalog view the workflow reads. The catalog owns writes.
type Product struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	Name      string           `json:"name" db:"name"`
	Price     decimal.Decimal  `json:"price" db:"price"`
	SKU       string           `json:"sku" db:"sku"`
	Condition ProductCondition `json:"condition" db:"condition"`
	IsActive  bool             `json:"is_active" db:"is_active"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" db:"updated_at"`
}

type Inventory struct {
	ProductID         uuid.UUID `json:"product_id" db:"product_id"`
	Quantity          int       `json:"quantity" db:"quantity"`
	LowStockThreshold int       `json:"low_stock_threshold" db:"low_stock_threshold"`
}

const DefaultLowStockThreshold = 5

func (i *Inventory) CanFulfil(quantity int) bool {
	return i.Quantity >= quantity
}

func (i *Inventory) IsLowStock() bool {
	return i.Quantity <= i.LowStockThreshold
}
