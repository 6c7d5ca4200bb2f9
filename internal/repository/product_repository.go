package repository

import (
	"context"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type productRepository struct {
	tx *sqlx.Tx
}

func (r *productRepository) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `
		SELECT id, name, price, sku, condition, is_active, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	var product domain.Product
	if err := r.tx.GetContext(ctx, &product, query, id); err != nil {
		return nil, storageError("get product", "product", id, err)
	}
	return &product, nil
}

func (r *productRepository) GetInventory(ctx context.Context, productID uuid.UUID) (*domain.Inventory, error) {
	query := `SELECT product_id, quantity, low_stock_threshold FROM inventory WHERE product_id = $1`

	var inventory domain.Inventory
	if err := r.tx.GetContext(ctx, &inventory, query, productID); err != nil {
		return nil, storageError("get inventory", "inventory", productID, err)
	}
	return &inventory, nil
}

// DecrementStock takes the row lock through the UPDATE itself, so concurrent
// checkouts for the last unit cannot both succeed.
func (r *productRepository) DecrementStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	query := `UPDATE inventory SET quantity = quantity - $1 WHERE product_id = $2 AND quantity >= $1`

	result, err := r.tx.ExecContext(ctx, query, quantity, productID)
	if err != nil {
		return storageError("decrement stock", "inventory", productID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageError("decrement stock", "inventory", productID, err)
	}
	if rowsAffected > 0 {
		return nil
	}

	available := 0
	if inventory, err := r.GetInventory(ctx, productID); err == nil {
		available = inventory.Quantity
	}
	return &domain.InsufficientStockError{
		ProductID: productID,
		Requested: quantity,
		Available: available,
	}
}

func (r *productRepository) IncrementStock(ctx context.Context, productID uuid.UUID, quantity int) error {
	query := `UPDATE inventory SET quantity = quantity + $1 WHERE product_id = $2`

	result, err := r.tx.ExecContext(ctx, query, quantity, productID)
	if err != nil {
		return storageError("increment stock", "inventory", productID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageError("increment stock", "inventory", productID, err)
	}
	if rowsAffected == 0 {
		return domain.NotFound("inventory", productID)
	}
	return nil
}
