package repository

import (
	"context"
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type cartRepository struct {
	tx *sqlx.Tx
}

func (r *cartRepository) GetOrCreate(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.Cart, error) {
	cart := domain.NewCart(userID, now)

	insert := `
		INSERT INTO carts (id, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.tx.ExecContext(ctx, insert, cart.ID, cart.UserID, cart.CreatedAt, cart.UpdatedAt); err != nil {
		return nil, storageError("create cart", "cart", userID, err)
	}

	query := `
		SELECT id, user_id, created_at, updated_at
		FROM carts
		WHERE user_id = $1
		FOR UPDATE
	`
	if err := r.tx.GetContext(ctx, cart, query, userID); err != nil {
		return nil, storageError("get cart", "cart", userID, err)
	}

	items := []domain.CartItem{}
	itemsQuery := `
		SELECT id, cart_id, product_id, quantity, added_at
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY added_at, id
	`
	if err := r.tx.SelectContext(ctx, &items, itemsQuery, cart.ID); err != nil {
		return nil, storageError("list cart items", "cart", cart.ID, err)
	}
	cart.Items = items

	return cart, nil
}

// AddItem merges into an existing line for the same product.
func (r *cartRepository) AddItem(ctx context.Context, cartID, productID uuid.UUID, quantity int, now time.Time) (*domain.CartItem, error) {
	item, err := domain.NewCartItem(cartID, productID, quantity, now)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO cart_items (id, cart_id, product_id, quantity, added_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, cart_id, product_id, quantity, added_at
	`
	if err := r.tx.GetContext(ctx, item, query, item.ID, item.CartID, item.ProductID, item.Quantity, item.AddedAt); err != nil {
		return nil, storageError("add cart item", "cart_item", item.ID, err)
	}

	if err := r.touch(ctx, cartID, now); err != nil {
		return nil, err
	}
	return item, nil
}

func (r *cartRepository) UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, quantity int) (*domain.CartItem, error) {
	query := `
		UPDATE cart_items SET quantity = $3
		WHERE id = $1 AND cart_id = $2
		RETURNING id, cart_id, product_id, quantity, added_at
	`

	var item domain.CartItem
	if err := r.tx.GetContext(ctx, &item, query, itemID, cartID, quantity); err != nil {
		return nil, storageError("update cart item", "cart_item", itemID, err)
	}

	if err := r.touch(ctx, cartID, time.Now()); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *cartRepository) RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	result, err := r.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1 AND cart_id = $2`, itemID, cartID)
	if err != nil {
		return storageError("remove cart item", "cart_item", itemID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageError("remove cart item", "cart_item", itemID, err)
	}
	if rowsAffected == 0 {
		return domain.NotFound("cart_item", itemID)
	}

	return r.touch(ctx, cartID, time.Now())
}

func (r *cartRepository) Clear(ctx context.Context, cartID uuid.UUID) error {
	if _, err := r.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return storageError("clear cart", "cart", cartID, err)
	}
	return r.touch(ctx, cartID, time.Now())
}

func (r *cartRepository) touch(ctx context.Context, cartID uuid.UUID, now time.Time) error {
	if _, err := r.tx.ExecContext(ctx, `UPDATE carts SET updated_at = $2 WHERE id = $1`, cartID, now); err != nil {
		return storageError("touch cart", "cart", cartID, err)
	}
	return nil
}
