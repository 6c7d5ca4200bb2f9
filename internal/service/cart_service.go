package service

import (
	"context"
	"errors"
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/lock"
	"github.com/anax-commerce/commerce-service/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type CartService struct {
	store    repository.Store
	locker   lock.Locker
	lockWait time.Duration
	now      func() time.Time
}

func NewCartService(store repository.Store, locker lock.Locker, lockWait time.Duration) *CartService {
	return &CartService{
		store:    store,
		locker:   locker,
		lockWait: lockWait,
		now:      time.Now,
	}
}

func (s *CartService) GetOrCreateCart(ctx context.Context, userID uuid.UUID) (*domain.CartView, error) {
	var view *domain.CartView
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		cart, err := tx.Carts().GetOrCreate(ctx, userID, s.now())
		if err != nil {
			return err
		}
		view, err = priceCart(ctx, tx, cart)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// AddItem adds quantity units of an active product, merging with an existing
// line for the same product.
func (s *CartService) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*domain.CartView, error) {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, func(tx repository.Tx, cart *domain.Cart) error {
		product, err := tx.Products().GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if !product.IsActive {
			return domain.NotFound("product", productID)
		}

		item, err := tx.Carts().AddItem(ctx, cart.ID, productID, quantity, s.now())
		if err != nil {
			return err
		}
		log.Debug().
			Str("user_id", userID.String()).
			Str("product_id", productID.String()).
			Int("quantity", item.Quantity).
			Msg("Cart item added")
		return nil
	})
}

// UpdateItem replaces the quantity of a line in the caller's cart.
func (s *CartService) UpdateItem(ctx context.Context, userID, itemID uuid.UUID, quantity int) (*domain.CartView, error) {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	return s.mutate(ctx, userID, func(tx repository.Tx, cart *domain.Cart) error {
		if _, ok := cart.Item(itemID); !ok {
			return domain.NotFound("cart_item", itemID)
		}
		_, err := tx.Carts().UpdateItemQuantity(ctx, cart.ID, itemID, quantity)
		return err
	})
}

func (s *CartService) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (*domain.CartView, error) {
	return s.mutate(ctx, userID, func(tx repository.Tx, cart *domain.Cart) error {
		if _, ok := cart.Item(itemID); !ok {
			return domain.NotFound("cart_item", itemID)
		}
		return tx.Carts().RemoveItem(ctx, cart.ID, itemID)
	})
}

func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) (*domain.CartView, error) {
	return s.mutate(ctx, userID, func(tx repository.Tx, cart *domain.Cart) error {
		return tx.Carts().Clear(ctx, cart.ID)
	})
}

// mutate serializes changes to one user's cart and returns the priced cart
// as committed.
func (s *CartService) mutate(ctx context.Context, userID uuid.UUID, fn func(tx repository.Tx, cart *domain.Cart) error) (*domain.CartView, error) {
	var view *domain.CartView
	err := withLock(ctx, s.locker, s.lockWait, lock.CartKey(userID), func() error {
		return s.store.WithTx(ctx, func(tx repository.Tx) error {
			cart, err := tx.Carts().GetOrCreate(ctx, userID, s.now())
			if err != nil {
				return err
			}
			if err := fn(tx, cart); err != nil {
				return err
			}

			cart, err = tx.Carts().GetOrCreate(ctx, userID, s.now())
			if err != nil {
				return err
			}
			view, err = priceCart(ctx, tx, cart)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// priceCart attaches current catalog prices. Lines whose product has left the
// catalog are shown at zero and rejected at checkout.
func priceCart(ctx context.Context, tx repository.Tx, cart *domain.Cart) (*domain.CartView, error) {
	view := &domain.CartView{Cart: cart, Lines: make([]domain.CartLine, 0, len(cart.Items))}
	for _, item := range cart.Items {
		line := domain.CartLine{CartItem: item}
		product, err := tx.Products().GetProduct(ctx, item.ProductID)
		switch {
		case err == nil:
			line.UnitPrice = product.Price
		case errors.Is(err, domain.ErrNotFound):
		default:
			return nil, err
		}
		view.Lines = append(view.Lines, line)
	}
	return view, nil
}
