package handlers

import (
	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/service"
	sharedHTTP "github.com/anax-commerce/commerce-service/pkg/http"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type CartHandler struct {
	cartService *service.CartService
}

func NewCartHandler(cartService *service.CartService) *CartHandler {
	return &CartHandler{
		cartService: cartService,
	}
}

func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	view, err := h.cartService.GetOrCreateCart(c.UserContext(), currentUser(c))
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Cart retrieved successfully", mapCart(view))
}

func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	var request AddCartItemRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
			"parse_error": err.Error(),
		})
	}
	if request.ProductID == uuid.Nil {
		return respondError(c, domain.Invalid(domain.ErrValidation, "cart_item", "product_id", "product_id is required"))
	}

	view, err := h.cartService.AddItem(c.UserContext(), currentUser(c), request.ProductID, request.Quantity)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.CreatedResponse(c, "Item added to cart", mapCart(view))
}

func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	itemID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var request UpdateCartItemRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
			"parse_error": err.Error(),
		})
	}

	view, err := h.cartService.UpdateItem(c.UserContext(), currentUser(c), itemID, request.Quantity)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Cart item updated", mapCart(view))
}

func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	itemID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	view, err := h.cartService.RemoveItem(c.UserContext(), currentUser(c), itemID)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Cart item removed", mapCart(view))
}

func (h *CartHandler) Clear(c *fiber.Ctx) error {
	view, err := h.cartService.Clear(c.UserContext(), currentUser(c))
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Cart cleared", mapCart(view))
}
