package handlers

import (
	"fmt"
	"strconv"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/service"
	sharedHTTP "github.com/anax-commerce/commerce-service/pkg/http"
	"github.com/gofiber/fiber/v2"
)

type OrderHandler struct {
	orderService *service.OrderService
	tracker      *service.Tracker
}

func NewOrderHandler(orderService *service.OrderService, tracker *service.Tracker) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		tracker:      tracker,
	}
}

// PlaceOrder checks out the caller's cart. The body is optional.
func (h *OrderHandler) PlaceOrder(c *fiber.Ctx) error {
	var request domain.CheckoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&request); err != nil {
			return sharedHTTP.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
				"parse_error": err.Error(),
			})
		}
	}

	order, err := h.orderService.PlaceOrder(c.UserContext(), currentUser(c), request)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.CreatedResponse(c, "Order placed successfully", mapOrder(order))
}

func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	result, err := h.orderService.ListOrders(c.UserContext(), currentUser(c), page, limit)
	if err != nil {
		return respondError(c, err)
	}

	return sharedHTTP.SuccessResponse(c, "Orders retrieved successfully", map[string]interface{}{
		"orders": mapOrders(result.Orders),
		"pagination": map[string]interface{}{
			"page":     result.Page,
			"limit":    result.Limit,
			"total":    result.Total,
			"has_more": result.Page*result.Limit < result.Total,
		},
	})
}

func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	order, err := h.orderService.GetOrder(c.UserContext(), currentUser(c), orderID)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Order retrieved successfully", mapOrder(order))
}

func (h *OrderHandler) GetTracking(c *fiber.Ctx) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	history, err := h.tracker.History(c.UserContext(), currentUser(c), orderID)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Order tracking retrieved successfully", mapTracking(history))
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	order, err := h.orderService.CancelOrder(c.UserContext(), currentUser(c), orderID)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Order cancelled", mapOrder(order))
}

func (h *OrderHandler) Invoice(c *fiber.Ctx) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	order, pdf, err := h.orderService.Invoice(c.UserContext(), currentUser(c), orderID)
	if err != nil {
		return respondError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/pdf")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="invoice-%s.pdf"`, order.OrderNumber))
	return c.Status(fiber.StatusOK).Send(pdf)
}

// UpdateStatus is the admin transition endpoint.
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var request UpdateStatusRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
			"parse_error": err.Error(),
		})
	}

	order, err := h.orderService.UpdateStatus(c.UserContext(), orderID, request.Status)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Order status updated", mapOrder(order))
}
