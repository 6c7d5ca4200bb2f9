package handlers

import (
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/service"
	sharedHTTP "github.com/anax-commerce/commerce-service/pkg/http"
	"github.com/gofiber/fiber/v2"
)

type PaymentHandler struct {
	paymentService *service.PaymentService
}

func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
	}
}

func (h *PaymentHandler) Authorize(c *fiber.Ctx) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var request domain.AuthorizeRequest
	if err := c.BodyParser(&request); err != nil {
		return sharedHTTP.BadRequestResponse(c, "Invalid request body", map[string]interface{}{
			"parse_error": err.Error(),
		})
	}

	payment, err := h.paymentService.Authorize(c.UserContext(), currentUser(c), orderID, request)
	if err != nil {
		return respondError(c, err)
	}

	message := "Payment initiated"
	if payment.Status == domain.PaymentStatusFailed {
		message = "Payment declined"
	}
	return sharedHTTP.CreatedResponse(c, message, mapPayment(payment))
}

func (h *PaymentHandler) ListPayments(c *fiber.Ctx) error {
	orderID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	payments, err := h.paymentService.ListPayments(c.UserContext(), currentUser(c), orderID)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Payments retrieved successfully", mapPayments(payments))
}

// Callback receives provider settlement notifications. WebhookGuard has
// already checked the provider and signature.
func (h *PaymentHandler) Callback(c *fiber.Ctx) error {
	var request domain.CallbackRequest
	if err := c.BodyParser(&request); err != nil {
		return respondError(c, domain.Invalid(domain.ErrInvalidCallback, "callback", "body", err.Error()))
	}

	provider := c.Params("provider")
	if request.Provider == "" {
		request.Provider = provider
	}
	if request.Provider != provider {
		return respondError(c, domain.Invalid(domain.ErrInvalidCallback, "callback", "provider",
			"provider does not match the webhook path"))
	}

	result, err := h.paymentService.RecordCallback(c.UserContext(), request)
	if err != nil {
		return respondError(c, err)
	}

	message := "Callback processed"
	if result.LateSettlement {
		message = "Late settlement recorded"
	}
	return sharedHTTP.SuccessResponse(c, message, CallbackResponse{
		Payment:           mapPayment(result.Payment),
		OrderStatus:       string(result.Order.Status),
		Reference:         result.Transaction.Reference,
		TransactionStatus: string(result.Transaction.Status),
		LateSettlement:    result.LateSettlement,
	})
}

func (h *PaymentHandler) Expire(c *fiber.Ctx) error {
	paymentID, err := pathID(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	payment, err := h.paymentService.MarkExpired(c.UserContext(), paymentID)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Payment expired", mapPayment(payment))
}

// ExpireStale sweeps initiated payments. The optional older_than query takes
// a Go duration such as 30m.
func (h *PaymentHandler) ExpireStale(c *fiber.Ctx) error {
	var olderThan time.Duration
	if raw := c.Query("older_than"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			return respondError(c, domain.Invalid(domain.ErrValidation, "query", "older_than",
				"older_than must be a positive duration"))
		}
		olderThan = parsed
	}

	result, err := h.paymentService.ExpireStale(c.UserContext(), olderThan)
	if err != nil {
		return respondError(c, err)
	}
	return sharedHTTP.SuccessResponse(c, "Stale payments processed", result)
}
