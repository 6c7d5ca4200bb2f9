package handlers

import (
	"errors"

	"github.com/anax-commerce/commerce-service/internal/domain"
	sharedHTTP "github.com/anax-commerce/commerce-service/pkg/http"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

type detailedError interface {
	Details() map[string]interface{}
}

func errorDetails(err error) map[string]interface{} {
	var detailed detailedError
	if errors.As(err, &detailed) {
		return detailed.Details()
	}
	return nil
}

// respondError maps a service error onto the response envelope. Anything that
// is not a domain failure is reported as retryable without its cause.
func respondError(c *fiber.Ctx, err error) error {
	details := errorDetails(err)

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return sharedHTTP.NotFoundResponse(c, "Resource not found", details)
	case errors.Is(err, domain.ErrValidation):
		return sharedHTTP.BadRequestResponse(c, "Invalid request", details)
	case errors.Is(err, domain.ErrInvalidCallback):
		return sharedHTTP.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_CALLBACK", "Invalid provider callback", details)
	case errors.Is(err, domain.ErrInvalidQuantity):
		return sharedHTTP.UnprocessableResponse(c, "INVALID_QUANTITY", "Quantity must be at least 1", details)
	case errors.Is(err, domain.ErrEmptyCart):
		return sharedHTTP.UnprocessableResponse(c, "EMPTY_CART", "Cart is empty", details)
	case errors.Is(err, domain.ErrAmountMismatch):
		return sharedHTTP.UnprocessableResponse(c, "AMOUNT_MISMATCH", "Amount does not match order total", details)
	case errors.Is(err, domain.ErrInsufficientStock):
		return sharedHTTP.ConflictResponse(c, "INSUFFICIENT_STOCK", "Insufficient stock", details)
	case errors.Is(err, domain.ErrPaymentInProgress):
		return sharedHTTP.ConflictResponse(c, "PAYMENT_IN_PROGRESS", "A payment for this order is already in progress", details)
	case errors.Is(err, domain.ErrInvalidTransition):
		return sharedHTTP.ConflictResponse(c, "INVALID_TRANSITION", "Invalid status transition", details)
	case errors.Is(err, domain.ErrDuplicateCallback):
		return sharedHTTP.SuccessResponse(c, "Callback already processed", details)
	}

	log.Error().Err(err).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Str("request_id", sharedHTTP.RequestID(c)).
		Msg("Request failed")
	return sharedHTTP.RetryLaterResponse(c)
}
