package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id"`
}

type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func SuccessResponse(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusOK).JSON(APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: RequestID(c),
	})
}

func CreatedResponse(c *fiber.Ctx, message string, data interface{}) error {
	return c.Status(fiber.StatusCreated).JSON(APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: RequestID(c),
	})
}

// ErrorResponse writes a failed envelope with the given status and code.
func ErrorResponse(c *fiber.Ctx, status int, code, message string, details map[string]interface{}) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Message: message,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now(),
		RequestID: RequestID(c),
	})
}

func BadRequestResponse(c *fiber.Ctx, message string, details map[string]interface{}) error {
	return ErrorResponse(c, fiber.StatusBadRequest, "BAD_REQUEST", message, details)
}

func UnauthorizedResponse(c *fiber.Ctx, message string) error {
	return ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func ForbiddenResponse(c *fiber.Ctx, message string) error {
	return ErrorResponse(c, fiber.StatusForbidden, "FORBIDDEN", message, nil)
}

func NotFoundResponse(c *fiber.Ctx, message string, details map[string]interface{}) error {
	return ErrorResponse(c, fiber.StatusNotFound, "NOT_FOUND", message, details)
}

func ConflictResponse(c *fiber.Ctx, code, message string, details map[string]interface{}) error {
	return ErrorResponse(c, fiber.StatusConflict, code, message, details)
}

func UnprocessableResponse(c *fiber.Ctx, code, message string, details map[string]interface{}) error {
	return ErrorResponse(c, fiber.StatusUnprocessableEntity, code, message, details)
}

func TooManyRequestsResponse(c *fiber.Ctx, message string) error {
	return ErrorResponse(c, fiber.StatusTooManyRequests, "TOO_MANY_REQUESTS", message, nil)
}

// RetryLaterResponse hides infrastructure details behind a retryable signal.
func RetryLaterResponse(c *fiber.Ctx) error {
	c.Set(fiber.HeaderRetryAfter, "5")
	return ErrorResponse(c, fiber.StatusServiceUnavailable, "RETRY_LATER",
		"Service temporarily unavailable, please retry later", nil)
}

func RequestID(c *fiber.Ctx) string {
	requestID := c.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
		c.Set("X-Request-ID", requestID)
	}
	return requestID
}
