package handlers

import (
	"context"
	"time"

	"github.com/anax-commerce/commerce-service/internal/service"
	sharedHTTP "github.com/anax-commerce/commerce-service/pkg/http"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Routes struct {
	Cart      *CartHandler
	Order     *OrderHandler
	Payment   *PaymentHandler
	Webhook   *WebhookGuard
	JWTSecret []byte
	Checks    map[string]HealthCheck
}

// Register mounts the API under /api/v1.
func Register(app *fiber.App, r Routes) {
	api := app.Group("/api/v1", correlation)

	api.Get("/health", health(r.Checks))

	api.Post("/webhooks/mobile-money/:provider", r.Webhook.Handler(), r.Payment.Callback)

	auth := Authenticate(r.JWTSecret)

	cart := api.Group("/cart", auth)
	cart.Get("/", r.Cart.GetCart)
	cart.Delete("/", r.Cart.Clear)
	cart.Post("/items", r.Cart.AddItem)
	cart.Put("/items/:id", r.Cart.UpdateItem)
	cart.Delete("/items/:id", r.Cart.RemoveItem)

	orders := api.Group("/orders", auth)
	orders.Post("/", r.Order.PlaceOrder)
	orders.Get("/", r.Order.ListOrders)
	orders.Get("/:id", r.Order.GetOrder)
	orders.Get("/:id/tracking", r.Order.GetTracking)
	orders.Post("/:id/cancel", r.Order.CancelOrder)
	orders.Get("/:id/invoice", r.Order.Invoice)
	orders.Post("/:id/payments", r.Payment.Authorize)
	orders.Get("/:id/payments", r.Payment.ListPayments)

	admin := api.Group("/admin", auth, RequireRole(RoleAdmin))
	admin.Put("/orders/:id/status", r.Order.UpdateStatus)
	admin.Post("/payments/expire-stale", r.Payment.ExpireStale)
	admin.Post("/payments/:id/expire", r.Payment.Expire)
}

// correlation carries a UUID request id into published events.
func correlation(c *fiber.Ctx) error {
	if id, err := uuid.Parse(sharedHTTP.RequestID(c)); err == nil {
		c.SetUserContext(service.WithCorrelationID(c.UserContext(), id))
	}
	return c.Next()
}

func health(checks map[string]HealthCheck) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		status := map[string]interface{}{}
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}

		if !healthy {
			return sharedHTTP.ErrorResponse(c, fiber.StatusServiceUnavailable, "UNHEALTHY", "Service is unhealthy", status)
		}
		return sharedHTTP.SuccessResponse(c, "Service is healthy", status)
	}
}
