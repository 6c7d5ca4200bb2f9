package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/anax-commerce/commerce-service/internal/domain"
	sharedHTTP "github.com/anax-commerce/commerce-service/pkg/http"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const SignatureHeader = "X-Signature"

// WebhookGuard authenticates provider callbacks and rate limits them per
// provider.
type WebhookGuard struct {
	secret []byte
	limit  rate.Limit
	burst  int

	mu       sync.Mutex
	limiters map[domain.Provider]*rate.Limiter
}

func NewWebhookGuard(secret []byte, perSecond float64, burst int) *WebhookGuard {
	if burst < 1 {
		burst = 1
	}
	return &WebhookGuard{
		secret:   secret,
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: make(map[domain.Provider]*rate.Limiter),
	}
}

func (g *WebhookGuard) limiter(provider domain.Provider) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	if limiter, exists := g.limiters[provider]; exists {
		return limiter
	}
	limiter := rate.NewLimiter(g.limit, g.burst)
	g.limiters[provider] = limiter
	return limiter
}

// Handler rejects callbacks for unknown providers, over the rate or with a
// bad signature before they reach the payment service.
func (g *WebhookGuard) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		provider, err := domain.ParseProvider(c.Params("provider"))
		if err != nil {
			return respondError(c, err)
		}

		if !g.limiter(provider).Allow() {
			log.Warn().Str("provider", string(provider)).Msg("Webhook rate limit exceeded")
			return sharedHTTP.TooManyRequestsResponse(c, "Too many requests")
		}

		if !VerifySignature(g.secret, c.Body(), c.Get(SignatureHeader)) {
			log.Warn().
				Str("provider", string(provider)).
				Str("request_id", sharedHTTP.RequestID(c)).
				Msg("Webhook signature rejected")
			return sharedHTTP.UnauthorizedResponse(c, "Invalid signature")
		}
		return c.Next()
	}
}

// VerifySignature checks a hex HMAC-SHA256 of body.
func VerifySignature(secret, body []byte, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil || len(got) == 0 {
		return false
	}
	return hmac.Equal(got, bodyMAC(secret, body))
}

func bodyMAC(secret, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return mac.Sum(nil)
}
