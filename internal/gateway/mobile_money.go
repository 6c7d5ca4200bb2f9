package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// MobileMoneyGateway is the provider API that starts a collection from a
// customer's wallet. Settlement arrives later through the webhook.
type MobileMoneyGateway interface {
	RequestCollection(ctx context.Context, request CollectionRequest) (*CollectionResponse, error)
	CollectionStatus(ctx context.Context, provider domain.Provider, reference string) (*CollectionStatusResponse, error)
}

type CollectionRequest struct {
	PaymentID     uuid.UUID       `json:"payment_id"`
	TransactionID string          `json:"transaction_id"`
	Provider      domain.Provider `json:"provider"`
	PhoneNumber   string          `json:"phone_number"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
}

type CollectionResponse struct {
	Accepted      bool                     `json:"accepted"`
	Reference     string                   `json:"reference"`
	Status        domain.TransactionStatus `json:"status"`
	RequestedAt   time.Time                `json:"requested_at"`
	FailureReason string                   `json:"failure_reason,omitempty"`
}

type CollectionStatusResponse struct {
	Reference string                   `json:"reference"`
	Status    domain.TransactionStatus `json:"status"`
	Amount    decimal.Decimal          `json:"amount"`
	CheckedAt time.Time                `json:"checked_at"`
}

// SandboxGateway simulates MTN and Airtel collections for development.
type SandboxGateway struct {
	FailureRate float64 // share of requests declined, 0.0 - 1.0
	Latency     time.Duration

	mu          sync.Mutex
	rnd         *rand.Rand
	collections map[string]*CollectionStatusResponse
}

func NewSandboxGateway(failureRate float64, latency time.Duration) *SandboxGateway {
	return &SandboxGateway{
		FailureRate: failureRate,
		Latency:     latency,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
		collections: make(map[string]*CollectionStatusResponse),
	}
}

func (g *SandboxGateway) RequestCollection(ctx context.Context, request CollectionRequest) (*CollectionResponse, error) {
	log.Debug().
		Str("provider", string(request.Provider)).
		Str("transaction_id", request.TransactionID).
		Str("amount", request.Amount.StringFixed(2)).
		Msg("Sandbox gateway: requesting collection")

	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	if request.PhoneNumber == "" {
		return &CollectionResponse{
			Accepted:      false,
			Status:        domain.TransactionStatusFailed,
			RequestedAt:   time.Now(),
			FailureReason: "phone number is required",
		}, nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rnd.Float64() < g.FailureRate {
		return &CollectionResponse{
			Accepted:      false,
			Status:        domain.TransactionStatusFailed,
			RequestedAt:   time.Now(),
			FailureReason: "Subscriber declined",
		}, nil
	}

	reference := fmt.Sprintf("%s-%s", strings.ToUpper(string(request.Provider)), uuid.New().String()[:8])
	g.collections[collectionKey(request.Provider, reference)] = &CollectionStatusResponse{
		Reference: reference,
		Status:    domain.TransactionStatusPending,
		Amount:    request.Amount,
		CheckedAt: time.Now(),
	}

	return &CollectionResponse{
		Accepted:    true,
		Reference:   reference,
		Status:      domain.TransactionStatusPending,
		RequestedAt: time.Now(),
	}, nil
}

func (g *SandboxGateway) CollectionStatus(ctx context.Context, provider domain.Provider, reference string) (*CollectionStatusResponse, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	collection, ok := g.collections[collectionKey(provider, reference)]
	if !ok {
		return nil, domain.NotFound("collection", reference)
	}
	status := *collection
	status.CheckedAt = time.Now()
	return &status, nil
}

// Settle sets the outcome the sandbox reports for a collection.
func (g *SandboxGateway) Settle(provider domain.Provider, reference string, status domain.TransactionStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	collection, ok := g.collections[collectionKey(provider, reference)]
	if !ok {
		return domain.NotFound("collection", reference)
	}
	collection.Status = status
	return nil
}

func (g *SandboxGateway) wait(ctx context.Context) error {
	if g.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(g.Latency):
		return nil
	case <-ctx.Done():
		return domain.Unavailable("mobile money gateway", ctx.Err())
	}
}

func collectionKey(provider domain.Provider, reference string) string {
	return string(provider) + ":" + reference
}
