package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type PaymentMethod string

const (
	PaymentMethodMobileMoney    PaymentMethod = "mobile_money"
	PaymentMethodCard           PaymentMethod = "card"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch method := PaymentMethod(s); method {
	case PaymentMethodMobileMoney, PaymentMethodCard, PaymentMethodCashOnDelivery:
		return method, nil
	}
	return "", Invalid(ErrValidation, "payment", "payment_method", fmt.Sprintf("unsupported method %q", s))
}

type Provider string

const (
	ProviderMTN    Provider = "mtn"
	ProviderAirtel Provider = "airtel"
)

func ParseProvider(s string) (Provider, error) {
	switch provider := Provider(s); provider {
	case ProviderMTN, ProviderAirtel:
		return provider, nil
	}
	return "", Invalid(ErrInvalidCallback, "mobile_money_transaction", "provider", fmt.Sprintf("unknown provider %q", s))
}

type TransactionStatus string

const (
	TransactionStatusPending TransactionStatus = "pending"
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
)

func ParseTransactionStatus(s string) (TransactionStatus, error) {
	switch status := TransactionStatus(s); status {
	case TransactionStatusPending, TransactionStatusSuccess, TransactionStatusFailed:
		return status, nil
	}
	return "", Invalid(ErrInvalidCallback, "mobile_money_transaction", "status", fmt.Sprintf("unknown status %q", s))
}

func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionStatusSuccess || s == TransactionStatusFailed
}

type Payment struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	OrderID       uuid.UUID       `json:"order_id" db:"order_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Method        PaymentMethod   `json:"payment_method" db:"payment_method"`
	TransactionID string          `json:"transaction_id" db:"transaction_id"`
	Status        PaymentStatus   `json:"status" db:"status"`
	Verified      bool            `json:"verified" db:"verified"`
	FailureReason string          `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

func NewPayment(orderID uuid.UUID, amount decimal.Decimal, method PaymentMethod, now time.Time) *Payment {
	id := uuid.New()
	return &Payment{
		ID:            id,
		OrderID:       orderID,
		Amount:        amount,
		Method:        method,
		TransactionID: "TXN-" + id.String(),
		Status:        PaymentStatusInitiated,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsActive reports whether the payment blocks another authorization.
func (p *Payment) IsActive() bool {
	return p.Status == PaymentStatusInitiated || p.Status == PaymentStatusCompleted
}

func (p *Payment) Complete(now time.Time) error {
	if p.Status != PaymentStatusInitiated {
		return InvalidTransition("payment", p.ID, string(p.Status), string(PaymentStatusCompleted))
	}
	p.Status = PaymentStatusCompleted
	p.Verified = true
	p.UpdatedAt = now
	return nil
}

func (p *Payment) Fail(reason string, now time.Time) error {
	if p.Status != PaymentStatusInitiated {
		return InvalidTransition("payment", p.ID, string(p.Status), string(PaymentStatusFailed))
	}
	p.Status = PaymentStatusFailed
	p.FailureReason = reason
	p.UpdatedAt = now
	return nil
}

type MobileMoneyTransaction struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	PaymentID   uuid.UUID         `json:"payment_id" db:"payment_id"`
	Provider    Provider          `json:"provider" db:"provider"`
	PhoneNumber string            `json:"phone_number" db:"phone_number"`
	Reference   string            `json:"transaction_reference" db:"transaction_reference"`
	Status      TransactionStatus `json:"status" db:"status"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}

func NewMobileMoneyTransaction(paymentID uuid.UUID, provider Provider, phone, reference string, now time.Time) *MobileMoneyTransaction {
	return &MobileMoneyTransaction{
		ID:          uuid.New(),
		PaymentID:   paymentID,
		Provider:    provider,
		PhoneNumber: phone,
		Reference:   reference,
		Status:      TransactionStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

type AuthorizeRequest struct {
	Method      string          `json:"payment_method"`
	Amount      decimal.Decimal `json:"amount"`
	Provider    string          `json:"provider,omitempty"`
	PhoneNumber string          `json:"phone_number,omitempty"`
}

// CallbackRequest is the provider webhook payload. It is untrusted input.
type CallbackRequest struct {
	PaymentID   uuid.UUID `json:"payment_id"`
	Provider    string    `json:"provider"`
	Reference   string    `json:"transaction_reference"`
	Status      string    `json:"status"`
	PhoneNumber string    `json:"phone_number,omitempty"`
}

func (r CallbackRequest) Validate() (Provider, TransactionStatus, error) {
	provider, err := ParseProvider(r.Provider)
	if err != nil {
		return "", "", err
	}
	status, err := ParseTransactionStatus(r.Status)
	if err != nil {
		return "", "", err
	}
	if r.PaymentID == uuid.Nil {
		return "", "", Invalid(ErrInvalidCallback, "payment", "payment_id", "payment_id is required")
	}
	if r.Reference == "" || len(r.Reference) > 100 {
		return "", "", Invalid(ErrInvalidCallback, "mobile_money_transaction", "transaction_reference",
			"reference must be 1-100 characters")
	}
	if len(r.PhoneNumber) > 15 {
		return "", "", Invalid(ErrInvalidCallback, "mobile_money_transaction", "phone_number",
			"phone number must be at most 15 characters")
	}
	return provider, status, nil
}
