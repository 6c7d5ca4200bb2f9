package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/events"
	"github.com/anax-commerce/commerce-service/internal/gateway"
	"github.com/anax-commerce/commerce-service/internal/lock"
	"github.com/anax-commerce/commerce-service/internal/metrics"
	"github.com/anax-commerce/commerce-service/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	defaultPaymentTimeout = 15 * time.Minute
	defaultExpireBatch    = 100

	reasonExpired     = "expired"
	reasonDeclined    = "declined by provider"
	reasonGatewayDown = "gateway unavailable"
)

type PaymentConfig struct {
	Timeout     time.Duration
	Currency    string
	LockWait    time.Duration
	ExpireBatch int
}

type PaymentService struct {
	store     repository.Store
	locker    lock.Locker
	tracker   *Tracker
	gateway   gateway.MobileMoneyGateway
	publisher EventPublisher
	metrics   *metrics.Metrics
	config    PaymentConfig
	now       func() time.Time
}

func NewPaymentService(
	store repository.Store,
	locker lock.Locker,
	tracker *Tracker,
	gw gateway.MobileMoneyGateway,
	publisher EventPublisher,
	m *metrics.Metrics,
	config PaymentConfig,
) *PaymentService {
	if publisher == nil {
		publisher = discardPublisher{}
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultPaymentTimeout
	}
	if config.ExpireBatch <= 0 {
		config.ExpireBatch = defaultExpireBatch
	}
	return &PaymentService{
		store:     store,
		locker:    locker,
		tracker:   tracker,
		gateway:   gw,
		publisher: publisher,
		metrics:   m,
		config:    config,
		now:       time.Now,
	}
}

// CallbackResult is the state after a provider callback was applied.
// LateSettlement marks a provider success that arrived after the payment was
// already closed; the money has moved but the order was left untouched.
type CallbackResult struct {
	Payment        *domain.Payment
	Order          *domain.Order
	Transaction    *domain.MobileMoneyTransaction
	LateSettlement bool

	closed bool
}

type ExpireResult struct {
	Expired int `json:"expired"`
	Settled int `json:"settled"`
	Failed  int `json:"failed"`
}

// Authorize creates an initiated payment for the exact order total. Mobile
// money payments also start a collection with the provider.
func (s *PaymentService) Authorize(ctx context.Context, userID, orderID uuid.UUID, request domain.AuthorizeRequest) (*domain.Payment, error) {
	method, err := domain.ParsePaymentMethod(request.Method)
	if err != nil {
		return nil, err
	}

	var provider domain.Provider
	if method == domain.PaymentMethodMobileMoney {
		if provider, err = domain.ParseProvider(request.Provider); err != nil {
			return nil, domain.Invalid(domain.ErrValidation, "payment", "provider",
				fmt.Sprintf("unsupported provider %q", request.Provider))
		}
		if request.PhoneNumber == "" || len(request.PhoneNumber) > 15 {
			return nil, domain.Invalid(domain.ErrValidation, "payment", "phone_number", "phone number must be 1-15 characters")
		}
	}

	var (
		order   *domain.Order
		payment *domain.Payment
	)
	err = withLock(ctx, s.locker, s.config.LockWait, lock.OrderKey(orderID), func() error {
		err := s.store.WithTx(ctx, func(tx repository.Tx) error {
			var err error
			order, err = ownedOrder(ctx, tx, userID, orderID, true)
			if err != nil {
				return err
			}
			if err := order.CanAcceptPayment(); err != nil {
				return err
			}
			if total := order.Total(); !request.Amount.Equal(total) {
				return &domain.Error{
					Kind:   domain.ErrAmountMismatch,
					Entity: "order",
					ID:     orderID.String(),
					Field:  "amount",
					Reason: fmt.Sprintf("expected %s, got %s", total.StringFixed(2), request.Amount.StringFixed(2)),
				}
			}

			existing, err := tx.Payments().ListPaymentsByOrder(ctx, orderID)
			if err != nil {
				return err
			}
			for _, p := range existing {
				if p.IsActive() {
					return domain.Invalid(domain.ErrPaymentInProgress, "order", "payment",
						fmt.Sprintf("payment %s is %s", p.ID, p.Status))
				}
			}

			payment = domain.NewPayment(orderID, order.Total(), method, s.now())
			return tx.Payments().CreatePayment(ctx, payment)
		})
		if err != nil {
			return err
		}

		s.metrics.PaymentStatus(string(payment.Method), string(payment.Status))
		log.Info().
			Str("payment_id", payment.ID.String()).
			Str("order_id", orderID.String()).
			Str("method", string(method)).
			Str("amount", payment.Amount.StringFixed(2)).
			Msg("Payment initiated")

		if method == domain.PaymentMethodMobileMoney {
			payment, err = s.startCollection(ctx, order, payment, provider, request.PhoneNumber)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *PaymentService) startCollection(ctx context.Context, order *domain.Order, payment *domain.Payment, provider domain.Provider, phone string) (*domain.Payment, error) {
	started := time.Now()
	response, err := s.gateway.RequestCollection(ctx, gateway.CollectionRequest{
		PaymentID:     payment.ID,
		TransactionID: payment.TransactionID,
		Provider:      provider,
		PhoneNumber:   phone,
		Amount:        payment.Amount,
		Currency:      s.config.Currency,
	})
	if err != nil {
		s.metrics.ObserveGateway(string(provider), "error", started)
		log.Error().Err(err).Str("payment_id", payment.ID.String()).Msg("Collection request error")
		if _, failErr := s.failPayment(ctx, order, payment.ID, reasonGatewayDown); failErr != nil {
			log.Error().Err(failErr).Str("payment_id", payment.ID.String()).Msg("Payment fail error")
		}
		return nil, domain.Unavailable("request collection", err)
	}

	if !response.Accepted {
		s.metrics.ObserveGateway(string(provider), "declined", started)
		reason := response.FailureReason
		if reason == "" {
			reason = reasonDeclined
		}
		return s.failPayment(ctx, order, payment.ID, reason)
	}
	s.metrics.ObserveGateway(string(provider), "accepted", started)

	txn := domain.NewMobileMoneyTransaction(payment.ID, provider, phone, response.Reference, s.now())
	err = s.store.WithTx(ctx, func(tx repository.Tx) error {
		return tx.Payments().SaveTransaction(ctx, txn)
	})
	if err != nil {
		// The provider callback carries the payment id and recreates the record.
		log.Error().Err(err).
			Str("payment_id", payment.ID.String()).
			Str("reference", response.Reference).
			Msg("Collection reference store error")
	}

	log.Info().
		Str("payment_id", payment.ID.String()).
		Str("provider", string(provider)).
		Str("reference", response.Reference).
		Msg("Collection requested")
	return payment, nil
}

func (s *PaymentService) failPayment(ctx context.Context, order *domain.Order, paymentID uuid.UUID, reason string) (*domain.Payment, error) {
	var payment *domain.Payment
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		payment, err = tx.Payments().GetPaymentForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status != domain.PaymentStatusInitiated {
			return nil
		}
		if err := payment.Fail(reason, s.now()); err != nil {
			return err
		}
		return tx.Payments().UpdatePayment(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentStatus(string(payment.Method), string(payment.Status))
	log.Warn().Str("payment_id", paymentID.String()).Str("reason", reason).Msg("Payment failed")
	publish(ctx, s.publisher, events.PaymentFailedEvent, order, paymentPayload(payment))
	return payment, nil
}

// RecordCallback applies a provider settlement notification. Replays of an
// applied reference report domain.ErrDuplicateCallback and change nothing.
// Outcomes for an expired or cancelled payment are recorded on the
// transaction only, and a success is raised as a late settlement.
func (s *PaymentService) RecordCallback(ctx context.Context, request domain.CallbackRequest) (*CallbackResult, error) {
	provider, status, err := request.Validate()
	if err != nil {
		return nil, err
	}

	orderID, err := s.paymentOrderID(ctx, request.PaymentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Invalid(domain.ErrInvalidCallback, "payment", "payment_id", "unknown payment")
		}
		return nil, err
	}

	result := &CallbackResult{}
	err = withLock(ctx, s.locker, s.config.LockWait, lock.OrderKey(orderID), func() error {
		return s.store.WithTx(ctx, func(tx repository.Tx) error {
			return s.applyCallback(ctx, tx, request, provider, status, result)
		})
	})

	logger := log.With().
		Str("payment_id", request.PaymentID.String()).
		Str("provider", string(provider)).
		Str("reference", request.Reference).
		Str("status", string(status)).
		Logger()

	if err != nil {
		if errors.Is(err, domain.ErrDuplicateCallback) {
			s.metrics.DuplicateCallback()
			logger.Info().Msg("Duplicate callback ignored")
		} else {
			logger.Warn().Err(err).Msg("Callback rejected")
		}
		return nil, err
	}

	if result.LateSettlement {
		s.metrics.LateSettlement()
		logger.Error().
			Str("order_id", result.Order.ID.String()).
			Str("payment_status", string(result.Payment.Status)).
			Msg("Provider settled a closed payment, refund required")
		publish(ctx, s.publisher, events.PaymentLateSettlementEvent, result.Order, paymentPayload(result.Payment))
		return result, nil
	}
	if result.closed {
		logger.Info().Str("payment_status", string(result.Payment.Status)).Msg("Provider outcome recorded on closed payment")
		return result, nil
	}

	logger.Info().Msg("Callback applied")

	switch status {
	case domain.TransactionStatusSuccess:
		s.metrics.PaymentStatus(string(result.Payment.Method), string(result.Payment.Status))
		publish(ctx, s.publisher, events.PaymentCompletedEvent, result.Order, paymentPayload(result.Payment))
	case domain.TransactionStatusFailed:
		s.metrics.PaymentStatus(string(result.Payment.Method), string(result.Payment.Status))
		publish(ctx, s.publisher, events.PaymentFailedEvent, result.Order, paymentPayload(result.Payment))
	}
	return result, nil
}

func (s *PaymentService) applyCallback(ctx context.Context, tx repository.Tx, request domain.CallbackRequest, provider domain.Provider, status domain.TransactionStatus, result *CallbackResult) error {
	payment, err := tx.Payments().GetPaymentForUpdate(ctx, request.PaymentID)
	if err != nil {
		return err
	}
	if payment.Method != domain.PaymentMethodMobileMoney {
		return domain.Invalid(domain.ErrInvalidCallback, "payment", "payment_id",
			fmt.Sprintf("%s payments do not take provider callbacks", payment.Method))
	}
	order, err := tx.Orders().GetOrderForUpdate(ctx, payment.OrderID)
	if err != nil {
		return err
	}

	now := s.now()
	txn, err := tx.Payments().GetTransactionByReference(ctx, provider, request.Reference)
	switch {
	case err == nil:
		if txn.PaymentID != payment.ID {
			return domain.Invalid(domain.ErrInvalidCallback, "mobile_money_transaction", "transaction_reference",
				"reference belongs to another payment")
		}
		if txn.Status.IsTerminal() {
			return &domain.Error{
				Kind:   domain.ErrDuplicateCallback,
				Entity: "mobile_money_transaction",
				ID:     request.Reference,
				Reason: fmt.Sprintf("already %s", txn.Status),
			}
		}
	case errors.Is(err, domain.ErrNotFound):
		txn = domain.NewMobileMoneyTransaction(payment.ID, provider, request.PhoneNumber, request.Reference, now)
	default:
		return err
	}

	// A closed payment keeps its state. Terminal provider outcomes are still
	// recorded so that a charge after expiry or cancellation is not lost.
	closed := payment.Status != domain.PaymentStatusInitiated
	if closed && status == domain.TransactionStatusPending {
		return domain.InvalidTransition("payment", payment.ID, string(payment.Status), string(status))
	}

	txn.Status = status
	txn.UpdatedAt = now
	if request.PhoneNumber != "" {
		txn.PhoneNumber = request.PhoneNumber
	}
	if err := tx.Payments().SaveTransaction(ctx, txn); err != nil {
		return err
	}

	result.Payment = payment
	result.Order = order
	result.Transaction = txn
	if closed {
		result.closed = true
		result.LateSettlement = status == domain.TransactionStatusSuccess
		return nil
	}

	switch status {
	case domain.TransactionStatusSuccess:
		if err := payment.Complete(now); err != nil {
			return err
		}
		if err := tx.Payments().UpdatePayment(ctx, payment); err != nil {
			return err
		}
		if err := s.tracker.Transition(ctx, tx, order, domain.OrderStatusPaid, now); err != nil {
			return err
		}
	case domain.TransactionStatusFailed:
		if err := payment.Fail(reasonDeclined, now); err != nil {
			return err
		}
		if err := tx.Payments().UpdatePayment(ctx, payment); err != nil {
			return err
		}
	}
	return nil
}

// MarkExpired fails an initiated payment whose collection window has passed.
// Expiring an already failed payment is a no-op. Pending collections stay
// pending: only the provider decides their outcome.
func (s *PaymentService) MarkExpired(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	orderID, err := s.paymentOrderID(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	var (
		payment *domain.Payment
		order   *domain.Order
		changed bool
	)
	err = withLock(ctx, s.locker, s.config.LockWait, lock.OrderKey(orderID), func() error {
		return s.store.WithTx(ctx, func(tx repository.Tx) error {
			var err error
			payment, err = tx.Payments().GetPaymentForUpdate(ctx, paymentID)
			if err != nil {
				return err
			}

			switch payment.Status {
			case domain.PaymentStatusFailed:
				return nil
			case domain.PaymentStatusCompleted:
				return domain.InvalidTransition("payment", paymentID, string(payment.Status), string(domain.PaymentStatusFailed))
			}

			now := s.now()
			if err := payment.Fail(reasonExpired, now); err != nil {
				return err
			}
			if err := tx.Payments().UpdatePayment(ctx, payment); err != nil {
				return err
			}

			order, err = tx.Orders().GetOrder(ctx, payment.OrderID)
			if err != nil {
				return err
			}
			changed = true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.metrics.PaymentExpired()
		s.metrics.PaymentStatus(string(payment.Method), string(payment.Status))
		log.Info().Str("payment_id", paymentID.String()).Msg("Payment expired")
		publish(ctx, s.publisher, events.PaymentExpiredEvent, order, paymentPayload(payment))
	}
	return payment, nil
}

// ExpireStale sweeps initiated mobile money payments older than olderThan (the
// configured timeout when zero). Pending collections are first checked with
// the provider so that a missed callback settles instead of expiring. Card and
// cash on delivery payments have no collection window and are never swept.
func (s *PaymentService) ExpireStale(ctx context.Context, olderThan time.Duration) (*ExpireResult, error) {
	if olderThan <= 0 {
		olderThan = s.config.Timeout
	}
	cutoff := s.now().Add(-olderThan)

	var stale []*domain.Payment
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		stale, err = tx.Payments().ListStaleInitiated(ctx, domain.PaymentMethodMobileMoney, cutoff, s.config.ExpireBatch)
		return err
	})
	if err != nil {
		return nil, err
	}

	result := &ExpireResult{}
	for _, payment := range stale {
		if ctx.Err() != nil {
			return result, domain.Unavailable("expire stale payments", ctx.Err())
		}

		settled, err := s.settleFromProvider(ctx, payment)
		if err != nil {
			log.Warn().Err(err).Str("payment_id", payment.ID.String()).Msg("Collection status check error")
		}
		if settled {
			result.Settled++
			continue
		}

		if _, err := s.MarkExpired(ctx, payment.ID); err != nil {
			result.Failed++
			log.Warn().Err(err).Str("payment_id", payment.ID.String()).Msg("Payment expire error")
			continue
		}
		result.Expired++
	}

	log.Info().
		Int("expired", result.Expired).
		Int("settled", result.Settled).
		Int("failed", result.Failed).
		Time("cutoff", cutoff).
		Msg("Stale payment sweep finished")
	return result, nil
}

func (s *PaymentService) settleFromProvider(ctx context.Context, payment *domain.Payment) (bool, error) {
	if payment.Method != domain.PaymentMethodMobileMoney || s.gateway == nil {
		return false, nil
	}

	var txns []*domain.MobileMoneyTransaction
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		txns, err = tx.Payments().ListTransactions(ctx, payment.ID)
		return err
	})
	if err != nil {
		return false, err
	}

	for _, txn := range txns {
		if txn.Status != domain.TransactionStatusPending {
			continue
		}
		status, err := s.gateway.CollectionStatus(ctx, txn.Provider, txn.Reference)
		if err != nil {
			return false, err
		}
		if !status.Status.IsTerminal() {
			continue
		}

		_, err = s.RecordCallback(ctx, domain.CallbackRequest{
			PaymentID:   payment.ID,
			Provider:    string(txn.Provider),
			Reference:   txn.Reference,
			Status:      string(status.Status),
			PhoneNumber: txn.PhoneNumber,
		})
		if err != nil && !errors.Is(err, domain.ErrDuplicateCallback) {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, userID, orderID uuid.UUID) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		if _, err := ownedOrder(ctx, tx, userID, orderID, false); err != nil {
			return err
		}
		var err error
		payments, err = tx.Payments().ListPaymentsByOrder(ctx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *PaymentService) paymentOrderID(ctx context.Context, paymentID uuid.UUID) (uuid.UUID, error) {
	var orderID uuid.UUID
	err := s.store.WithTx(ctx, func(tx repository.Tx) error {
		payment, err := tx.Payments().GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		orderID = payment.OrderID
		return nil
	})
	return orderID, err
}
