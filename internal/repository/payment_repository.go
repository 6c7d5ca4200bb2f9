package repository

import (
	"context"
	"time"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	paymentColumns = `
		id, order_id, amount, payment_method, transaction_id, status,
		verified, failure_reason, created_at, updated_at
	`
	transactionColumns = `
		id, payment_id, provider, phone_number, transaction_reference, status, created_at, updated_at
	`
)

type paymentRepository struct {
	tx *sqlx.Tx
}

func (r *paymentRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES (
			:id, :order_id, :amount, :payment_method, :transaction_id, :status,
			:verified, :failure_reason, :created_at, :updated_at
		)
	`
	if _, err := r.tx.NamedExecContext(ctx, query, payment); err != nil {
		if isUniqueViolation(err, "payments_one_active_per_order") {
			return domain.Invalid(domain.ErrPaymentInProgress, "order", "payment",
				"order already has an active payment")
		}
		return storageError("create payment", "payment", payment.ID, err)
	}
	return nil
}

func (r *paymentRepository) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	var payment domain.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	if err := r.tx.GetContext(ctx, &payment, query, id); err != nil {
		return nil, storageError("get payment", "payment", id, err)
	}
	return &payment, nil
}

func (r *paymentRepository) GetPaymentForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	var payment domain.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	if err := r.tx.GetContext(ctx, &payment, query, id); err != nil {
		return nil, storageError("get payment", "payment", id, err)
	}
	return &payment, nil
}

func (r *paymentRepository) UpdatePayment(ctx context.Context, payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = :status, verified = :verified, failure_reason = :failure_reason, updated_at = :updated_at
		WHERE id = :id
	`
	result, err := r.tx.NamedExecContext(ctx, query, payment)
	if err != nil {
		if isUniqueViolation(err, "payments_one_active_per_order") {
			return domain.Invalid(domain.ErrPaymentInProgress, "order", "payment",
				"order already has an active payment")
		}
		return storageError("update payment", "payment", payment.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageError("update payment", "payment", payment.ID, err)
	}
	if rowsAffected == 0 {
		return domain.NotFound("payment", payment.ID)
	}
	return nil
}

func (r *paymentRepository) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]*domain.Payment, error) {
	payments := []*domain.Payment{}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 ORDER BY created_at, id`
	if err := r.tx.SelectContext(ctx, &payments, query, orderID); err != nil {
		return nil, storageError("list payments", "order", orderID, err)
	}
	return payments, nil
}

// ListStaleInitiated returns initiated payments of one method created before
// the cutoff, oldest first.
func (r *paymentRepository) ListStaleInitiated(ctx context.Context, method domain.PaymentMethod, before time.Time, limit int) ([]*domain.Payment, error) {
	payments := []*domain.Payment{}
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = $1 AND payment_method = $2 AND created_at < $3
		ORDER BY created_at
		LIMIT $4
	`
	if err := r.tx.SelectContext(ctx, &payments, query, domain.PaymentStatusInitiated, method, before, limit); err != nil {
		return nil, storageError("list stale payments", "payment", "", err)
	}
	return payments, nil
}

func (r *paymentRepository) GetTransactionByReference(ctx context.Context, provider domain.Provider, reference string) (*domain.MobileMoneyTransaction, error) {
	var txn domain.MobileMoneyTransaction
	query := `
		SELECT ` + transactionColumns + `
		FROM mobile_money_transactions
		WHERE provider = $1 AND transaction_reference = $2
		FOR UPDATE
	`
	if err := r.tx.GetContext(ctx, &txn, query, provider, reference); err != nil {
		return nil, storageError("get transaction", "mobile_money_transaction", reference, err)
	}
	return &txn, nil
}

// SaveTransaction upserts on (provider, transaction_reference).
func (r *paymentRepository) SaveTransaction(ctx context.Context, txn *domain.MobileMoneyTransaction) error {
	query := `
		INSERT INTO mobile_money_transactions (` + transactionColumns + `)
		VALUES (
			:id, :payment_id, :provider, :phone_number, :transaction_reference, :status, :created_at, :updated_at
		)
		ON CONFLICT (provider, transaction_reference)
		DO UPDATE SET status = EXCLUDED.status,
			phone_number = EXCLUDED.phone_number,
			updated_at = EXCLUDED.updated_at
		WHERE mobile_money_transactions.payment_id = EXCLUDED.payment_id
	`
	result, err := r.tx.NamedExecContext(ctx, query, txn)
	if err != nil {
		return storageError("save transaction", "mobile_money_transaction", txn.Reference, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return storageError("save transaction", "mobile_money_transaction", txn.Reference, err)
	}
	if rowsAffected == 0 {
		return domain.Invalid(domain.ErrInvalidCallback, "mobile_money_transaction", "transaction_reference",
			"reference belongs to another payment")
	}
	return nil
}

func (r *paymentRepository) ListTransactions(ctx context.Context, paymentID uuid.UUID) ([]*domain.MobileMoneyTransaction, error) {
	txns := []*domain.MobileMoneyTransaction{}
	query := `
		SELECT ` + transactionColumns + `
		FROM mobile_money_transactions
		WHERE payment_id = $1
		ORDER BY created_at, id
	`
	if err := r.tx.SelectContext(ctx, &txns, query, paymentID); err != nil {
		return nil, storageError("list transactions", "payment", paymentID, err)
	}
	return txns, nil
}
