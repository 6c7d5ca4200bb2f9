package gateway_test

import (
	"context"
	"testing"

	"github.com/anax-commerce/commerce-service/internal/domain"
	"github.com/anax-commerce/commerce-service/internal/gateway"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSandboxGateway(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	request := gateway.CollectionRequest{
		PaymentID:   uuid.New(),
		Provider:    domain.ProviderMTN,
		PhoneNumber: "256770000000",
		Amount:      decimal.RequireFromString("25.00"),
		Currency:    "UGX",
	}

	t.Run("accepted collection is pending until settled", func(t *testing.T) {
		t.Parallel()
		gw := gateway.NewSandboxGateway(0, 0)

		response, err := gw.RequestCollection(ctx, request)
		require.NoError(t, err)
		require.True(t, response.Accepted)
		assert.Equal(t, domain.TransactionStatusPending, response.Status)
		assert.NotEmpty(t, response.Reference)

		status, err := gw.CollectionStatus(ctx, domain.ProviderMTN, response.Reference)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusPending, status.Status)
		assert.True(t, status.Amount.Equal(request.Amount))

		require.NoError(t, gw.Settle(domain.ProviderMTN, response.Reference, domain.TransactionStatusSuccess))
		status, err = gw.CollectionStatus(ctx, domain.ProviderMTN, response.Reference)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusSuccess, status.Status)
	})

	t.Run("decline", func(t *testing.T) {
		t.Parallel()
		gw := gateway.NewSandboxGateway(1, 0)

		response, err := gw.RequestCollection(ctx, request)
		require.NoError(t, err)
		assert.False(t, response.Accepted)
		assert.Equal(t, domain.TransactionStatusFailed, response.Status)
		assert.NotEmpty(t, response.FailureReason)
	})

	t.Run("unknown reference", func(t *testing.T) {
		t.Parallel()
		gw := gateway.NewSandboxGateway(0, 0)

		_, err := gw.CollectionStatus(ctx, domain.ProviderAirtel, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}
