package metrics_test

import (
	"testing"
	"time"

	"github.com/anax-commerce/commerce-service/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.OrderPlaced()
	m.OrderPlaced()
	m.CheckoutFailed("insufficient_stock")
	m.PaymentStatus("mobile_money", "completed")
	m.DuplicateCallback()
	m.LateSettlement()
	m.ObserveGateway("mtn", "accepted", time.Now())

	assert.Equal(t, float64(2), testutil.ToFloat64(m.OrdersPlaced))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CheckoutFailures.WithLabelValues("insufficient_stock")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Payments.WithLabelValues("mobile_money", "completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.DuplicateCallbacks))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LateSettlements))
	assert.Equal(t, 1, testutil.CollectAndCount(m.GatewayLatency))
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.OrderPlaced()
		m.CheckoutFailed("empty_cart")
		m.OrderTransitioned("paid")
		m.PaymentStatus("card", "failed")
		m.DuplicateCallback()
		m.PaymentExpired()
		m.LateSettlement()
		m.ObserveGateway("airtel", "error", time.Now())
	})
}
