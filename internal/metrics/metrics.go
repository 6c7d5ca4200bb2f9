package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "anax"
	subsystem = "commerce"
)

// Metrics holds the workflow collectors. A nil *Metrics records nothing.
type Metrics struct {
	OrdersPlaced       prometheus.Counter
	CheckoutFailures   *prometheus.CounterVec
	OrderTransitions   *prometheus.CounterVec
	Payments           *prometheus.CounterVec
	DuplicateCallbacks prometheus.Counter
	GatewayLatency     *prometheus.HistogramVec
	ExpiredPayments    prometheus.Counter
	LateSettlements    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "orders_placed_total",
			Help:      "Orders created from a cart.",
		}),
		CheckoutFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "checkout_failures_total",
			Help:      "Rejected checkouts by reason.",
		}, []string{"reason"}),
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "order_transitions_total",
			Help:      "Order status changes by target status.",
		}, []string{"status"}),
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "payments_total",
			Help:      "Payment status changes by method and status.",
		}, []string{"method", "status"}),
		DuplicateCallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "duplicate_callbacks_total",
			Help:      "Provider callbacks ignored because they were already applied.",
		}),
		GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "gateway_request_duration_seconds",
			Help:      "Mobile money gateway request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "outcome"}),
		ExpiredPayments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "expired_payments_total",
			Help:      "Initiated payments failed by the reconciliation sweep.",
		}),
		LateSettlements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "late_settlements_total",
			Help:      "Provider successes received for payments that were already closed.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.OrdersPlaced,
			m.CheckoutFailures,
			m.OrderTransitions,
			m.Payments,
			m.DuplicateCallbacks,
			m.GatewayLatency,
			m.ExpiredPayments,
			m.LateSettlements,
		)
	}
	return m
}

func (m *Metrics) OrderPlaced() {
	if m == nil {
		return
	}
	m.OrdersPlaced.Inc()
}

func (m *Metrics) CheckoutFailed(reason string) {
	if m == nil {
		return
	}
	m.CheckoutFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) OrderTransitioned(status string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) PaymentStatus(method, status string) {
	if m == nil {
		return
	}
	m.Payments.WithLabelValues(method, status).Inc()
}

func (m *Metrics) DuplicateCallback() {
	if m == nil {
		return
	}
	m.DuplicateCallbacks.Inc()
}

func (m *Metrics) PaymentExpired() {
	if m == nil {
		return
	}
	m.ExpiredPayments.Inc()
}

func (m *Metrics) LateSettlement() {
	if m == nil {
		return
	}
	m.LateSettlements.Inc()
}

func (m *Metrics) ObserveGateway(provider, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.GatewayLatency.WithLabelValues(provider, outcome).Observe(time.Since(started).Seconds())
}
