package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// VoucherApplyTotal counts voucher apply attempts by backend and outcome.
	VoucherApplyTotal *prometheus.CounterVec
	// VoucherSettleTotal counts voucher usage settlement outcomes.
	VoucherSettleTotal *prometheus.CounterVec
	// DeliveryQuoteTotal counts delivery quote lookups by source and outcome.
	DeliveryQuoteTotal *prometheus.CounterVec
	// DeliveryQuoteLatency records quote lookup latency in milliseconds.
	DeliveryQuoteLatency *prometheus.HistogramVec
	// StaleQuoteDiscards counts quote responses dropped because a newer destination was set.
	StaleQuoteDiscards prometheus.Counter
	// CheckoutSubmitTotal counts checkout submissions by outcome.
	CheckoutSubmitTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		VoucherApplyTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_apply_total",
			Help:      "Count of voucher apply attempts by backend and result.",
		}, []string{"backend", "result"})
		VoucherSettleTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voucher_settle_total",
			Help:      "Count of voucher usage settlement outcomes.",
		}, []string{"result"})
		DeliveryQuoteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_quote_total",
			Help:      "Count of delivery quote lookups by source and result.",
		}, []string{"source", "result"})
		DeliveryQuoteLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_quote_duration_ms",
			Help:      "Latency of delivery quote lookups in milliseconds.",
			Buckets:   []float64{5, 25, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"source"})
		StaleQuoteDiscards = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_quote_stale_discards_total",
			Help:      "Delivery quotes discarded because the destination changed while they were in flight.",
		})
		CheckoutSubmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_submit_total",
			Help:      "Count of checkout submissions by result.",
		}, []string{"result"})

		registerOrReuse(reg, &VoucherApplyTotal)
		registerOrReuse(reg, &VoucherSettleTotal)
		registerOrReuse(reg, &DeliveryQuoteTotal)
		registerOrReuse(reg, &DeliveryQuoteLatency)
		registerOrReuse(reg, &StaleQuoteDiscards)
		registerOrReuse(reg, &CheckoutSubmitTotal)
	})
}

// CountVoucherApply increments VoucherApplyTotal when domain metrics are registered.
func CountVoucherApply(backend, result string) {
	if VoucherApplyTotal != nil {
		VoucherApplyTotal.WithLabelValues(backend, result).Inc()
	}
}

// CountVoucherSettle increments VoucherSettleTotal when domain metrics are registered.
func CountVoucherSettle(result string) {
	if VoucherSettleTotal != nil {
		VoucherSettleTotal.WithLabelValues(result).Inc()
	}
}

// ObserveDeliveryQuote records a quote lookup.
func ObserveDeliveryQuote(source, result string, ms float64) {
	if DeliveryQuoteTotal != nil {
		DeliveryQuoteTotal.WithLabelValues(source, result).Inc()
	}
	if DeliveryQuoteLatency != nil {
		DeliveryQuoteLatency.WithLabelValues(source).Observe(ms)
	}
}

// CountStaleQuote increments StaleQuoteDiscards when domain metrics are registered.
func CountStaleQuote() {
	if StaleQuoteDiscards != nil {
		StaleQuoteDiscards.Inc()
	}
}

// CountCheckoutSubmit increments CheckoutSubmitTotal when domain metrics are registered.
func CountCheckoutSubmit(result string) {
	if CheckoutSubmitTotal != nil {
		CheckoutSubmitTotal.WithLabelValues(result).Inc()
	}
}
