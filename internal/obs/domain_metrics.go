package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// ProviderRequestsTotal counts payment provider operations by outcome.
	ProviderRequestsTotal *prometheus.CounterVec
	// ProviderRequestDuration records provider operation latency in seconds.
	ProviderRequestDuration *prometheus.HistogramVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// DonationsTotal counts donation attempts.
	DonationsTotal *prometheus.CounterVec
	// DonationAmountCents sums charged donation amounts in minor units.
	DonationAmountCents *prometheus.CounterVec
	// CoveredFeesCents sums the fees donors chose to cover.
	CoveredFeesCents *prometheus.CounterVec
	// RefundsTotal counts refund attempts.
	RefundsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		ProviderRequestsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_provider_requests_total",
			Help:      "Count of payment provider operations by outcome.",
		}, []string{"provider", "op", "result"}))
		ProviderRequestDuration = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_provider_request_duration_seconds",
			Help:      "Latency of payment provider operations.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider", "op"}))
		PaymentWebhookTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"provider", "result"}))
		DonationsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "donations_total",
			Help:      "Count of donation attempts.",
		}, []string{"provider", "method", "kind", "result"}))
		DonationAmountCents = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "donation_amount_cents_total",
			Help:      "Sum of charged donation amounts in minor units.",
		}, []string{"currency", "method"}))
		CoveredFeesCents = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "donation_covered_fees_cents_total",
			Help:      "Sum of processing fees covered by donors in minor units.",
		}, []string{"currency", "method"}))
		RefundsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Count of refund attempts by outcome.",
		}, []string{"provider", "result"}))
	})
}

// Inc increments a counter vec when it has been registered.
func Inc(vec *prometheus.CounterVec, labels ...string) {
	if vec != nil {
		vec.WithLabelValues(labels...).Inc()
	}
}

// Add adds v to a counter vec when it has been registered.
func Add(vec *prometheus.CounterVec, v float64, labels ...string) {
	if vec != nil && v > 0 {
		vec.WithLabelValues(labels...).Add(v)
	}
}
