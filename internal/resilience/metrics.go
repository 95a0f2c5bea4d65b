package resilience

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vendor_breaker_state",
			Help: "Current vendor breaker state: 0=closed,1=open,2=half-open",
		},
		[]string{"vendor"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vendor_breaker_transition_total",
			Help: "Count of vendor breaker state transitions",
		},
		[]string{"vendor", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vendor_breaker_open_total",
			Help: "Number of times a vendor breaker transitioned into open state",
		},
		[]string{"vendor"},
	)
	RetryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vendor_http_retry_total",
			Help: "Vendor HTTP attempts that were retried",
		},
		[]string{"vendor"},
	)
)

// Register adds the breaker collectors to reg. Registering twice is a no-op.
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{BreakerState, BreakerTransitions, BreakerOpenedTotal, RetryTotal} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
