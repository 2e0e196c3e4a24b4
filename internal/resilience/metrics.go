package resilience

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Breaker collectors are always live so breakers can record before registration; the
// binaries expose them through RegisterMetrics.
var (
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backend_breaker_state",
			Help: "Current breaker state per backend target: 0=closed,1=open,2=half-open",
		},
		[]string{"target"},
	)
	BreakerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_breaker_transition_total",
			Help: "Count of breaker state transitions per backend target",
		},
		[]string{"target", "from", "to"},
	)
	BreakerOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_breaker_open_total",
			Help: "Number of times a backend breaker opened",
		},
		[]string{"target"},
	)
)

// RegisterMetrics registers the breaker collectors on reg, tolerating repeat registration.
func RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{BreakerState, BreakerTransitions, BreakerOpenedTotal} {
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
