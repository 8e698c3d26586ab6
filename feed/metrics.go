package feed

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	loads             *prometheus.CounterVec
	hydrationFailures prometheus.Counter
	savedOps          *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storysync",
			Name:      "feed_loads_total",
			Help:      "Feed load cycles by terminal status and data source.",
		}, []string{"status", "source"}),
		hydrationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storysync",
			Name:      "hydration_failures_total",
			Help:      "Fetched reports that could not be written to the local cache.",
		}),
		savedOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storysync",
			Name:      "saved_ops_total",
			Help:      "Save and unsave operations by outcome.",
		}, []string{"op", "outcome"}),
	}
	if reg == nil {
		return m
	}
	m.loads = register(reg, m.loads)
	m.hydrationFailures = register(reg, m.hydrationFailures)
	m.savedOps = register(reg, m.savedOps)
	return m
}

// register adds c to reg, reusing the collector already registered under the
// same name so several synchronizers can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
