package worldio

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Failure reasons reported by map_load_failures_total.
const (
	reasonOpen    = "open"
	reasonFormat  = "format"
	reasonCorrupt = "corrupt"
	reasonIO      = "io"
)

type metrics struct {
	loaded      prometheus.Counter
	saved       prometheus.Counter
	failures    *prometheus.CounterVec
	loadSeconds prometheus.Histogram
}

// newMetrics creates the collectors and registers them on reg when it is
// not nil.
func newMetrics(namespace string, reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		loaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maps_loaded_total",
			Help:      "Maps decoded successfully.",
		}),
		saved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maps_saved_total",
			Help:      "Maps written successfully.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "map_load_failures_total",
			Help:      "Map loads that failed, by reason.",
		}, []string{"reason"}),
		loadSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "map_load_seconds",
			Help:      "Time spent decoding a map.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.loaded, m.saved, m.failures, m.loadSeconds} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) fail(reason string) {
	m.failures.WithLabelValues(reason).Inc()
}
