package observability

import (
	"errors"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusFactory is a MetricFactory backed by a Prometheus registry.
// Dotted names become underscore-separated metric names.
type PrometheusFactory struct {
	reg prometheus.Registerer
}

var _ MetricFactory = (*PrometheusFactory)(nil)

// NewPrometheusFactory registers metrics with reg. A nil reg means
// prometheus.DefaultRegisterer.
func NewPrometheusFactory(reg prometheus.Registerer) *PrometheusFactory {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &PrometheusFactory{reg: reg}
}

// MetricName converts a dotted metric name to a Prometheus name.
func MetricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

// Counter implements MetricFactory. Asking twice for the same name returns
// the already registered counter.
func (f *PrometheusFactory) Counter(name string) Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricName(name),
		Help: name,
	})
	return register(f.reg, c)
}

// Histogram implements MetricFactory.
func (f *PrometheusFactory) Histogram(name string) Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    MetricName(name),
		Help:    name,
		Buckets: prometheus.DefBuckets,
	})
	return register(f.reg, h)
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// Handler serves the metrics in g. A nil g means prometheus.DefaultGatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
