package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reseller_geocoder"

// Metrics holds the Prometheus counters, histograms, and gauges for address resolution.
type Metrics struct {
	// Resolution metrics.
	Resolutions        *prometheus.CounterVec   // labels: outcome={cache_hit,resolved,not_found,empty}
	ProviderRequests   *prometheus.CounterVec   // labels: provider, outcome={found,not_found,error}
	ProviderDuration   *prometheus.HistogramVec // labels: provider
	CacheLookups       *prometheus.CounterVec   // labels: tier, result={hit,miss}
	CacheErrors        *prometheus.CounterVec   // labels: tier, op={get,put}
	ProvidersAvailable *prometheus.GaugeVec     // labels: role={primary,secondary}

	// Batch metrics.
	BatchAddresses *prometheus.CounterVec // labels: result={succeeded,failed}
	BatchDuration  prometheus.Histogram

	// Stream pipeline metrics.
	MessagesConsumed prometheus.Counter
	MessagesProduced prometheus.Counter
	ParseErrors      prometheus.Counter
	PipelineRunning  prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Resolutions,
		m.ProviderRequests,
		m.ProviderDuration,
		m.CacheLookups,
		m.CacheErrors,
		m.ProvidersAvailable,
		m.BatchAddresses,
		m.BatchDuration,
		m.MessagesConsumed,
		m.MessagesProduced,
		m.ParseErrors,
		m.PipelineRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Address resolutions by outcome.",
		}, []string{"outcome"}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Geocoding provider requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Geocoding provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"provider"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Coordinate cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		CacheErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_errors_total",
			Help:      "Coordinate cache failures by tier and operation.",
		}, []string{"tier", "op"}),
		ProvidersAvailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_configured",
			Help:      "1 when a provider is configured for the role, 0 otherwise.",
		}, []string{"role"}),
		BatchAddresses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_addresses_total",
			Help:      "Batch records by resolution result.",
		}, []string{"result"}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of a complete batch resolution.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}),
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total reseller records read from the source topic.",
		}),
		MessagesProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_produced_total",
			Help:      "Total geocoded records written to the sink topic.",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Total source records that could not be parsed.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
	}
}
