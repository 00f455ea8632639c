package observability

import (
	"time"

	"github.com/boddenberg/repartos-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	upstreamErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	pollCycles      *prometheus.CounterVec
	alertsRaised    prometheus.Counter
	commands        *prometheus.CounterVec
	watchers        prometheus.Gauge
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "repartos_request_duration_seconds",
				Help:    "Duration of operations by name.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		upstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repartos_upstream_errors_total",
				Help: "Total failed calls to the delivery backend by call.",
			},
			[]string{"call"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repartos_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repartos_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		pollCycles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repartos_refresh_cycles_total",
				Help: "Refresh cycles by result (ok, partial, error, unresolved, stale).",
			},
			[]string{"result"},
		),
		alertsRaised: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "repartos_new_order_alerts_total",
				Help: "New-order alerts raised.",
			},
		),
		commands: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "repartos_commands_total",
				Help: "Order commands by command and result.",
			},
			[]string{"command", "result"},
		),
		watchers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "repartos_active_watchers",
				Help: "Dashboards currently polling.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrUpstreamError increments the upstream error counter.
func (m *Metrics) IncrUpstreamError(call string) {
	m.upstreamErrors.WithLabelValues(call).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrCycle counts a refresh cycle outcome.
func (m *Metrics) IncrCycle(result string) {
	m.pollCycles.WithLabelValues(result).Inc()
}

// IncrAlert counts a raised new-order alert.
func (m *Metrics) IncrAlert() {
	m.alertsRaised.Inc()
}

// IncrCommand counts an order command outcome.
func (m *Metrics) IncrCommand(command, result string) {
	m.commands.WithLabelValues(command, result).Inc()
}

// SetWatchers sets the number of active pollers.
func (m *Metrics) SetWatchers(n int) {
	m.watchers.Set(float64(n))
}

// GetDashboardSnapshot summarises the counters for GET /v1/metrics/dashboard.
func (m *Metrics) GetDashboardSnapshot() *domain.DashboardMetrics {
	ok := getCounterValue(m.pollCycles, "ok")
	partial := getCounterValue(m.pollCycles, "partial")
	failed := getCounterValue(m.pollCycles, "error")
	unresolved := getCounterValue(m.pollCycles, "unresolved")
	stale := getCounterValue(m.pollCycles, "stale")
	total := ok + partial + failed + unresolved + stale

	errorRate := float64(0)
	if total > 0 {
		errorRate = failed / total
	}

	hits := getCounterValue(m.cacheHits, "outlets")
	misses := getCounterValue(m.cacheMisses, "outlets")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.DashboardMetrics{
		PollCycles:      int64(total),
		PollErrorRate:   errorRate,
		StaleDiscarded:  int64(stale),
		AlertsRaised:    int64(readMetric(m.alertsRaised)),
		CommandsFailed:  int64(getCounterValue2(m.commands, "status", "error") + getCounterValue2(m.commands, "courier", "error")),
		UpstreamErrors:  int64(sumCounterVec(m.upstreamErrors, "orders", "summary", "couriers", "statuses", "outlets", "login", "status", "courier")),
		OutletCacheRate: hitRate,
		ActiveWatchers:  int(readGauge(m.watchers)),
		Period:          "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return readMetric(cv.WithLabelValues(label))
}

func getCounterValue2(cv *prometheus.CounterVec, a, b string) float64 {
	return readMetric(cv.WithLabelValues(a, b))
}

func sumCounterVec(cv *prometheus.CounterVec, labels ...string) float64 {
	var total float64
	for _, l := range labels {
		total += getCounterValue(cv, l)
	}
	return total
}

func readMetric(c prometheus.Metric) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

func readGauge(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		return 0
	}
	if m.Gauge != nil && m.Gauge.Value != nil {
		return *m.Gauge.Value
	}
	return 0
}
