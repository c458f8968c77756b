package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Tick outcomes.
const (
	OutcomeFetched  = "fetched"
	OutcomeFailed   = "failed"
	OutcomeCooldown = "cooldown"
	OutcomeSkipped  = "skipped"
)

// Metrics holds the scheduler's Prometheus collectors.
type Metrics struct {
	Ticks       *prometheus.CounterVec
	FetchErrors *prometheus.CounterVec
	Samples     prometheus.Counter
	Cooldown    prometheus.Gauge
	LastPrice   prometheus.Gauge
	FetchTime   prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_ticks_total",
			Help: "Scheduler ticks by outcome.",
		}, []string{"outcome"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_fetch_errors_total",
			Help: "Failed fetches by classified kind.",
		}, []string{"kind"}),
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_samples_total",
			Help: "Samples appended to the sink.",
		}),
		Cooldown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricewatch_cooldown_remaining_ticks",
			Help: "Ticks left before fetching resumes after a rate limit.",
		}),
		LastPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricewatch_last_price",
			Help: "Most recently sampled price.",
		}),
		FetchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricewatch_fetch_duration_seconds",
			Help:    "Wall time spent in the data provider per fetch.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
	reg.MustRegister(m.Ticks, m.FetchErrors, m.Samples, m.Cooldown, m.LastPrice, m.FetchTime)
	return m
}

// ObserveSample records a successful fetch of price.
func (m *Metrics) ObserveSample(price decimal.Decimal) {
	m.Ticks.WithLabelValues(OutcomeFetched).Inc()
	m.Samples.Inc()
	f, _ := price.Float64()
	m.LastPrice.Set(f)
}

// ObserveFailure records a failed fetch of the given kind.
func (m *Metrics) ObserveFailure(kind string) {
	m.Ticks.WithLabelValues(OutcomeFailed).Inc()
	m.FetchErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveCooldown(remaining int) {
	m.Ticks.WithLabelValues(OutcomeCooldown).Inc()
	m.Cooldown.Set(float64(remaining))
}

func (m *Metrics) SetCooldown(remaining int) {
	m.Cooldown.Set(float64(remaining))
}

// ObserveSkipped records a tick dropped because the previous one was still running.
func (m *Metrics) ObserveSkipped() {
	m.Ticks.WithLabelValues(OutcomeSkipped).Inc()
}
