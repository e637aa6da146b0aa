package token

import "github.com/prometheus/client_golang/prometheus"

// Label values.
const (
	KindRest       = "rest"
	KindDataAccess = "data_access"

	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Metrics counts cache lookups and platform round trips of a fetcher. A nil
// *Metrics records nothing.
type Metrics struct {
	CacheLookups *prometheus.CounterVec
	Fetches      *prometheus.CounterVec
	FetchSeconds *prometheus.HistogramVec
}

// NewMetrics creates the fetcher collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dsh",
				Subsystem: "token",
				Name:      "cache_lookups_total",
				Help:      "Token cache lookups by token kind and result",
			},
			[]string{"kind", "result"},
		),
		Fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dsh",
				Subsystem: "token",
				Name:      "fetches_total",
				Help:      "Token requests sent to the platform by token kind and result",
			},
			[]string{"kind", "result"},
		),
		FetchSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dsh",
				Subsystem: "token",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of token requests to the platform",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.CacheLookups, m.Fetches, m.FetchSeconds)
	}
	return m
}

func (m *Metrics) lookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := ResultMiss
	if hit {
		result = ResultHit
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) fetched(kind string, seconds float64, err error) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	m.Fetches.WithLabelValues(kind, result).Inc()
	m.FetchSeconds.WithLabelValues(kind).Observe(seconds)
}
