package server

import "github.com/prometheus/client_golang/prometheus"

// Outcome label values for ingest batches.
const (
	OutcomeOK       = "ok"
	OutcomeInvalid  = "invalid"
	OutcomeTooLarge = "too_large"
	OutcomeError    = "error"
)

// Metrics holds the sync server's Prometheus collectors.
type Metrics struct {
	ingestBatches *prometheus.CounterVec
	ingestRows    prometheus.Counter
	batchSize     prometheus.Histogram
	summaries     *prometheus.CounterVec
	rateLimited   prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ingestBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "browsedash",
			Name:      "ingest_batches_total",
			Help:      "Ingest requests by outcome.",
		}, []string{"outcome"}),
		ingestRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "browsedash",
			Name:      "ingest_rows_total",
			Help:      "Rows accepted by the merge-upsert engine.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "browsedash",
			Name:      "ingest_batch_rows",
			Help:      "Rows per ingest request.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 9),
		}),
		summaries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "browsedash",
			Name:      "summary_requests_total",
			Help:      "Summary requests by outcome.",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "browsedash",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-identity rate limit.",
		}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.ingestBatches, m.ingestRows, m.batchSize, m.summaries, m.rateLimited} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

func (m *Metrics) recordIngest(outcome string, rows int) {
	m.ingestBatches.WithLabelValues(outcome).Inc()
	m.batchSize.Observe(float64(rows))
	if outcome == OutcomeOK {
		m.ingestRows.Add(float64(rows))
	}
}
