package indexer

import (
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts per-record outcomes of the indexing pipeline
type Metrics struct {
	records       *prometheus.CounterVec
	embedDuration prometheus.Histogram
	batchSize     prometheus.Histogram
}

// NewMetrics registers the indexer collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "omoide",
			Subsystem: "indexer",
			Name:      "records_total",
			Help:      "Change records handled by the indexer, by outcome.",
		}, []string{"outcome"}),
		embedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "omoide",
			Subsystem: "indexer",
			Name:      "embed_duration_seconds",
			Help:      "Latency of embedding calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "omoide",
			Subsystem: "indexer",
			Name:      "batch_size",
			Help:      "Number of change records per delivered batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
	}

	reg.MustRegister(m.records, m.embedDuration, m.batchSize)
	return m
}

func (m *Metrics) observe(o Outcome) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) observeEmbed(seconds float64) {
	if m == nil {
		return
	}
	m.embedDuration.Observe(seconds)
}

func (m *Metrics) observeBatch(n int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(n))
}

// Records returns the counter for outcome, for inspection in tests
func (m *Metrics) Records(o Outcome) prometheus.Counter {
	return m.records.WithLabelValues(string(o))
}

// Summary renders the record counters gathered from g as "outcome=count" pairs
func Summary(g prometheus.Gatherer) (string, error) {
	families, err := g.Gather()
	if err != nil {
		return "", goerr.Wrap(err, "failed to gather metrics")
	}

	counts := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != "omoide_indexer_records_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "outcome" {
					counts[label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}

	outcomes := []Outcome{
		OutcomeIndexed, OutcomeDeleted, OutcomeFiltered, OutcomeSuperseded,
		OutcomeDropped, OutcomeFailed, OutcomeInvalid,
	}
	parts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		parts = append(parts, fmt.Sprintf("%s=%d", o, int(counts[string(o)])))
	}
	return strings.Join(parts, " "), nil
}
