package bill

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zombor/bill-extractor/internal/scanning"
)

// Metrics records pipeline activity. A nil *Metrics records nothing.
type Metrics struct {
	pages        *prometheus.CounterVec
	retries      prometheus.Counter
	removals     *prometheus.CounterVec
	modelCalls   *prometheus.CounterVec
	tokens       *prometheus.CounterVec
	pageDuration prometheus.Histogram
}

// NewMetrics creates the pipeline metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bill_extractor",
			Name:      "pages_total",
			Help:      "Pages processed, by final reconciliation status and state.",
		}, []string{"status", "state"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bill_extractor",
			Name:      "correction_rounds_total",
			Help:      "Correction requests sent to the model.",
		}),
		removals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bill_extractor",
			Name:      "removed_items_total",
			Help:      "Line items removed before reconciliation, by kind.",
		}, []string{"kind"}),
		modelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bill_extractor",
			Name:      "model_calls_total",
			Help:      "Calls to the extraction model, by operation and outcome.",
		}, []string{"op", "outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "bill_extractor",
			Name:      "model_tokens_total",
			Help:      "Model tokens consumed, by direction.",
		}, []string{"direction"}),
		pageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "bill_extractor",
			Name:      "page_duration_seconds",
			Help:      "Time to extract and reconcile one page.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	reg.MustRegister(m.pages, m.retries, m.removals, m.modelCalls, m.tokens, m.pageDuration)
	return m
}

func (m *Metrics) observePage(s *Session, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(string(s.Reconciliation.Status), string(s.State)).Inc()
	m.pageDuration.Observe(elapsed.Seconds())
	for _, r := range s.Removed {
		m.removals.WithLabelValues(string(r.Kind)).Inc()
	}
}

func (m *Metrics) observeCall(op string, err error, usage scanning.TokenUsage) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.modelCalls.WithLabelValues(op, outcome).Inc()
	m.tokens.WithLabelValues("input").Add(float64(usage.InputTokens))
	m.tokens.WithLabelValues("output").Add(float64(usage.OutputTokens))
}

func (m *Metrics) observeRetry() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

