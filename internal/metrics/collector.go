package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "warrant"

// Collector holds the broker's metrics. It is registered as a single
// prometheus.Collector.
type Collector struct {
	exchanges       *prometheus.CounterVec
	exchangeLatency prometheus.Histogram
	jwksRefreshes   *prometheus.CounterVec
	auditFailures   prometheus.Counter
	revocations     prometheus.Counter
	policyRevision  prometheus.Gauge
}

var _ prometheus.Collector = (*Collector)(nil)

func NewCollector() *Collector {
	return &Collector{
		exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exchanges_total",
			Help:      "Credential exchanges by outcome and reason code.",
		}, []string{"outcome", "reason"}),
		exchangeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_duration_seconds",
			Help:      "Duration of credential exchanges, including key fetches.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		jwksRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jwks_refreshes_total",
			Help:      "Key set fetches by issuer and result.",
		}, []string{"issuer", "result"}),
		auditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Audit events that could not be written. Each one failed an exchange closed.",
		}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revocations_total",
			Help:      "Revoked sessions.",
		}),
		policyRevision: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "policy_revision",
			Help:      "Revision of the currently published role snapshot.",
		}),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.exchanges.Describe(ch)
	c.exchangeLatency.Describe(ch)
	c.jwksRefreshes.Describe(ch)
	c.auditFailures.Describe(ch)
	c.revocations.Describe(ch)
	c.policyRevision.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.exchanges.Collect(ch)
	c.exchangeLatency.Collect(ch)
	c.jwksRefreshes.Collect(ch)
	c.auditFailures.Collect(ch)
	c.revocations.Collect(ch)
	c.policyRevision.Collect(ch)
}

func (c *Collector) ObserveExchange(outcome, reason string, took time.Duration) {
	c.exchanges.WithLabelValues(outcome, reason).Inc()
	c.exchangeLatency.Observe(took.Seconds())
}

// ObserveRefresh matches the signature of jwks.Options.OnRefresh.
func (c *Collector) ObserveRefresh(issuer string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.jwksRefreshes.WithLabelValues(issuer, result).Inc()
}

func (c *Collector) AuditFailed() {
	c.auditFailures.Inc()
}

func (c *Collector) Revoked() {
	c.revocations.Inc()
}

func (c *Collector) PolicyPublished(revision uint64) {
	c.policyRevision.Set(float64(revision))
}
