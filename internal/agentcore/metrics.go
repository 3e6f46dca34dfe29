package agentcore

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the optional Prometheus collectors an Agent reports
// to. A nil *Metrics is valid everywhere below: every method is a
// no-op on a nil receiver, so an Agent built without WithMetrics pays
// nothing beyond the nil check.
type Metrics struct {
	idleConns *prometheus.GaugeVec
	retries   prometheus.Counter
	redirects prometheus.Counter
	exchanges prometheus.Counter
}

// NewMetrics builds the agent's collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		idleConns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "httpagent_pool_idle_conns",
			Help: "Idle HTTP/1.1 connections currently held, by host.",
		}, []string{"host"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "httpagent_retries_total",
			Help: "Transport-fault retry attempts issued.",
		}),
		redirects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "httpagent_redirects_total",
			Help: "Redirect hops followed.",
		}),
		exchanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "httpagent_exchanges_total",
			Help: "Single-connection request/response exchanges attempted.",
		}),
	}
	reg.MustRegister(m.idleConns, m.retries, m.redirects, m.exchanges)
	return m
}

func (m *Metrics) incRetries() {
	if m == nil {
		return
	}
	m.retries.Inc()
}

func (m *Metrics) incRedirects() {
	if m == nil {
		return
	}
	m.redirects.Inc()
}

func (m *Metrics) incExchanges() {
	if m == nil {
		return
	}
	m.exchanges.Inc()
}

func (m *Metrics) reportIdleCounts(counts map[string]int) {
	if m == nil {
		return
	}
	for host, n := range counts {
		m.idleConns.WithLabelValues(host).Set(float64(n))
	}
}
