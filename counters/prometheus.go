package counters

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector exports a Counters instance as Prometheus metrics:
// Describe/Collect over const metrics built from a point-in-time snapshot,
// so scrapes never hold the counters lock across the encode.
type PrometheusCollector struct {
	counters *Counters

	appSucc   *prometheus.Desc
	appRetry  *prometheus.Desc
	appFail   *prometheus.Desc
	linkSucc  *prometheus.Desc
	linkRetry *prometheus.Desc
	linkFail  *prometheus.Desc
	rtt       *prometheus.Desc
}

// NewPrometheusCollector wraps c for registration with a
// prometheus.Registerer.
func NewPrometheusCollector(c *Counters) *PrometheusCollector {
	return &PrometheusCollector{
		counters: c,
		appSucc: prometheus.NewDesc("c12_app_services_success_total",
			"Application-layer services completed successfully.", nil, nil),
		appRetry: prometheus.NewDesc("c12_app_services_retry_total",
			"Application-layer retries (BSY/DNR and toggle-failure restarts).", nil, nil),
		appFail: prometheus.NewDesc("c12_app_services_fail_total",
			"Application-layer services that failed after all retries.", nil, nil),
		linkSucc: prometheus.NewDesc("c12_link_exchanges_success_total",
			"Link-layer exchanges completed successfully.", nil, nil),
		linkRetry: prometheus.NewDesc("c12_link_exchanges_retry_total",
			"Link-layer retries (NAK, CRC failure, duplicate and shadow packets).", nil, nil),
		linkFail: prometheus.NewDesc("c12_link_exchanges_fail_total",
			"Link-layer exchanges that failed after all retries.", nil, nil),
		rtt: prometheus.NewDesc("c12_round_trip_seconds",
			"Round-trip time between last byte written and first turn-around byte.",
			[]string{"stat"}, nil),
	}
}

func (p *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.appSucc
	ch <- p.appRetry
	ch <- p.appFail
	ch <- p.linkSucc
	ch <- p.linkRetry
	ch <- p.linkFail
	ch <- p.rtt
}

func (p *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	s := p.counters.snapshot()
	ch <- prometheus.MustNewConstMetric(p.appSucc, prometheus.CounterValue, float64(s.appSucc))
	ch <- prometheus.MustNewConstMetric(p.appRetry, prometheus.CounterValue, float64(s.appRetry))
	ch <- prometheus.MustNewConstMetric(p.appFail, prometheus.CounterValue, float64(s.appFail))
	ch <- prometheus.MustNewConstMetric(p.linkSucc, prometheus.CounterValue, float64(s.linkSucc))
	ch <- prometheus.MustNewConstMetric(p.linkRetry, prometheus.CounterValue, float64(s.linkRetry))
	ch <- prometheus.MustNewConstMetric(p.linkFail, prometheus.CounterValue, float64(s.linkFail))
	ch <- prometheus.MustNewConstMetric(p.rtt, prometheus.GaugeValue, s.rttMin.Seconds(), "min")
	ch <- prometheus.MustNewConstMetric(p.rtt, prometheus.GaugeValue, s.rttAvg.Seconds(), "avg")
	ch <- prometheus.MustNewConstMetric(p.rtt, prometheus.GaugeValue, s.rttMax.Seconds(), "max")
}

var _ prometheus.Collector = (*PrometheusCollector)(nil)

// counterSnapshot is the point-in-time view Collect encodes from.
type counterSnapshot struct {
	appSucc, appRetry, appFail    uint64
	linkSucc, linkRetry, linkFail uint64
	rttMin, rttAvg, rttMax        time.Duration
}

func (c *Counters) snapshot() counterSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := counterSnapshot{
		appSucc: c.AppSucc, appRetry: c.AppRetry, appFail: c.AppFail,
		linkSucc: c.LinkSucc, linkRetry: c.LinkRetry, linkFail: c.LinkFail,
		rttMin: c.rttMin, rttMax: c.rttMax,
	}
	if c.rttCount > 0 {
		s.rttAvg = c.rttSum / time.Duration(c.rttCount)
	}
	return s
}
