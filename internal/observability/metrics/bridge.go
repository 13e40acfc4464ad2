package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Bridge exposes a Collector through a prometheus.Registry so the same
// series can be scraped by Prometheus without double bookkeeping in the
// calling code. Series are emitted as const metrics on every scrape.
type Bridge struct {
	collector *Collector
}

// NewBridge creates a bridge over the given collector.
// Register it with prometheus.Registry.MustRegister.
func NewBridge(c *Collector) *Bridge {
	return &Bridge{collector: c}
}

// Describe implements prometheus.Collector. The series set is dynamic,
// so descriptions are derived from a collect pass.
func (b *Bridge) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(b, ch)
}

// Collect implements prometheus.Collector.
func (b *Bridge) Collect(ch chan<- prometheus.Metric) {
	b.collector.mu.Lock()
	defer b.collector.mu.Unlock()

	for _, s := range b.collector.counters {
		desc := prometheus.NewDesc(s.name, "", nil, prometheus.Labels(s.labels))
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, s.value)
	}
	for _, s := range b.collector.gauges {
		desc := prometheus.NewDesc(s.name, "", nil, prometheus.Labels(s.labels))
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, s.value)
	}
	for _, h := range b.collector.histograms {
		desc := prometheus.NewDesc(h.name, "", nil, prometheus.Labels(h.labels))
		ch <- prometheus.MustNewConstHistogram(desc, uint64(h.count), h.sum, nil)
	}
}
