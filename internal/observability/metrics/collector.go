package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Labels attaches dimensions to a metric series.
// Series identity is the metric name plus the sorted label set.
type Labels map[string]string

// HistogramStats holds the derived aggregates of a histogram series.
type HistogramStats struct {
	Count int
	Sum   float64
	Min   float64
	Max   float64
	Avg   float64
}

// Collector is a process-wide in-memory metrics aggregator.
// It is explicitly constructed and injected so that tests can create and
// reset isolated instances. All methods are safe for concurrent use and
// never perform I/O; ExportText is a pure read.
type Collector struct {
	mu         sync.Mutex
	counters   map[string]*series
	gauges     map[string]*series
	histograms map[string]*histogramSeries
}

// series holds one counter or gauge value together with its identity.
type series struct {
	name   string
	labels Labels
	value  float64
}

type histogramSeries struct {
	name   string
	labels Labels
	count  int
	sum    float64
	min    float64
	max    float64
}

// NewCollector creates an empty metrics collector.
func NewCollector() *Collector {
	return &Collector{
		counters:   make(map[string]*series),
		gauges:     make(map[string]*series),
		histograms: make(map[string]*histogramSeries),
	}
}

// Inc increments a counter series by 1.
func (c *Collector) Inc(name string, labels Labels) {
	c.Add(name, 1, labels)
}

// Add increments a counter series by delta. Counters are monotonic;
// negative deltas are ignored.
func (c *Collector) Add(name string, delta float64, labels Labels) {
	if delta < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := seriesKey(name, labels)
	s, ok := c.counters[key]
	if !ok {
		s = &series{name: name, labels: cloneLabels(labels)}
		c.counters[key] = s
	}
	s.value += delta
}

// SetGauge sets a gauge series to the given value (last write wins).
func (c *Collector) SetGauge(name string, value float64, labels Labels) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := seriesKey(name, labels)
	s, ok := c.gauges[key]
	if !ok {
		s = &series{name: name, labels: cloneLabels(labels)}
		c.gauges[key] = s
	}
	s.value = value
}

// Observe records one sample in a histogram series.
func (c *Collector) Observe(name string, value float64, labels Labels) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := seriesKey(name, labels)
	h, ok := c.histograms[key]
	if !ok {
		h = &histogramSeries{name: name, labels: cloneLabels(labels)}
		c.histograms[key] = h
	}
	if h.count == 0 || value < h.min {
		h.min = value
	}
	if h.count == 0 || value > h.max {
		h.max = value
	}
	h.count++
	h.sum += value
}

// CounterValue returns the cumulative total of a counter series,
// or 0 if the series has never been written.
func (c *Collector) CounterValue(name string, labels Labels) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.counters[seriesKey(name, labels)]; ok {
		return s.value
	}
	return 0
}

// GaugeValue returns the current value of a gauge series and whether it exists.
func (c *Collector) GaugeValue(name string, labels Labels) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.gauges[seriesKey(name, labels)]; ok {
		return s.value, true
	}
	return 0, false
}

// HistogramValues returns the derived aggregates of a histogram series.
// A series with no samples reports zero for every field.
func (c *Collector) HistogramValues(name string, labels Labels) HistogramStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	h, ok := c.histograms[seriesKey(name, labels)]
	if !ok || h.count == 0 {
		return HistogramStats{}
	}
	return HistogramStats{
		Count: h.count,
		Sum:   h.sum,
		Min:   h.min,
		Max:   h.max,
		Avg:   h.sum / float64(h.count),
	}
}

// ExportText renders every series in a line-oriented exposition format:
//
//	api_calls_total{endpoint="issues",status="success"} 42
//	api_call_duration_ms_count{endpoint="issues"} 42
//	api_call_duration_ms_sum{endpoint="issues"} 1890.5
//
// Counters and gauges render as one line per series; histograms render as
// _count and _sum suffixed series. Lines are sorted for stable output.
func (c *Collector) ExportText() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	lines := make([]string, 0, len(c.counters)+len(c.gauges)+2*len(c.histograms))
	for _, s := range c.counters {
		lines = append(lines, renderLine(s.name, s.labels, s.value))
	}
	for _, s := range c.gauges {
		lines = append(lines, renderLine(s.name, s.labels, s.value))
	}
	for _, h := range c.histograms {
		lines = append(lines, renderLine(h.name+"_count", h.labels, float64(h.count)))
		lines = append(lines, renderLine(h.name+"_sum", h.labels, h.sum))
	}
	sort.Strings(lines)

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// Reset clears every recorded series.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counters = make(map[string]*series)
	c.gauges = make(map[string]*series)
	c.histograms = make(map[string]*histogramSeries)
}

// SeriesCount returns the number of distinct series currently recorded.
func (c *Collector) SeriesCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.counters) + len(c.gauges) + len(c.histograms)
}

// seriesKey builds the identity of a series: the metric name plus its
// sorted label pairs. Two calls with the same name and labels always
// produce the same key regardless of map iteration order.
func seriesKey(name string, labels Labels) string {
	if len(labels) == 0 {
		return name
	}
	return name + renderLabels(labels)
}

func renderLine(name string, labels Labels, value float64) string {
	return fmt.Sprintf("%s%s %s", name, renderLabels(labels), formatValue(value))
}

func renderLabels(labels Labels) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteString(`="`)
		b.WriteString(labels[k])
		b.WriteString(`"`)
	}
	b.WriteByte('}')
	return b.String()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func cloneLabels(labels Labels) Labels {
	if len(labels) == 0 {
		return nil
	}
	out := make(Labels, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}
