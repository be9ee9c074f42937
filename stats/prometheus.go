// Package stats provides an hdk.Statter backed by prometheus metrics which
// are written out in the textfile collector format once a run completes.
package stats

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pkg/errors"
)

// Prometheus is an hdk.Statter. Metric names have dots replaced by
// underscores and are prefixed with the namespace; counters get a _total
// suffix and timings are histograms in seconds. Tags of the form key:value
// become labels. The label set of a metric is fixed by its first use;
// later observations with different label names are dropped.
type Prometheus struct {
	namespace string
	registry  *prometheus.Registry

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
	timings  map[string]*prometheus.HistogramVec
}

// NewPrometheus returns a Prometheus statter with its own registry.
func NewPrometheus(namespace string) *Prometheus {
	return &Prometheus{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
		counters:  make(map[string]*prometheus.CounterVec),
		gauges:    make(map[string]*prometheus.GaugeVec),
		timings:   make(map[string]*prometheus.HistogramVec),
	}
}

// Registry returns the registry holding every metric.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Count implements hdk.Statter.
func (p *Prometheus) Count(name string, value int64, rate float64, tags ...string) {
	labels := parseTags(tags)
	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      metricName(name) + "_total",
			Help:      "Count of " + name + ".",
		}, labelNames(labels))
		p.register(vec)
		p.counters[name] = vec
	}
	p.mu.Unlock()
	if c, err := vec.GetMetricWith(labels); err == nil {
		c.Add(float64(value))
	}
}

// Gauge implements hdk.Statter.
func (p *Prometheus) Gauge(name string, value float64, rate float64, tags ...string) {
	labels := parseTags(tags)
	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      metricName(name),
			Help:      "Value of " + name + ".",
		}, labelNames(labels))
		p.register(vec)
		p.gauges[name] = vec
	}
	p.mu.Unlock()
	if g, err := vec.GetMetricWith(labels); err == nil {
		g.Set(value)
	}
}

// Timing implements hdk.Statter.
func (p *Prometheus) Timing(name string, value time.Duration, rate float64, tags ...string) {
	labels := parseTags(tags)
	p.mu.Lock()
	vec, ok := p.timings[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      metricName(name) + "_seconds",
			Help:      "Duration of " + name + ".",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, labelNames(labels))
		p.register(vec)
		p.timings[name] = vec
	}
	p.mu.Unlock()
	if h, err := vec.GetMetricWith(labels); err == nil {
		h.Observe(value.Seconds())
	}
}

// register must be called with mu held. Names are unique per kind by
// construction, so a registration error means two kinds share a name and
// the second is simply not exported.
func (p *Prometheus) register(c prometheus.Collector) {
	_ = p.registry.Register(c)
}

// WriteTextfile writes every metric to path in the text exposition format,
// atomically, for the node exporter's textfile collector.
func (p *Prometheus) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, p.registry); err != nil {
		return errors.Wrapf(err, "writing metrics to %s", path)
	}
	return nil
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_", " ", "_").Replace(name)
}

// parseTags turns "key:value" tags into labels. A tag without a colon
// becomes a label with an empty value.
func parseTags(tags []string) prometheus.Labels {
	labels := make(prometheus.Labels, len(tags))
	for _, tag := range tags {
		k, v, _ := strings.Cut(tag, ":")
		labels[metricName(k)] = v
	}
	return labels
}

func labelNames(labels prometheus.Labels) []string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
