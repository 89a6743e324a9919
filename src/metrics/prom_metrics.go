package metrics

import (
	"smartguard-relay/src/interfaces"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names
const (
	ReadingsIngested  = "relay_readings_ingested_total"
	DecodeErrors      = "relay_decode_errors_total"
	ReadingsPublished = "relay_readings_published_total"
	ReadingsDropped   = "relay_readings_dropped_total"
	SessionsEvicted   = "relay_sessions_evicted_total"
	UpstreamReconnect = "relay_upstream_reconnects_total"
	ThresholdUpdates  = "relay_threshold_updates_total"

	ActiveSessions    = "relay_active_sessions"
	UpstreamConnected = "relay_upstream_connected"

	PublishLatency = "relay_publish_latency_seconds"
	WriteLatency   = "relay_session_write_latency_seconds"
)

type PromMetrics struct {
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// NewPromMetrics registers the relay collectors with reg.
func NewPromMetrics(reg prometheus.Registerer) *PromMetrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
	}

	p := &PromMetrics{
		counters: map[string]prometheus.Counter{
			ReadingsIngested:  counter(ReadingsIngested, "Upstream messages decoded into readings."),
			DecodeErrors:      counter(DecodeErrors, "Upstream messages dropped because they failed to decode."),
			ReadingsPublished: counter(ReadingsPublished, "Classified readings broadcast to the hub."),
			ReadingsDropped:   counter(ReadingsDropped, "Readings evicted from a full session queue (drop-oldest)."),
			SessionsEvicted:   counter(SessionsEvicted, "Sessions closed after a failed or timed out write."),
			UpstreamReconnect: counter(UpstreamReconnect, "Attempts to re-establish the upstream connection."),
			ThresholdUpdates:  counter(ThresholdUpdates, "Accepted administrative threshold updates."),
		},
		gauges: map[string]prometheus.Gauge{
			ActiveSessions:    gauge(ActiveSessions, "Subscriber sessions currently registered with the hub."),
			UpstreamConnected: gauge(UpstreamConnected, "1 while the upstream broker connection is up."),
		},
		histos: map[string]prometheus.Observer{
			PublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    PublishLatency,
				Help:    "Time from decode to the end of the hub publish pass.",
				Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
			}),
			WriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
				Name:    WriteLatency,
				Help:    "Duration of a single transport write to a subscriber.",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
			}),
		},
	}

	for _, c := range p.counters {
		reg.MustRegister(c)
	}
	for _, g := range p.gauges {
		reg.MustRegister(g)
	}
	for _, h := range p.histos {
		reg.MustRegister(h.(prometheus.Collector))
	}
	return p
}

func (p *PromMetrics) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromMetrics) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromMetrics) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

// Collector returns the collector registered under name.
func (p *PromMetrics) Collector(name string) (prometheus.Collector, bool) {
	if c, ok := p.counters[name]; ok {
		return c, true
	}
	if g, ok := p.gauges[name]; ok {
		return g, true
	}
	if h, ok := p.histos[name]; ok {
		return h.(prometheus.Collector), true
	}
	return nil, false
}

var _ interfaces.IMetrics = (*PromMetrics)(nil)

// Noop discards everything. Used when a component is built without metrics.
type Noop struct{}

func (Noop) IncCounter(string, float64)     {}
func (Noop) SetGauge(string, float64)       {}
func (Noop) ObserveLatency(string, float64) {}

var _ interfaces.IMetrics = Noop{}
