package interfaces

// -----------------------------------------------------------------------------
// IMetrics records relay counters, gauges and latencies by name.
// Unknown names are ignored.
// -----------------------------------------------------------------------------

type IMetrics interface {
	IncCounter(name string, v float64)
	SetGauge(name string, v float64)
	ObserveLatency(name string, seconds float64)
}
