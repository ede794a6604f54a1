// Package telemetry provides simple metrics emission for every kernel
// component, backed by the OpenTelemetry metric API. It declares
// instruments lazily on first use and keeps a small static registry of
// metric definitions so each component can document its own metrics the
// way a production instrumentation file would, without pulling in an
// exporter pipeline: no component in this repo stands up a collector, so
// otel's default global (no-op) meter provider is sufficient.
package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// MetricDefinition documents one metric a module emits.
type MetricDefinition struct {
	Name    string
	Type    string // counter, gauge, histogram
	Help    string
	Labels  []string
	Unit    string
	Buckets []float64
}

// ModuleConfig groups the metric definitions owned by one component.
type ModuleConfig struct {
	Metrics []MetricDefinition
}

var (
	meter = otel.Meter("github.com/resilientkernel/kernel")

	declMu   sync.Mutex
	declared = map[string]ModuleConfig{}

	instMu     sync.Mutex
	counters   = map[string]metric.Float64Counter{}
	gauges     = map[string]metric.Float64Gauge{}
	histograms = map[string]metric.Float64Histogram{}
)

// DeclareMetrics registers the metric definitions a module owns. It is
// meant to be called from an init() function, purely for documentation
// and introspection; it never allocates the underlying otel instrument,
// which happens lazily on first emission.
func DeclareMetrics(module string, cfg ModuleConfig) {
	declMu.Lock()
	defer declMu.Unlock()
	declared[module] = cfg
}

// Declarations returns a snapshot of every module's declared metrics.
func Declarations() map[string]ModuleConfig {
	declMu.Lock()
	defer declMu.Unlock()
	out := make(map[string]ModuleConfig, len(declared))
	for k, v := range declared {
		out[k] = v
	}
	return out
}

func counterFor(name string) metric.Float64Counter {
	instMu.Lock()
	defer instMu.Unlock()
	if c, ok := counters[name]; ok {
		return c
	}
	c, _ := meter.Float64Counter(name)
	counters[name] = c
	return c
}

func gaugeFor(name string) metric.Float64Gauge {
	instMu.Lock()
	defer instMu.Unlock()
	if g, ok := gauges[name]; ok {
		return g
	}
	g, _ := meter.Float64Gauge(name)
	gauges[name] = g
	return g
}

func histogramFor(name string) metric.Float64Histogram {
	instMu.Lock()
	defer instMu.Unlock()
	if h, ok := histograms[name]; ok {
		return h
	}
	h, _ := meter.Float64Histogram(name)
	histograms[name] = h
	return h
}
