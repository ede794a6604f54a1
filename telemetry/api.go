package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// attrsOf converts a flat key,value,key,value... label list into an
// otel attribute.Set wrapped in a measurement option, so callers pass
// plain strings without importing otel themselves.
func attrsOf(labels []string) metric.MeasurementOption {
	if len(labels)%2 != 0 {
		labels = append(labels, "")
	}
	kvs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		kvs = append(kvs, attribute.String(labels[i], labels[i+1]))
	}
	return metric.WithAttributes(kvs...)
}

// Counter increments a counter metric by 1. Labels are key,value pairs.
// Example: Counter("ledger.operations", "reason", "no_prior")
func Counter(name string, labels ...string) {
	CounterN(name, 1, labels...)
}

// CounterN increments a counter metric by n.
func CounterN(name string, n float64, labels ...string) {
	c := counterFor(name)
	if c == nil {
		return
	}
	c.Add(context.Background(), n, attrsOf(labels))
}

// Gauge sets a gauge to value. Use for values that move up and down:
// open circuits, in-flight recoveries, arm reward averages.
func Gauge(name string, value float64, labels ...string) {
	g := gaugeFor(name)
	if g == nil {
		return
	}
	g.Record(context.Background(), value, attrsOf(labels))
}

// Histogram records value in a distribution. Use for latencies,
// backoff durations, recovery action durations.
func Histogram(name string, value float64, labels ...string) {
	h := histogramFor(name)
	if h == nil {
		return
	}
	h.Record(context.Background(), value, attrsOf(labels))
}

// Duration records the elapsed time since start, in milliseconds.
func Duration(name string, start time.Time, labels ...string) {
	Histogram(name, float64(time.Since(start).Milliseconds()), labels...)
}

// TimeOperation starts a timer and returns a func to stop it and record
// the elapsed duration, for use with defer:
//
//	defer telemetry.TimeOperation("retry.duration_ms", "operation", name)()
func TimeOperation(name string, labels ...string) func() {
	start := time.Now()
	return func() {
		Duration(name, start, labels...)
	}
}

// RecordOutcome increments a counter with an extra "status" label of
// "success" or "failure".
func RecordOutcome(name string, success bool, labels ...string) {
	status := "failure"
	if success {
		status = "success"
	}
	Counter(name, append(append([]string{}, labels...), "status", status)...)
}
