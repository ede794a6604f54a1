package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeclareMetricsAndSnapshot(t *testing.T) {
	DeclareMetrics("test_module", ModuleConfig{
		Metrics: []MetricDefinition{
			{Name: "test.counter", Type: "counter", Help: "a counter", Labels: []string{"status"}},
		},
	})

	decls := Declarations()
	cfg, ok := decls["test_module"]
	assert.True(t, ok)
	assert.Len(t, cfg.Metrics, 1)
	assert.Equal(t, "test.counter", cfg.Metrics[0].Name)
}

func TestCounterGaugeHistogramDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Counter("test.emit.counter", "status", "ok")
		CounterN("test.emit.counter", 3, "status", "ok")
		Gauge("test.emit.gauge", 42, "pool", "default")
		Histogram("test.emit.histogram", 12.5, "op", "read")
	})
}

func TestDurationAndTimeOperation(t *testing.T) {
	assert.NotPanics(t, func() {
		stop := TimeOperation("test.timed_op", "op", "write")
		stop()
	})
}

func TestRecordOutcomeLabelsSuccessAndFailure(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordOutcome("test.outcome", true, "operation", "x")
		RecordOutcome("test.outcome", false, "operation", "x")
	})
}
