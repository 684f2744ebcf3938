package observability

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsWithConfig(t *testing.T) {
	metrics := NewMetricsWithConfig(MetricsConfig{Enabled: true, Namespace: "test", Subsystem: "unit"})
	require.NotNil(t, metrics)

	metrics.Counter("things_total", "Things").Inc()

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, metrics))
	assert.Contains(t, buf.String(), "test_unit_things_total 1")
}

func TestDisabledMetrics(t *testing.T) {
	metrics := NewMetricsWithConfig(MetricsConfig{Enabled: false})
	_, ok := metrics.(*noopMetrics)
	assert.True(t, ok)

	metrics.Counter("c", "c", "l").WithLabels(map[string]string{"l": "v"}).Inc()
	metrics.Gauge("g", "g").Set(3)
	metrics.Histogram("h", "h", nil).Observe(1)

	families, err := metrics.Registry().Gather()
	require.NoError(t, err)
	assert.Empty(t, families)
}

func TestCounter(t *testing.T) {
	m := NewMetrics().(*prometheusMetrics)
	counter := m.Counter("test_counter", "Test counter", "label1", "label2")

	counter.Inc()
	counter.Add(5)
	counter.WithLabels(map[string]string{"label1": "value1", "label2": "value2"}).Add(10)

	vec := m.counters["test_counter"]
	assert.Equal(t, float64(6), testutil.ToFloat64(vec.WithLabelValues("", "")))
	assert.Equal(t, float64(10), testutil.ToFloat64(vec.WithLabelValues("value1", "value2")))

	// the same name returns the already registered vector
	m.Counter("test_counter", "Test counter", "label1", "label2").Inc()
	assert.Equal(t, float64(7), testutil.ToFloat64(vec.WithLabelValues("", "")))
}

func TestGauge(t *testing.T) {
	m := NewMetrics().(*prometheusMetrics)
	gauge := m.Gauge("test_gauge", "Test gauge", "kind")

	labeled := gauge.WithLabels(map[string]string{"kind": "connection"})
	labeled.Set(10)
	labeled.Inc()
	labeled.Dec()
	labeled.Sub(4)
	labeled.Add(1)

	assert.Equal(t, float64(7), testutil.ToFloat64(m.gauges["test_gauge"].WithLabelValues("connection")))
}

func TestHistogram(t *testing.T) {
	m := NewMetrics().(*prometheusMetrics)
	histogram := m.Histogram("test_histogram", "Test histogram", []float64{0.1, 1}, "op")

	histogram.WithLabels(map[string]string{"op": "exec"}).Observe(0.5)
	histogram.Observe(2)

	assert.Equal(t, 2, testutil.CollectAndCount(m.histograms["test_histogram"]))
}

func TestBridgeMetrics(t *testing.T) {
	metrics := NewMetrics()
	bm := NewBridgeMetrics(metrics)
	m := metrics.(*prometheusMetrics)

	bm.Call("connect", "ok")
	bm.Call("connect", "ok")
	bm.Call("exec", "execution_error")
	assert.Equal(t, float64(2), testutil.ToFloat64(m.counters["calls_total"].WithLabelValues("connect", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.counters["calls_total"].WithLabelValues("exec", "execution_error")))

	bm.EncodingFallback("uuid")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.counters["encoding_fallbacks_total"].WithLabelValues("uuid")))

	bm.ObserveExec("exec", 20*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.histograms["exec_duration_seconds"]))

	bm.SetLiveHandles(map[string]int{"connection": 1, "query": 2})
	assert.Equal(t, float64(2), testutil.ToFloat64(m.gauges["handles_live"].WithLabelValues("query")))

	bm.SetLiveHandles(map[string]int{"connection": 1})
	assert.Equal(t, float64(0), testutil.ToFloat64(m.gauges["handles_live"].WithLabelValues("query")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.gauges["handles_live"].WithLabelValues("connection")))

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, metrics))
	assert.Contains(t, buf.String(), `pgbridge_calls_total{op="connect",status="ok"} 2`)
}

func TestBridgeMetricsNilMetrics(t *testing.T) {
	bm := NewBridgeMetrics(nil)
	bm.Call("connect", "ok")
	bm.SetLiveHandles(map[string]int{"connection": 1})
}
