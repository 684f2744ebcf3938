package observability

import (
	"sync"
	"time"
)

// ExecBuckets are the histogram buckets for statement execution, in seconds
var ExecBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// BridgeMetrics is the set of instruments the bridge records
type BridgeMetrics struct {
	handlesLive       Gauge
	calls             Counter
	execDuration      Histogram
	encodingFallbacks Counter

	mu    sync.Mutex
	kinds map[string]struct{}
}

// NewBridgeMetrics registers the bridge instruments on m
func NewBridgeMetrics(m Metrics) *BridgeMetrics {
	if m == nil {
		m = NoOpMetrics()
	}

	return &BridgeMetrics{
		handlesLive:       m.Gauge("handles_live", "Number of live handles by kind", "kind"),
		calls:             m.Counter("calls_total", "Bridge calls by operation and status", "op", "status"),
		execDuration:      m.Histogram("exec_duration_seconds", "Statement execution time in seconds", ExecBuckets, "op"),
		encodingFallbacks: m.Counter("encoding_fallbacks_total", "Parameters sent as raw bytes because their type tag is unknown", "tag"),
		kinds:             make(map[string]struct{}),
	}
}

// Call counts one boundary call
func (b *BridgeMetrics) Call(op, status string) {
	b.calls.WithLabels(map[string]string{"op": op, "status": status}).Inc()
}

// ObserveExec records how long a statement took
func (b *BridgeMetrics) ObserveExec(op string, d time.Duration) {
	b.execDuration.WithLabels(map[string]string{"op": op}).Observe(d.Seconds())
}

// EncodingFallback counts a parameter whose tag fell back to raw
func (b *BridgeMetrics) EncodingFallback(tag string) {
	b.encodingFallbacks.WithLabels(map[string]string{"tag": tag}).Inc()
}

// SetLiveHandles publishes live handle counts.
// Kinds seen before and now absent are reset to zero.
func (b *BridgeMetrics) SetLiveHandles(kinds map[string]int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for kind := range b.kinds {
		if _, ok := kinds[kind]; !ok {
			b.handlesLive.WithLabels(map[string]string{"kind": kind}).Set(0)
		}
	}
	for kind, n := range kinds {
		b.kinds[kind] = struct{}{}
		b.handlesLive.WithLabels(map[string]string{"kind": kind}).Set(float64(n))
	}
}
