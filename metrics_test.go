package authcore

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabled(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})

	m.Inc(MetricLoginSuccess)
	m.Observe(MetricValidateLatency, 10*time.Millisecond)

	if got := m.Value(MetricLoginSuccess); got != 0 {
		t.Fatalf("disabled metrics counted: %d", got)
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatalf("expected empty snapshot when disabled, got %+v", snap)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricValidateLatency, time.Millisecond)
	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("nil metrics returned a value")
	}
	if m.Enabled() || m.LatencyEnabled() {
		t.Fatal("nil metrics reported enabled")
	}
	snap := m.Snapshot()
	if len(snap.Counters) != 0 {
		t.Fatal("nil metrics produced counters")
	}
}

func TestMetricsIncAndValue(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	for i := 0; i < 7; i++ {
		m.Inc(MetricLoginSuccess)
	}
	m.Inc(MetricRefreshSuccess)
	m.Inc(metricIDCount + 1) // out of range, ignored

	if got := m.Value(MetricLoginSuccess); got != 7 {
		t.Fatalf("MetricLoginSuccess = %d, want 7", got)
	}
	if got := m.Value(MetricRefreshSuccess); got != 1 {
		t.Fatalf("MetricRefreshSuccess = %d, want 1", got)
	}
	if got := m.Value(MetricLoginFailure); got != 0 {
		t.Fatalf("MetricLoginFailure = %d, want 0", got)
	}
}

func TestMetricsSnapshotIsACopy(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricLogout)

	snap := m.Snapshot()
	if snap.Counters[MetricLogout] != 1 {
		t.Fatalf("snapshot missed counter: %+v", snap.Counters)
	}

	snap.Counters[MetricLogout] = 999
	m.Inc(MetricLogout)
	if got := m.Value(MetricLogout); got != 2 {
		t.Fatalf("mutating a snapshot leaked into live counters: %d", got)
	}
}

func TestMetricsLatencyHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})

	m.Observe(MetricValidateLatency, 3*time.Millisecond)    // bucket 0
	m.Observe(MetricValidateLatency, 8*time.Millisecond)    // bucket 1
	m.Observe(MetricValidateLatency, 75*time.Millisecond)   // bucket 4
	m.Observe(MetricValidateLatency, 2*time.Second)         // bucket 7
	m.Observe(MetricLoginSuccess, 10*time.Millisecond)      // not a histogram, ignored

	snap := m.Snapshot()
	buckets, ok := snap.Histograms[MetricValidateLatency]
	if !ok {
		t.Fatal("expected validate latency histogram in snapshot")
	}
	want := []uint64{1, 1, 0, 0, 1, 0, 0, 1}
	for i, v := range want {
		if buckets[i] != v {
			t.Fatalf("bucket %d = %d, want %d (all: %v)", i, buckets[i], v, buckets)
		}
	}
	if _, ok := snap.Histograms[MetricLoginSuccess]; ok {
		t.Fatal("non-histogram metric appeared in snapshot")
	}
}

func TestMetricsLatencyDisabledByDefault(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Observe(MetricValidateLatency, time.Millisecond)

	snap := m.Snapshot()
	if len(snap.Histograms) != 0 {
		t.Fatalf("expected no histograms without EnableLatencyHistograms, got %+v", snap.Histograms)
	}
}

func TestBucketIndexBoundaries(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{5 * time.Millisecond, 0},
		{6 * time.Millisecond, 1},
		{10 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{50 * time.Millisecond, 3},
		{100 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{500 * time.Millisecond, 6},
		{501 * time.Millisecond, 7},
		{10 * time.Second, 7},
	}
	for _, tc := range cases {
		if got := bucketIndex(tc.d); got != tc.want {
			t.Fatalf("bucketIndex(%v) = %d, want %d", tc.d, got, tc.want)
		}
	}
}

func TestMetricsConcurrentInc(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const workers = 8
	const perWorker = 500

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m.Inc(MetricTwoFactorSuccess)
			}
		}()
	}
	wg.Wait()

	if got := m.Value(MetricTwoFactorSuccess); got != workers*perWorker {
		t.Fatalf("MetricTwoFactorSuccess = %d, want %d", got, workers*perWorker)
	}
}
