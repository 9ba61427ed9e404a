package runtime

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const (
	timingRingCapacity = 1000
	snapshotMaxAge     = 100 * time.Millisecond
	lagSampleInterval  = 500 * time.Millisecond
)

// Telemetry tracks live request counters, a bounded timing history, and
// process resource usage, and serves cached aggregate snapshots. Counters are
// atomics so the request path stays lock-free; the timing ring has its own
// mutex; the snapshot is an atomic pointer replaced wholesale so readers
// never see a half-built value.
type Telemetry struct {
	total  atomic.Uint64
	active atomic.Int64

	timingMu sync.Mutex
	timings  []RequestTiming
	next     int
	filled   int

	snapshot  atomic.Pointer[TelemetrySnapshot]
	rebuildMu sync.Mutex

	resources *resourceTracker

	lagNanos atomic.Int64
	stopCh   chan struct{}
	stopOnce sync.Once

	now func() time.Time
}

// NewTelemetry starts the scheduler-lag sampler. Call Shutdown to stop it;
// the sampler goroutine never keeps the process alive on its own.
func NewTelemetry() *Telemetry {
	t := &Telemetry{
		timings:   make([]RequestTiming, timingRingCapacity),
		resources: newResourceTracker(),
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
	go t.sampleLag()
	return t
}

// RequestStart records a request entering the runtime.
func (t *Telemetry) RequestStart() {
	t.total.Add(1)
	t.active.Add(1)
}

// RequestEnd records a completed request. The active counter is floored at
// zero so a stray double-end cannot drive it negative.
func (t *Telemetry) RequestEnd(start time.Time, responseBytes int) {
	if t.active.Add(-1) < 0 {
		t.active.Store(0)
	}

	timing := RequestTiming{
		DurationMs:    float64(t.now().Sub(start)) / float64(time.Millisecond),
		ResponseBytes: responseBytes,
	}

	t.timingMu.Lock()
	t.timings[t.next] = timing
	t.next = (t.next + 1) % len(t.timings)
	if t.filled < len(t.timings) {
		t.filled++
	}
	t.timingMu.Unlock()
}

// ActiveRequests reports the in-flight count. Used by the drain poller.
func (t *Telemetry) ActiveRequests() int64 {
	return t.active.Load()
}

// TotalRequests reports the all-time request count.
func (t *Telemetry) TotalRequests() uint64 {
	return t.total.Load()
}

// Snapshot returns the cached aggregate if it is younger than 100ms,
// otherwise rebuilds it. High-frequency health checks therefore cost one
// pointer load in the common case.
func (t *Telemetry) Snapshot() TelemetrySnapshot {
	if cached := t.snapshot.Load(); cached != nil && t.now().Sub(cached.TakenAt) < snapshotMaxAge {
		return *cached
	}
	return t.Refresh()
}

// Refresh recomputes the snapshot unconditionally and re-caches it.
func (t *Telemetry) Refresh() TelemetrySnapshot {
	t.rebuildMu.Lock()
	defer t.rebuildMu.Unlock()

	t.timingMu.Lock()
	durations := make([]float64, t.filled)
	var byteSum float64
	for i := 0; i < t.filled; i++ {
		durations[i] = t.timings[i].DurationMs
		byteSum += float64(t.timings[i].ResponseBytes)
	}
	t.timingMu.Unlock()

	var avgBytes float64
	if len(durations) > 0 {
		avgBytes = byteSum / float64(len(durations))
	}

	res := t.resources.Sample()

	snap := &TelemetrySnapshot{
		TotalRequests:    t.total.Load(),
		ActiveRequests:   t.active.Load(),
		P50Ms:            percentile(durations, 0.50),
		P95Ms:            percentile(durations, 0.95),
		P99Ms:            percentile(durations, 0.99),
		MemoryMB:         res.MemoryMB,
		CPUPercent:       res.CPUPercent,
		SchedulerLagMs:   float64(t.lagNanos.Load()) / float64(time.Millisecond),
		AvgResponseBytes: avgBytes,
		TakenAt:          t.now(),
	}
	t.snapshot.Store(snap)
	return *snap
}

// Shutdown stops the lag sampler. Safe to call more than once.
func (t *Telemetry) Shutdown() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
	})
}

// sampleLag measures the positive overshoot between the expected and actual
// firing interval of a fixed-period timer. A loaded scheduler delays the
// tick; the overshoot approximates event-loop lag.
func (t *Telemetry) sampleLag() {
	ticker := time.NewTicker(lagSampleInterval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ticker.C:
			nowTick := time.Now()
			lag := nowTick.Sub(last) - lagSampleInterval
			if lag < 0 {
				lag = 0
			}
			t.lagNanos.Store(int64(lag))
			last = nowTick
		case <-t.stopCh:
			return
		}
	}
}

// percentile returns the q-th percentile of values using the nearest-rank
// formula (index ceil(q*n)-1) and quickselect, since only three order
// statistics are needed per snapshot rebuild. The input slice is partitioned
// in place; callers pass a copy.
func percentile(values []float64, q float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(q*float64(n))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= n {
		rank = n - 1
	}
	return quickselect(values, rank)
}

// quickselect finds the k-th smallest element (0-based). Median-of-three
// pivoting keeps the average linear and dodges the quadratic worst case on
// sorted input.
func quickselect(a []float64, k int) float64 {
	lo, hi := 0, len(a)-1
	for lo < hi {
		p := partition(a, lo, hi)
		switch {
		case k == p:
			return a[k]
		case k < p:
			hi = p - 1
		default:
			lo = p + 1
		}
	}
	return a[k]
}

func partition(a []float64, lo, hi int) int {
	mid := lo + (hi-lo)/2
	medianOfThree(a, lo, mid, hi)
	pivot := a[hi]

	i := lo
	for j := lo; j < hi; j++ {
		if a[j] < pivot {
			a[i], a[j] = a[j], a[i]
			i++
		}
	}
	a[i], a[hi] = a[hi], a[i]
	return i
}

// medianOfThree orders a[lo], a[mid], a[hi] and leaves the median at a[hi]
// so partition can use it as the pivot.
func medianOfThree(a []float64, lo, mid, hi int) {
	if a[mid] < a[lo] {
		a[mid], a[lo] = a[lo], a[mid]
	}
	if a[hi] < a[lo] {
		a[hi], a[lo] = a[lo], a[hi]
	}
	if a[mid] < a[hi] {
		a[mid], a[hi] = a[hi], a[mid]
	}
}
