package runtime

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

// resourceTracker samples coarse CPU and memory usage for telemetry
// snapshots. CPU percent is derived from the delta of cumulative process CPU
// seconds over the wall-clock delta between consecutive samples, so the first
// sample always reports zero.
type resourceTracker struct {
	mu             sync.Mutex
	samples        []metrics.Sample
	lastCPUSeconds float64
	lastSample     time.Time
	numCPU         float64
}

func newResourceTracker() *resourceTracker {
	return &resourceTracker{
		samples: []metrics.Sample{{Name: "/sched/cpu:seconds"}},
		numCPU:  float64(runtime.NumCPU()),
	}
}

type resourceSample struct {
	CPUPercent float64
	MemoryMB   float64
}

func (r *resourceTracker) Sample() resourceSample {
	if r == nil {
		return resourceSample{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	metrics.Read(r.samples)
	sample := r.samples[0]
	haveCPU := sample.Value.Kind() == metrics.KindFloat64
	var cpuSeconds float64
	if haveCPU {
		cpuSeconds = sample.Value.Float64()
	}
	now := time.Now()

	var cpuPercent float64
	if haveCPU && !r.lastSample.IsZero() {
		deltaCPU := cpuSeconds - r.lastCPUSeconds
		deltaWall := now.Sub(r.lastSample).Seconds()
		if deltaWall > 0 && r.numCPU > 0 {
			cpuPercent = (deltaCPU / deltaWall) / r.numCPU * 100
		}
	}
	if cpuPercent < 0 {
		cpuPercent = 0
	}
	if cpuPercent > 100 {
		cpuPercent = 100
	}

	if haveCPU {
		r.lastCPUSeconds = cpuSeconds
	}
	r.lastSample = now

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return resourceSample{
		CPUPercent: cpuPercent,
		MemoryMB:   float64(mem.Alloc) / (1 << 20),
	}
}
