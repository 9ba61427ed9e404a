package runtime

import (
	"strconv"
	"sync"
	"time"

	configpkg "github.com/drblury/reqflow/internal/runtime/config"
)

// KeyFunc derives the rate-limit key for an envelope. The default keys on the
// caller address.
type KeyFunc func(RequestEnvelope) string

// tokenBucket is one key's budget. Tokens refill continuously, scaled by the
// elapsed fraction of the window, so a full burst is available again exactly
// one quiet window after exhaustion.
type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// RateLimiter is the per-key token-bucket admission controller. The bucket
// map is guarded by one mutex shared with the background sweeper; both sides
// hold it only for map surgery, never across time computation on other keys.
type RateLimiter struct {
	conf  configpkg.RateLimitConfig
	keyFn KeyFunc
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*tokenBucket

	stopCh chan struct{}
	once   sync.Once
}

// NewRateLimiter builds a limiter and starts its housekeeping sweeper. The
// sweeper only frees idle buckets; it never blocks request handling and the
// goroutine exits on Close.
func NewRateLimiter(conf configpkg.RateLimitConfig, keyFn KeyFunc) *RateLimiter {
	if keyFn == nil {
		keyFn = func(env RequestEnvelope) string { return env.RemoteAddr }
	}
	rl := &RateLimiter{
		conf:    conf,
		keyFn:   keyFn,
		now:     time.Now,
		buckets: make(map[string]*tokenBucket),
		stopCh:  make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Allow consumes one token for the envelope's key, reporting whether the
// request may proceed. Unseen keys get a fresh bucket with one token already
// consumed — unless the tracked-key count is at MaxKeys, in which case the
// request is denied outright to bound memory.
func (rl *RateLimiter) Allow(env RequestEnvelope) bool {
	key := rl.keyFn(env)
	now := rl.now()
	capacity := float64(rl.conf.MaxRequests)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, ok := rl.buckets[key]
	if !ok {
		if len(rl.buckets) >= rl.conf.MaxKeys {
			return false
		}
		rl.buckets[key] = &tokenBucket{tokens: capacity - 1, lastRefill: now}
		return true
	}

	elapsed := now.Sub(bucket.lastRefill)
	if elapsed > 0 {
		bucket.tokens += elapsed.Seconds() / rl.conf.Window.Seconds() * capacity
		if bucket.tokens > capacity {
			bucket.tokens = capacity
		}
	}
	bucket.lastRefill = now

	if bucket.tokens < 1 {
		return false
	}
	bucket.tokens--
	return true
}

// RetryAfter is the header value attached to 429 responses.
func (rl *RateLimiter) RetryAfter() string {
	return strconv.Itoa(rl.conf.RetryAfterSeconds())
}

// TrackedKeys reports the current bucket count. For diagnostics and tests.
func (rl *RateLimiter) TrackedKeys() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(rl.conf.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep(rl.now())
		case <-rl.stopCh:
			return
		}
	}
}

// sweep drops buckets idle longer than twice the window.
func (rl *RateLimiter) sweep(now time.Time) {
	idleCutoff := 2 * rl.conf.Window

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, bucket := range rl.buckets {
		if now.Sub(bucket.lastRefill) > idleCutoff {
			delete(rl.buckets, key)
		}
	}
}

// Close stops the sweeper. Idempotent.
func (rl *RateLimiter) Close() {
	rl.once.Do(func() {
		close(rl.stopCh)
	})
}
