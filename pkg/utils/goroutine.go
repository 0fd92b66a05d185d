// Package utils provides test helpers shared across packages.
package utils

import (
	"runtime"
	"testing"
	"time"
)

// GoroutineLeakDetector asserts that a test leaves no goroutines behind.
// Heartbeats, accept loops, and channel monitors all spawn goroutines that
// must exit with their owner; tests bracket the lifecycle with Start/Check.
type GoroutineLeakDetector struct {
	t             *testing.T
	baseline      int
	allowedGrowth int
	settle        time.Duration
}

// NewGoroutineLeakDetector creates a detector for one test.
func NewGoroutineLeakDetector(t *testing.T) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		t:      t,
		settle: 200 * time.Millisecond,
	}
}

// AllowGrowth permits up to n extra goroutines at Check time.
func (d *GoroutineLeakDetector) AllowGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// Start records the baseline goroutine count after a settle delay.
func (d *GoroutineLeakDetector) Start() {
	time.Sleep(d.settle)
	d.baseline = runtime.NumGoroutine()
}

// Check fails the test if the goroutine count stays above the baseline. The
// count is sampled several times and the minimum taken, since goroutines in
// teardown may still be winding down.
func (d *GoroutineLeakDetector) Check() {
	time.Sleep(d.settle)

	final := runtime.NumGoroutine()
	for i := 0; i < 2; i++ {
		time.Sleep(100 * time.Millisecond)
		if n := runtime.NumGoroutine(); n < final {
			final = n
		}
	}

	leaked := final - d.baseline
	if leaked > d.allowedGrowth {
		buf := make([]byte, 1<<20)
		n := runtime.Stack(buf, true)
		d.t.Errorf("goroutine leak: baseline %d, final %d (allowed growth %d)\n%s",
			d.baseline, final, d.allowedGrowth, buf[:n])
	}
}
