// Package utils holds test helpers shared across packages.
package utils

import (
	"runtime"
	"strings"
	"testing"
	"time"
)

// GoroutineLeakDetector fails a test when goroutines started during it are
// still running at Check
type GoroutineLeakDetector struct {
	t              testing.TB
	initialCount   int
	allowedGrowth  int
	checkInterval  time.Duration
	stabilizeDelay time.Duration
	ignore         []string
}

// NewGoroutineLeakDetector creates a new goroutine leak detector. Goroutines
// owned by the gRPC runtime are ignored by default.
func NewGoroutineLeakDetector(t testing.TB) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		t:              t,
		checkInterval:  20 * time.Millisecond,
		stabilizeDelay: 200 * time.Millisecond,
		ignore: []string{
			"google.golang.org/grpc/internal/grpcsync",
			"google.golang.org/grpc/internal/transport.(*controlBuffer)",
			"go.opentelemetry.io/otel/sdk/trace.(*batchSpanProcessor)",
		},
	}
}

// Start records the initial goroutine count
func (d *GoroutineLeakDetector) Start() {
	time.Sleep(d.stabilizeDelay)
	d.initialCount = d.count()
}

// Check polls until the goroutine count is back within the allowed growth
// or the stabilize delay has passed, then reports a leak with the stacks of
// every running goroutine.
func (d *GoroutineLeakDetector) Check() {
	d.t.Helper()

	deadline := time.Now().Add(d.stabilizeDelay)
	current := d.count()
	for current-d.initialCount > d.allowedGrowth && time.Now().Before(deadline) {
		time.Sleep(d.checkInterval)
		current = d.count()
	}

	leaked := current - d.initialCount
	if leaked <= d.allowedGrowth {
		return
	}
	d.t.Errorf("Goroutine leak detected: started with %d, ended with %d (leaked: %d, allowed: %d)",
		d.initialCount, current, leaked, d.allowedGrowth)
	d.t.Logf("Current goroutine stack traces:\n%s", strings.Join(d.stacks(), "\n\n"))
}

// SetAllowedGrowth sets the number of goroutines allowed to grow
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// SetStabilizeDelay bounds how long Start and Check wait for goroutines to
// settle
func (d *GoroutineLeakDetector) SetStabilizeDelay(delay time.Duration) *GoroutineLeakDetector {
	d.stabilizeDelay = delay
	return d
}

// Ignore excludes goroutines whose stack contains any of the substrings
func (d *GoroutineLeakDetector) Ignore(substrings ...string) *GoroutineLeakDetector {
	d.ignore = append(d.ignore, substrings...)
	return d
}

func (d *GoroutineLeakDetector) count() int {
	return len(d.stacks())
}

// stacks returns the stack of every goroutine not matched by the ignore list
func (d *GoroutineLeakDetector) stacks() []string {
	buf := make([]byte, 1<<20)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}

	var kept []string
	for _, g := range strings.Split(string(buf), "\n\n") {
		if g == "" || d.ignored(g) {
			continue
		}
		kept = append(kept, g)
	}
	return kept
}

func (d *GoroutineLeakDetector) ignored(stack string) bool {
	for _, s := range d.ignore {
		if strings.Contains(stack, s) {
			return true
		}
	}
	return false
}
