// Package retry contains the retry policies consulted after a failed
// attempt.
//
// A Policy only decides whether and when to retry. The overall deadline of
// the call is enforced by the caller: once it has passed no retry happens,
// whatever the policy returned.
package retry

import (
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
)

// Decision is the outcome of consulting a policy: either do not retry, or
// retry after a delay. The zero value is DoNotRetry.
type Decision struct {
	retry bool
	delay time.Duration
}

// DoNotRetry stops the call with the failure of the last attempt
func DoNotRetry() Decision {
	return Decision{}
}

// RetryAfter re-issues the call after d. Negative delays are treated as zero.
func RetryAfter(d time.Duration) Decision {
	if d < 0 {
		d = 0
	}
	return Decision{retry: true, delay: d}
}

// ShouldRetry reports whether the decision asks for another attempt
func (d Decision) ShouldRetry() bool {
	return d.retry
}

// Delay returns the back-off delay and whether a retry was requested
func (d Decision) Delay() (time.Duration, bool) {
	return d.delay, d.retry
}

func (d Decision) String() string {
	if !d.retry {
		return "DoNotRetry"
	}
	return fmt.Sprintf("RetryAfter(%v)", d.delay)
}

// Request describes a failed attempt
type Request struct {
	// Code is the status code of the failed attempt
	Code codes.Code
	// Method is the full gRPC method name
	Method string
	// AttemptNumber is 0 after the first failure and grows by one per retry
	AttemptNumber int
	// OverallDeadline is the absolute deadline of the logical call
	OverallDeadline time.Time
	// Now is the caller's clock reading when the attempt failed. Zero means
	// time.Now.
	Now time.Time
}

func (r Request) now() time.Time {
	if r.Now.IsZero() {
		return time.Now()
	}
	return r.Now
}

// Policy decides whether a failed attempt is retried
type Policy interface {
	DetermineWhenToRetry(req Request) Decision
}

// PolicyFunc is an adapter to allow the use of ordinary functions as policies
type PolicyFunc func(req Request) Decision

// DetermineWhenToRetry implements Policy
func (f PolicyFunc) DetermineWhenToRetry(req Request) Decision {
	return f(req)
}

// RetryWindower is implemented by policies that bound each retried attempt
// by its own window. Attempts after the first get a deadline of
// min(now+window, overall deadline).
type RetryWindower interface {
	RetryWindow() time.Duration
}

// Observer is notified of every retry that is about to be scheduled
type Observer interface {
	OnRetry(method string, attempt int, code codes.Code, delay time.Duration)
}

// NeverRetry never retries
type NeverRetry struct{}

// DetermineWhenToRetry implements Policy
func (NeverRetry) DetermineWhenToRetry(Request) Decision {
	return DoNotRetry()
}
