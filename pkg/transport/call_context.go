package transport

import (
	"time"

	"google.golang.org/grpc/metadata"
)

// CallContext is the state of one logical call. It is owned by a single
// Invoke and discarded when the call resolves.
type CallContext struct {
	method          string
	resource        string
	overallDeadline time.Time
	attemptDeadline time.Time
	attemptNumber   int
	payload         []byte
	metadata        metadata.MD
}

func newCallContext(method, resource string, overall time.Time, payload []byte, md metadata.MD) *CallContext {
	return &CallContext{
		method:          method,
		resource:        resource,
		overallDeadline: overall,
		attemptDeadline: overall,
		payload:         append([]byte(nil), payload...),
		metadata:        md.Copy(),
	}
}

// Method returns the full gRPC method name
func (c *CallContext) Method() string { return c.method }

// Resource returns the cache or topic namespace the call targets
func (c *CallContext) Resource() string { return c.resource }

// OverallDeadline is fixed when the call starts and never extended
func (c *CallContext) OverallDeadline() time.Time { return c.overallDeadline }

// AttemptDeadline is the deadline of the current attempt; never later than
// the overall deadline
func (c *CallContext) AttemptDeadline() time.Time { return c.attemptDeadline }

// AttemptNumber is 0 for the first attempt and grows by one per retry
func (c *CallContext) AttemptNumber() int { return c.attemptNumber }

// Payload returns a copy of the saved request bytes
func (c *CallContext) Payload() []byte { return append([]byte(nil), c.payload...) }

// Metadata returns a copy of the saved outbound metadata
func (c *CallContext) Metadata() metadata.MD { return c.metadata.Copy() }

// scheduleRetry counts the retry the policy asked for
func (c *CallContext) scheduleRetry() {
	c.attemptNumber++
}

// armRetry sets the deadline of a retried attempt to min(now+window,
// overall). A non-positive window uses the overall deadline.
func (c *CallContext) armRetry(now time.Time, window time.Duration) {
	c.attemptDeadline = c.overallDeadline
	if window > 0 {
		if d := now.Add(window); d.Before(c.overallDeadline) {
			c.attemptDeadline = d
		}
	}
}
