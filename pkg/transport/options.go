package transport

import (
	"time"

	"github.com/relaycache/relay-go/pkg/cancellation"
	"github.com/relaycache/relay-go/pkg/logging"
	"github.com/relaycache/relay-go/pkg/middleware"
	"github.com/relaycache/relay-go/pkg/pool"
	"github.com/relaycache/relay-go/pkg/retry"
)

// DefaultRequestTimeout is used when Options.RequestTimeout is zero
const DefaultRequestTimeout = 5 * time.Second

// Options configures an Invoker
type Options struct {
	// Pool provides the channels calls are issued on. Required.
	Pool *pool.Pool
	// Pipeline holds the registered middlewares; may be nil
	Pipeline *middleware.Pipeline
	// Policy decides retries; NeverRetry if nil
	Policy retry.Policy
	// RetryObserver is told about every scheduled retry; optional
	RetryObserver retry.Observer
	// RetryWindow bounds retried attempts when the policy does not
	// implement retry.RetryWindower. Zero uses the overall deadline.
	RetryWindow time.Duration
	// RequestTimeout is the overall budget of one logical call
	RequestTimeout time.Duration
	// AuthToken is sent in the authorization header
	AuthToken string

	Issuer       Issuer
	StreamIssuer StreamIssuer
	Logger       logging.Logger
	RequestIDs   logging.RequestIDGenerator
	// Clock returns the current time; time.Now if nil
	Clock func() time.Time
}

// callOptions are the per-call overrides
type callOptions struct {
	signal   cancellation.Signal
	timeout  time.Duration
	metadata []string
}

// CallOption customizes a single logical call
type CallOption func(*callOptions)

// WithSignal binds an external cancellation signal to the call
func WithSignal(signal cancellation.Signal) CallOption {
	return func(o *callOptions) {
		o.signal = signal
	}
}

// WithTimeout overrides the overall request timeout for this call
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = d
	}
}

// WithMetadata appends key/value pairs to the outbound metadata
func WithMetadata(kv ...string) CallOption {
	return func(o *callOptions) {
		o.metadata = append(o.metadata, kv...)
	}
}
