package retry

import (
	"google.golang.org/grpc/codes"

	"github.com/relaycache/relay-go/pkg/wire"
)

// EligibilityStrategy decides whether a failed attempt may be retried at
// all. Policies decide the delay for eligible failures.
type EligibilityStrategy interface {
	IsEligibleForRetry(req Request) bool
}

// MethodEligibility is implemented by strategies that can tell whether a
// method may be re-issued at all, independent of the failure code
type MethodEligibility interface {
	IsMethodRetryable(method string) bool
}

// EligibilityFunc is an adapter to allow the use of ordinary functions as
// eligibility strategies
type EligibilityFunc func(req Request) bool

// IsEligibleForRetry implements EligibilityStrategy
func (f EligibilityFunc) IsEligibleForRetry(req Request) bool {
	return f(req)
}

// defaultRetryableCodes are failures where the server did not act on the
// request or can safely be asked again
var defaultRetryableCodes = map[codes.Code]bool{
	codes.Internal:    true,
	codes.Unavailable: true,
}

// defaultNonIdempotentMethods are never retried: re-issuing them after an
// ambiguous failure could apply the side effect twice
var defaultNonIdempotentMethods = map[string]bool{
	wire.MethodIncrement: true,
	wire.MethodPublish:   true,
}

// DefaultEligibility retries Internal and Unavailable failures of idempotent
// methods
type DefaultEligibility struct {
	// RetryableCodes overrides the retryable status codes when non-nil
	RetryableCodes map[codes.Code]bool
	// NonIdempotentMethods overrides the never-retried methods when non-nil
	NonIdempotentMethods map[string]bool
}

// IsEligibleForRetry implements EligibilityStrategy
func (e DefaultEligibility) IsEligibleForRetry(req Request) bool {
	retryable := e.RetryableCodes
	if retryable == nil {
		retryable = defaultRetryableCodes
	}
	return retryable[req.Code] && e.IsMethodRetryable(req.Method)
}

// IsMethodRetryable implements MethodEligibility
func (e DefaultEligibility) IsMethodRetryable(method string) bool {
	nonIdempotent := e.NonIdempotentMethods
	if nonIdempotent == nil {
		nonIdempotent = defaultNonIdempotentMethods
	}
	return !nonIdempotent[method]
}

func eligible(strategy EligibilityStrategy, req Request) bool {
	if strategy == nil {
		strategy = DefaultEligibility{}
	}
	return strategy.IsEligibleForRetry(req)
}

// methodRetryable asks strategy whether method may be re-issued. Strategies
// without MethodEligibility are asked about an Unavailable failure of the
// method, the least ambiguous retryable outcome.
func methodRetryable(strategy EligibilityStrategy, req Request) bool {
	if strategy == nil {
		strategy = DefaultEligibility{}
	}
	if m, ok := strategy.(MethodEligibility); ok {
		return m.IsMethodRetryable(req.Method)
	}
	asked := req
	asked.Code = codes.Unavailable
	return strategy.IsEligibleForRetry(asked)
}
