package retry

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
	"google.golang.org/grpc/codes"

	"github.com/relaycache/relay-go/pkg/config"
)

// FixedCount retries eligible failures immediately, up to MaxAttempts
// retries per logical call.
type FixedCount struct {
	MaxAttempts int
	Eligibility EligibilityStrategy
}

// DetermineWhenToRetry implements Policy
func (s FixedCount) DetermineWhenToRetry(req Request) Decision {
	if !eligible(s.Eligibility, req) || req.AttemptNumber >= s.MaxAttempts {
		return DoNotRetry()
	}
	return RetryAfter(0)
}

// FixedTimeout retries eligible failures after a fixed, jittered delay for
// as long as the overall deadline allows. Every retried attempt gets its own
// ResponseDataReceivedTimeout window.
type FixedTimeout struct {
	RetryDelayInterval          time.Duration
	ResponseDataReceivedTimeout time.Duration
	// Jitter spreads the delay by +/- this fraction, e.g. 0.1
	Jitter      float64
	Eligibility EligibilityStrategy
}

// DetermineWhenToRetry implements Policy. An attempt that ran out of its
// ResponseDataReceivedTimeout window is retried like an eligible failure as
// long as the eligibility strategy allows re-issuing the method.
func (s FixedTimeout) DetermineWhenToRetry(req Request) Decision {
	if !eligible(s.Eligibility, req) && !s.windowExpired(req) {
		return DoNotRetry()
	}
	return RetryAfter(jitter(s.RetryDelayInterval, s.Jitter))
}

// RetryWindow implements RetryWindower
func (s FixedTimeout) RetryWindow() time.Duration {
	return s.ResponseDataReceivedTimeout
}

func (s FixedTimeout) windowExpired(req Request) bool {
	return s.ResponseDataReceivedTimeout > 0 &&
		req.Code == codes.DeadlineExceeded &&
		methodRetryable(s.Eligibility, req) &&
		(req.OverallDeadline.IsZero() || req.now().Before(req.OverallDeadline))
}

func jitter(d time.Duration, fraction float64) time.Duration {
	if d <= 0 || fraction <= 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * fraction
	return time.Duration(float64(d) * (1 + spread))
}

// ExponentialBackoff retries eligible failures with exponentially growing,
// randomized delays, up to MaxAttempts retries (unbounded if zero).
type ExponentialBackoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// RandomizationFactor defaults to backoff.DefaultRandomizationFactor
	RandomizationFactor float64
	MaxAttempts         int
	Eligibility         EligibilityStrategy
}

// DetermineWhenToRetry implements Policy
func (s ExponentialBackoff) DetermineWhenToRetry(req Request) Decision {
	if !eligible(s.Eligibility, req) {
		return DoNotRetry()
	}
	if s.MaxAttempts > 0 && req.AttemptNumber >= s.MaxAttempts {
		return DoNotRetry()
	}
	return RetryAfter(s.delayFor(req.AttemptNumber))
}

// delayFor returns the delay before retry number attempt+1. The policy is
// shared by concurrent calls, so the back-off state is rebuilt per decision.
func (s ExponentialBackoff) delayFor(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	if s.InitialDelay > 0 {
		b.InitialInterval = s.InitialDelay
	}
	if s.MaxDelay > 0 {
		b.MaxInterval = s.MaxDelay
	}
	if s.Multiplier >= 1 {
		b.Multiplier = s.Multiplier
	}
	if s.RandomizationFactor > 0 {
		b.RandomizationFactor = s.RandomizationFactor
	}
	b.MaxElapsedTime = 0
	b.Reset()

	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

// FromConfig builds the policy selected by the retry configuration
func FromConfig(cfg config.RetryConfig) (Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Strategy {
	case "", config.StrategyNever:
		return NeverRetry{}, nil
	case config.StrategyFixedCount:
		return FixedCount{MaxAttempts: cfg.MaxAttempts}, nil
	case config.StrategyFixedTimeout:
		return FixedTimeout{
			RetryDelayInterval:          cfg.RetryDelayInterval,
			ResponseDataReceivedTimeout: cfg.ResponseDataReceivedTimeout,
			Jitter:                      cfg.Jitter,
		}, nil
	case config.StrategyExponential:
		return ExponentialBackoff{
			InitialDelay: cfg.InitialDelay,
			MaxDelay:     cfg.MaxDelay,
			Multiplier:   cfg.Multiplier,
			MaxAttempts:  cfg.MaxAttempts,
		}, nil
	default:
		return nil, fmt.Errorf("retry: unknown strategy %q", cfg.Strategy)
	}
}
