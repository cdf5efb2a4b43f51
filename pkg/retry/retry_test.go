package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"

	"github.com/relaycache/relay-go/pkg/config"
	"github.com/relaycache/relay-go/pkg/wire"
)

func TestDecision(t *testing.T) {
	var zero Decision
	assert.False(t, zero.ShouldRetry())
	assert.Equal(t, "DoNotRetry", DoNotRetry().String())

	d := RetryAfter(10 * time.Millisecond)
	delay, ok := d.Delay()
	assert.True(t, ok)
	assert.Equal(t, 10*time.Millisecond, delay)
	assert.Equal(t, "RetryAfter(10ms)", d.String())

	delay, ok = RetryAfter(-time.Second).Delay()
	assert.True(t, ok)
	assert.Zero(t, delay)
}

func TestDefaultEligibility(t *testing.T) {
	tests := []struct {
		name   string
		code   codes.Code
		method string
		want   bool
	}{
		{"unavailable get", codes.Unavailable, wire.MethodGet, true},
		{"internal set", codes.Internal, wire.MethodSet, true},
		{"not found", codes.NotFound, wire.MethodGet, false},
		{"deadline", codes.DeadlineExceeded, wire.MethodGet, false},
		{"permission", codes.PermissionDenied, wire.MethodDelete, false},
		{"increment never", codes.Unavailable, wire.MethodIncrement, false},
		{"publish never", codes.Internal, wire.MethodPublish, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DefaultEligibility{}.IsEligibleForRetry(Request{Code: tt.code, Method: tt.method})
			assert.Equal(t, tt.want, got)
		})
	}

	custom := DefaultEligibility{RetryableCodes: map[codes.Code]bool{codes.ResourceExhausted: true}}
	assert.True(t, custom.IsEligibleForRetry(Request{Code: codes.ResourceExhausted, Method: wire.MethodGet}))
	assert.False(t, custom.IsEligibleForRetry(Request{Code: codes.Unavailable, Method: wire.MethodGet}))

	assert.True(t, DefaultEligibility{}.IsMethodRetryable(wire.MethodSet))
	assert.False(t, DefaultEligibility{}.IsMethodRetryable(wire.MethodIncrement))
}

func TestFixedCount(t *testing.T) {
	policy := FixedCount{MaxAttempts: 2}
	req := Request{Code: codes.Unavailable, Method: wire.MethodGet}

	for attempt := 0; attempt < 2; attempt++ {
		req.AttemptNumber = attempt
		assert.True(t, policy.DetermineWhenToRetry(req).ShouldRetry(), "attempt %d", attempt)
	}
	req.AttemptNumber = 2
	assert.False(t, policy.DetermineWhenToRetry(req).ShouldRetry())

	req.AttemptNumber = 0
	req.Code = codes.InvalidArgument
	assert.False(t, policy.DetermineWhenToRetry(req).ShouldRetry())
}

func TestFixedTimeout(t *testing.T) {
	policy := FixedTimeout{
		RetryDelayInterval:          100 * time.Millisecond,
		ResponseDataReceivedTimeout: time.Second,
		Jitter:                      0.1,
	}
	req := Request{Code: codes.Unavailable, Method: wire.MethodGet}

	for attempt := 0; attempt < 50; attempt++ {
		req.AttemptNumber = attempt
		delay, ok := policy.DetermineWhenToRetry(req).Delay()
		require.True(t, ok)
		assert.GreaterOrEqual(t, delay, 90*time.Millisecond)
		assert.LessOrEqual(t, delay, 110*time.Millisecond)
	}

	var windower RetryWindower = policy
	assert.Equal(t, time.Second, windower.RetryWindow())

	req.Method = wire.MethodIncrement
	assert.False(t, policy.DetermineWhenToRetry(req).ShouldRetry())

	t.Run("expired window", func(t *testing.T) {
		req := Request{
			Code:            codes.DeadlineExceeded,
			Method:          wire.MethodGet,
			OverallDeadline: time.Now().Add(time.Minute),
		}
		assert.True(t, policy.DetermineWhenToRetry(req).ShouldRetry())

		req.OverallDeadline = time.Now().Add(-time.Second)
		assert.False(t, policy.DetermineWhenToRetry(req).ShouldRetry())

		req.OverallDeadline = time.Now().Add(time.Minute)
		req.Method = wire.MethodPublish
		assert.False(t, policy.DetermineWhenToRetry(req).ShouldRetry())
	})

	t.Run("expired window honours eligibility", func(t *testing.T) {
		req := Request{
			Code:            codes.DeadlineExceeded,
			Method:          wire.MethodSet,
			OverallDeadline: time.Now().Add(time.Minute),
		}

		never := FixedTimeout{
			RetryDelayInterval:          time.Millisecond,
			ResponseDataReceivedTimeout: time.Second,
			Eligibility:                 EligibilityFunc(func(Request) bool { return false }),
		}
		assert.False(t, never.DetermineWhenToRetry(req).ShouldRetry())

		setUnsafe := FixedTimeout{
			RetryDelayInterval:          time.Millisecond,
			ResponseDataReceivedTimeout: time.Second,
			Eligibility: DefaultEligibility{
				NonIdempotentMethods: map[string]bool{wire.MethodSet: true},
			},
		}
		assert.False(t, setUnsafe.DetermineWhenToRetry(req).ShouldRetry())

		req.Method = wire.MethodGet
		assert.True(t, setUnsafe.DetermineWhenToRetry(req).ShouldRetry())
	})

	t.Run("expired window uses caller clock", func(t *testing.T) {
		overall := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		req := Request{
			Code:            codes.DeadlineExceeded,
			Method:          wire.MethodGet,
			OverallDeadline: overall,
			Now:             overall.Add(-time.Second),
		}
		assert.True(t, policy.DetermineWhenToRetry(req).ShouldRetry())

		req.Now = overall
		assert.False(t, policy.DetermineWhenToRetry(req).ShouldRetry())
	})
}

func TestExponentialBackoff(t *testing.T) {
	policy := ExponentialBackoff{
		InitialDelay:        10 * time.Millisecond,
		MaxDelay:            40 * time.Millisecond,
		Multiplier:          2,
		RandomizationFactor: 0.01,
		MaxAttempts:         5,
	}
	req := Request{Code: codes.Internal, Method: wire.MethodGet}

	expected := []time.Duration{10, 20, 40, 40, 40}
	for attempt, want := range expected {
		req.AttemptNumber = attempt
		delay, ok := policy.DetermineWhenToRetry(req).Delay()
		require.True(t, ok, "attempt %d", attempt)
		assert.InDelta(t, float64(want*time.Millisecond), float64(delay), float64(want*time.Millisecond)/50, "attempt %d", attempt)
	}

	req.AttemptNumber = 5
	assert.False(t, policy.DetermineWhenToRetry(req).ShouldRetry())
}

func TestPolicyFunc(t *testing.T) {
	calls := 0
	policy := PolicyFunc(func(req Request) Decision {
		calls++
		if req.AttemptNumber < 2 {
			return RetryAfter(10 * time.Millisecond)
		}
		return DoNotRetry()
	})

	assert.True(t, policy.DetermineWhenToRetry(Request{AttemptNumber: 0}).ShouldRetry())
	assert.False(t, policy.DetermineWhenToRetry(Request{AttemptNumber: 2}).ShouldRetry())
	assert.Equal(t, 2, calls)
	assert.False(t, NeverRetry{}.DetermineWhenToRetry(Request{Code: codes.Unavailable}).ShouldRetry())
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.RetryConfig
		want Policy
	}{
		{"never", config.RetryConfig{Strategy: config.StrategyNever}, NeverRetry{}},
		{"empty", config.RetryConfig{}, NeverRetry{}},
		{"fixed count", config.RetryConfig{Strategy: config.StrategyFixedCount, MaxAttempts: 3}, FixedCount{MaxAttempts: 3}},
		{
			"fixed timeout",
			config.RetryConfig{Strategy: config.StrategyFixedTimeout, RetryDelayInterval: time.Millisecond, ResponseDataReceivedTimeout: time.Second},
			FixedTimeout{RetryDelayInterval: time.Millisecond, ResponseDataReceivedTimeout: time.Second},
		},
		{
			"exponential",
			config.RetryConfig{Strategy: config.StrategyExponential, InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2},
			ExponentialBackoff{InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromConfig(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := FromConfig(config.RetryConfig{Strategy: "forever"})
	assert.Error(t, err)

	defaults, err := FromConfig(config.DefaultConfig().Retry)
	require.NoError(t, err)
	assert.Equal(t, FixedCount{MaxAttempts: 3}, defaults)
}
