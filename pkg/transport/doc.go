// Package transport turns one logical operation into a correctly retried,
// cancelled and observed gRPC call.
//
// An Invoker owns the pieces every call goes through:
//
//   - a channel pool that spreads calls round-robin over several connections
//   - a middleware pipeline whose outbound hooks run in registration order
//     and whose inbound hooks run in reverse
//   - a retry policy consulted after every failed attempt
//   - the error mapper that turns the final failure into an *errors.SdkError
//
// # Retry loop
//
// Each logical call fixes one overall deadline when it starts. The request
// payload and metadata are produced once by the outbound middleware hooks and
// replayed byte for byte on every attempt. After a failed attempt the policy
// is asked whether to retry; once the overall deadline has passed the call
// ends with a TimeoutError no matter what the policy said. Attempts after the
// first are bounded by min(now+retry window, overall deadline).
//
// # Cancellation
//
// A caller-supplied cancellation signal (any context.Context, or a
// cancellation.Source) cancels the in-flight attempt and interrupts a pending
// retry delay. Cancellation is best effort: a request that already reached
// the server may still take effect.
//
// # Basic Usage
//
//	factory, err := transport.NewChannelFactory(cfg.Endpoint, cfg.TLS, cfg.Channels)
//	if err != nil {
//		return err
//	}
//	channels, err := pool.New(pool.Config{Size: cfg.Channels.Count, Factory: factory})
//	if err != nil {
//		return err
//	}
//	inv, err := transport.New(transport.Options{
//		Pool:           channels,
//		Policy:         retry.FixedCount{MaxAttempts: 3},
//		RequestTimeout: 5 * time.Second,
//		AuthToken:      token,
//	})
//	if err != nil {
//		return err
//	}
//	res, sdkErr := inv.Invoke(ctx, wire.MethodGet, "users", payload)
package transport
