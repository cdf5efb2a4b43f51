// Package relay is the Go client for the relay cache and pub/sub service.
//
// The client is a thin surface over a resilient call core. Every operation
// runs as one logical call: request middlewares run once, the encoded
// request is sent on the next channel of a round-robin pool, and failed
// attempts are retried according to the configured policy until it gives up
// or the overall deadline passes. The outcome is exactly one response or one
// mapped error.
//
// # Overview
//
// The SDK consists of several sub-packages:
//
//   - pkg/cache: Get, Set, Delete and Increment
//   - pkg/topics: Publish and Subscribe
//   - pkg/transport: the retrying invoker and server streams
//   - pkg/retry: retry policies and eligibility
//   - pkg/middleware: the per-call handler pipeline
//   - pkg/pool: the channel pool
//   - pkg/errors: the error taxonomy and delivery modes
//   - pkg/cancellation: caller-driven cancellation signals
//   - pkg/observability: Prometheus metrics and OpenTelemetry tracing
//   - pkg/config, pkg/auth, pkg/logging: configuration and credentials
//
// # Creating a Client
//
//	import (
//	    "context"
//	    "time"
//
//	    relay "github.com/relaycache/relay-go"
//	    "github.com/relaycache/relay-go/pkg/cache"
//	)
//
//	func main() {
//	    creds, err := relay.CredentialsFromEnvironment("RELAY_AUTH_TOKEN")
//	    if err != nil {
//	        // Handle error
//	    }
//
//	    ctx := context.Background()
//	    client, err := relay.New(ctx, relay.DefaultConfig(), creds,
//	        relay.WithDefaultTTL(time.Minute),
//	    )
//	    if err != nil {
//	        // Handle error
//	    }
//	    defer client.Close(ctx)
//
//	    resp, _ := client.Cache.Get(ctx, "users", []byte("alice"))
//	    if hit, ok := resp.(*cache.GetHit); ok {
//	        println(hit.ValueString())
//	    }
//	}
//
// # Errors
//
// With the default "value" error mode failures arrive as the error variant
// of each response union and the error result is nil. With "throw" the
// response is nil and the error result is an *errors.SdkError. Both carry
// the same kind, message and transport code.
package relay
