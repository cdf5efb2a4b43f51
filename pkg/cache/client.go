// Package cache implements the key/value operations on top of the transport
// core. Every operation validates its arguments before anything is sent;
// invalid requests fail immediately without reaching the retry loop.
//
// Failures are delivered according to the client's delivery mode: in value
// mode they arrive as the error variant of the response union with a nil
// error, in throw mode as the *errors.SdkError error result.
//
//	resp, err := client.Get(ctx, "users", []byte("alice"))
//	switch r := resp.(type) {
//	case *cache.GetHit:
//		fmt.Println(r.ValueString())
//	case *cache.GetMiss:
//		fmt.Println("not cached")
//	case *cache.GetError:
//		return r.Err()
//	}
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	relayerrors "github.com/relaycache/relay-go/pkg/errors"
	"github.com/relaycache/relay-go/pkg/transport"
	"github.com/relaycache/relay-go/pkg/wire"
)

// Options configures a Client
type Options struct {
	// Invoker issues the calls. Required.
	Invoker *transport.Invoker
	// Delivery selects value or throw delivery; value if nil
	Delivery relayerrors.Delivery
	// DefaultTTL applies when an operation passes a zero TTL. Zero leaves
	// the choice to the server.
	DefaultTTL time.Duration
}

// Client performs cache operations. It is safe for concurrent use.
type Client struct {
	inv        *transport.Invoker
	delivery   relayerrors.Delivery
	defaultTTL time.Duration
}

// New creates a Client
func New(opts Options) (*Client, error) {
	if opts.Invoker == nil {
		return nil, errors.New("cache: invoker is required")
	}
	if sdkErr := relayerrors.ValidateTTL(opts.DefaultTTL); sdkErr != nil {
		return nil, sdkErr
	}
	delivery := opts.Delivery
	if delivery == nil {
		delivery = relayerrors.Value()
	}
	return &Client{
		inv:        opts.Invoker,
		delivery:   delivery,
		defaultTTL: opts.DefaultTTL,
	}, nil
}

// Get reads key from cacheName
func (c *Client) Get(ctx context.Context, cacheName string, key []byte, opts ...transport.CallOption) (GetResponse, error) {
	if sdkErr := validateKeyed(cacheName, key); sdkErr != nil {
		return c.getError(sdkErr)
	}

	res, sdkErr := c.inv.Invoke(ctx, wire.MethodGet, cacheName, (&wire.GetRequest{Key: key}).Marshal(), opts...)
	if sdkErr != nil {
		return c.getError(sdkErr)
	}
	msg, err := wire.UnmarshalGetResponse(res.Payload)
	if err != nil {
		return c.getError(relayerrors.Unexpected(err))
	}

	switch msg.Result {
	case wire.ResultHit:
		return &GetHit{value: msg.Body}, nil
	case wire.ResultMiss:
		return &GetMiss{}, nil
	default:
		return c.getError(relayerrors.Unexpected(
			fmt.Errorf("cache: unexpected get result %s: %s", msg.Result, msg.Message)))
	}
}

// Set stores value under key. A zero ttl uses the client's default TTL.
func (c *Client) Set(ctx context.Context, cacheName string, key, value []byte, ttl time.Duration, opts ...transport.CallOption) (SetResponse, error) {
	if sdkErr := validateKeyed(cacheName, key); sdkErr != nil {
		return c.setError(sdkErr)
	}
	if sdkErr := relayerrors.ValidateTTL(ttl); sdkErr != nil {
		return c.setError(sdkErr)
	}

	req := &wire.SetRequest{Key: key, Body: value, TTLMillis: c.ttlMillis(ttl)}
	if _, sdkErr := c.inv.Invoke(ctx, wire.MethodSet, cacheName, req.Marshal(), opts...); sdkErr != nil {
		return c.setError(sdkErr)
	}
	return &SetSuccess{}, nil
}

// Delete removes key
func (c *Client) Delete(ctx context.Context, cacheName string, key []byte, opts ...transport.CallOption) (DeleteResponse, error) {
	if sdkErr := validateKeyed(cacheName, key); sdkErr != nil {
		return c.deleteError(sdkErr)
	}

	if _, sdkErr := c.inv.Invoke(ctx, wire.MethodDelete, cacheName, (&wire.DeleteRequest{Key: key}).Marshal(), opts...); sdkErr != nil {
		return c.deleteError(sdkErr)
	}
	return &DeleteSuccess{}, nil
}

// Increment adds amount to the integer stored under key, creating it at
// zero first if needed. Increments are never retried after an ambiguous
// failure by the default retry eligibility.
func (c *Client) Increment(ctx context.Context, cacheName string, key []byte, amount int64, ttl time.Duration, opts ...transport.CallOption) (IncrementResponse, error) {
	if sdkErr := validateKeyed(cacheName, key); sdkErr != nil {
		return c.incrementError(sdkErr)
	}
	if sdkErr := relayerrors.ValidateTTL(ttl); sdkErr != nil {
		return c.incrementError(sdkErr)
	}

	req := &wire.IncrementRequest{Key: key, Amount: amount, TTLMillis: c.ttlMillis(ttl)}
	res, sdkErr := c.inv.Invoke(ctx, wire.MethodIncrement, cacheName, req.Marshal(), opts...)
	if sdkErr != nil {
		return c.incrementError(sdkErr)
	}
	msg, err := wire.UnmarshalIncrementResponse(res.Payload)
	if err != nil {
		return c.incrementError(relayerrors.Unexpected(err))
	}
	return &IncrementSuccess{value: msg.Value}, nil
}

// Close releases the channels of the underlying invoker
func (c *Client) Close() error {
	return c.inv.Close()
}

func (c *Client) ttlMillis(ttl time.Duration) uint64 {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	return uint64(ttl.Milliseconds())
}

func validateKeyed(cacheName string, key []byte) *relayerrors.SdkError {
	if sdkErr := relayerrors.ValidateResourceName("cache name", cacheName); sdkErr != nil {
		return sdkErr
	}
	return relayerrors.ValidateKey(key)
}

func (c *Client) getError(err *relayerrors.SdkError) (GetResponse, error) {
	return relayerrors.Deliver(c.delivery, err, func(e *relayerrors.SdkError) GetResponse {
		return &GetError{err: e}
	})
}

func (c *Client) setError(err *relayerrors.SdkError) (SetResponse, error) {
	return relayerrors.Deliver(c.delivery, err, func(e *relayerrors.SdkError) SetResponse {
		return &SetError{err: e}
	})
}

func (c *Client) deleteError(err *relayerrors.SdkError) (DeleteResponse, error) {
	return relayerrors.Deliver(c.delivery, err, func(e *relayerrors.SdkError) DeleteResponse {
		return &DeleteError{err: e}
	})
}

func (c *Client) incrementError(err *relayerrors.SdkError) (IncrementResponse, error) {
	return relayerrors.Deliver(c.delivery, err, func(e *relayerrors.SdkError) IncrementResponse {
		return &IncrementError{err: e}
	})
}
