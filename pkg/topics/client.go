// Package topics implements publish and subscribe on top of the transport
// core. Publishing is a unary call that is never retried; a subscription is
// a server stream that yields items until it is closed or the server ends
// it. Resuming after a broken stream is left to the caller, who can pass the
// last sequence number seen to SubscribeFrom.
package topics

import (
	"context"
	"errors"

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
}

// Client publishes to and subscribes on topics
type Client struct {
	inv      *transport.Invoker
	delivery relayerrors.Delivery
}

// New creates a Client
func New(opts Options) (*Client, error) {
	if opts.Invoker == nil {
		return nil, errors.New("topics: invoker is required")
	}
	delivery := opts.Delivery
	if delivery == nil {
		delivery = relayerrors.Value()
	}
	return &Client{inv: opts.Invoker, delivery: delivery}, nil
}

// PublishResponse is one of *PublishSuccess or *PublishError
type PublishResponse interface {
	isPublishResponse()
}

// PublishSuccess reports that the server accepted the value
type PublishSuccess struct{}

// PublishError holds the failure of a Publish in value delivery mode
type PublishError struct {
	err *relayerrors.SdkError
}

// Err returns the mapped error
func (r *PublishError) Err() *relayerrors.SdkError { return r.err }

func (r *PublishError) Error() string { return r.err.Error() }

func (*PublishSuccess) isPublishResponse() {}
func (*PublishError) isPublishResponse()   {}

// SubscribeResponse is one of *Subscription or *SubscribeError
type SubscribeResponse interface {
	isSubscribeResponse()
}

// SubscribeError holds the failure of a Subscribe in value delivery mode
type SubscribeError struct {
	err *relayerrors.SdkError
}

// Err returns the mapped error
func (r *SubscribeError) Err() *relayerrors.SdkError { return r.err }

func (r *SubscribeError) Error() string { return r.err.Error() }

func (*Subscription) isSubscribeResponse()   {}
func (*SubscribeError) isSubscribeResponse() {}

// Publish sends value to every subscriber of topic
func (c *Client) Publish(ctx context.Context, cacheName, topic string, value wire.TopicValue, opts ...transport.CallOption) (PublishResponse, error) {
	if sdkErr := validateTopic(cacheName, topic); sdkErr != nil {
		return c.publishError(sdkErr)
	}

	req := &wire.PublishRequest{CacheName: cacheName, Topic: topic, Value: value}
	if _, sdkErr := c.inv.Invoke(ctx, wire.MethodPublish, cacheName, req.Marshal(), opts...); sdkErr != nil {
		return c.publishError(sdkErr)
	}
	return &PublishSuccess{}, nil
}

// Subscribe opens a subscription delivering values published from now on
func (c *Client) Subscribe(ctx context.Context, cacheName, topic string, opts ...transport.CallOption) (SubscribeResponse, error) {
	return c.SubscribeFrom(ctx, cacheName, topic, 0, opts...)
}

// SubscribeFrom opens a subscription that first replays the values
// published after sequence number after, as far as the server retains them.
func (c *Client) SubscribeFrom(ctx context.Context, cacheName, topic string, after uint64, opts ...transport.CallOption) (SubscribeResponse, error) {
	if sdkErr := validateTopic(cacheName, topic); sdkErr != nil {
		return c.subscribeError(sdkErr)
	}

	req := &wire.SubscriptionRequest{CacheName: cacheName, Topic: topic, ResumeAtSequence: after}
	stream, sdkErr := c.inv.Stream(ctx, wire.MethodSubscribe, cacheName, req.Marshal(), opts...)
	if sdkErr != nil {
		return c.subscribeError(sdkErr)
	}
	return newSubscription(stream, cacheName, topic, after), nil
}

// Close releases the channels of the underlying invoker
func (c *Client) Close() error {
	return c.inv.Close()
}

func validateTopic(cacheName, topic string) *relayerrors.SdkError {
	if sdkErr := relayerrors.ValidateResourceName("cache name", cacheName); sdkErr != nil {
		return sdkErr
	}
	return relayerrors.ValidateResourceName("topic name", topic)
}

func (c *Client) publishError(err *relayerrors.SdkError) (PublishResponse, error) {
	return relayerrors.Deliver(c.delivery, err, func(e *relayerrors.SdkError) PublishResponse {
		return &PublishError{err: e}
	})
}

func (c *Client) subscribeError(err *relayerrors.SdkError) (SubscribeResponse, error) {
	return relayerrors.Deliver(c.delivery, err, func(e *relayerrors.SdkError) SubscribeResponse {
		return &SubscribeError{err: e}
	})
}
