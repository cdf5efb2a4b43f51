package topics

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	relayerrors "github.com/relaycache/relay-go/pkg/errors"
	"github.com/relaycache/relay-go/pkg/retry"
	"github.com/relaycache/relay-go/pkg/transport"
	"github.com/relaycache/relay-go/pkg/transport/transporttest"
	"github.com/relaycache/relay-go/pkg/wire"
)

func newTestClient(t *testing.T, srv *transporttest.Server, delivery relayerrors.Delivery, opts transport.Options) *Client {
	t.Helper()
	client, err := New(Options{Invoker: srv.NewInvoker(t, opts), Delivery: delivery})
	require.NoError(t, err)
	return client
}

func TestNew(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestPublish(t *testing.T) {
	srv := transporttest.NewServer(t)
	published := make(chan *wire.PublishRequest, 1)
	srv.HandleUnary(wire.MethodPublish, func(_ context.Context, req []byte) ([]byte, error) {
		msg, err := wire.UnmarshalPublishRequest(req)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		published <- msg
		return nil, nil
	})
	client := newTestClient(t, srv, nil, transport.Options{})

	resp, err := client.Publish(context.Background(), "events", "orders", wire.TextValue("created"))
	require.NoError(t, err)
	assert.IsType(t, &PublishSuccess{}, resp)

	msg := <-published
	assert.Equal(t, "events", msg.CacheName)
	assert.Equal(t, "orders", msg.Topic)
	assert.Equal(t, "created", msg.Value.Text)
}

func TestPublishNeverRetried(t *testing.T) {
	srv := transporttest.NewServer(t)
	srv.HandleUnary(wire.MethodPublish, func(context.Context, []byte) ([]byte, error) {
		return nil, status.Error(codes.Unavailable, "broker restarting")
	})
	client := newTestClient(t, srv, relayerrors.Throw(), transport.Options{Policy: retry.FixedCount{MaxAttempts: 5}})

	resp, err := client.Publish(context.Background(), "events", "orders", wire.BinaryValue([]byte{1}))
	assert.Nil(t, resp)
	assert.True(t, relayerrors.IsKind(err, relayerrors.ServerUnavailableError))
	assert.Len(t, srv.Calls(), 1)
}

func TestPublishValidation(t *testing.T) {
	srv := transporttest.NewServer(t)
	client := newTestClient(t, srv, nil, transport.Options{})

	resp, err := client.Publish(context.Background(), "events", "", wire.TextValue("x"))
	require.NoError(t, err)
	failure, ok := resp.(*PublishError)
	require.True(t, ok)
	assert.Contains(t, failure.Error(), "topic name")
	assert.Empty(t, srv.Calls())
}

func serveItems(srv *transporttest.Server, items []*wire.SubscriptionItem, thenBlock bool) {
	srv.HandleStream(wire.MethodSubscribe, func(ctx context.Context, req []byte, send func([]byte) error) error {
		sub, err := wire.UnmarshalSubscriptionRequest(req)
		if err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}
		for _, item := range items {
			if item.Kind == wire.ItemValue && item.Sequence <= sub.ResumeAtSequence {
				continue
			}
			if err := send(item.Marshal()); err != nil {
				return err
			}
		}
		if thenBlock {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
}

func TestSubscribe(t *testing.T) {
	srv := transporttest.NewServer(t)
	serveItems(srv, []*wire.SubscriptionItem{
		{Kind: wire.ItemValue, Sequence: 1, Value: wire.TextValue("one")},
		{Kind: wire.ItemHeartbeat},
		{Kind: wire.ItemValue, Sequence: 2, Value: wire.BinaryValue([]byte("two"))},
		{Kind: wire.ItemDiscontinuity, LastSequence: 2, NewSequence: 5},
	}, false)
	client := newTestClient(t, srv, nil, transport.Options{})
	ctx := context.Background()

	resp, err := client.Subscribe(ctx, "events", "orders")
	require.NoError(t, err)
	sub, ok := resp.(*Subscription)
	require.True(t, ok, "expected a subscription, got %T", resp)
	defer sub.Close()

	var events []Event
	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		events = append(events, ev)
	}

	require.Len(t, events, 4)
	assert.Equal(t, "one", events[0].(Item).Text())
	assert.IsType(t, Heartbeat{}, events[1])
	assert.Equal(t, []byte("two"), events[2].(Item).Bytes())
	assert.Equal(t, Discontinuity{LastSequence: 2, NewSequence: 5}, events[3])
	assert.Equal(t, uint64(5), sub.LastSequence())
}

func TestSubscribeFrom(t *testing.T) {
	srv := transporttest.NewServer(t)
	serveItems(srv, []*wire.SubscriptionItem{
		{Kind: wire.ItemValue, Sequence: 1, Value: wire.TextValue("one")},
		{Kind: wire.ItemValue, Sequence: 2, Value: wire.TextValue("two")},
		{Kind: wire.ItemValue, Sequence: 3, Value: wire.TextValue("three")},
	}, false)
	client := newTestClient(t, srv, relayerrors.Throw(), transport.Options{})
	ctx := context.Background()

	resp, err := client.SubscribeFrom(ctx, "events", "orders", 2)
	require.NoError(t, err)
	sub := resp.(*Subscription)
	assert.Equal(t, uint64(2), sub.LastSequence())

	ev, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), ev.(Item).Sequence)

	_, err = sub.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestSubscriptionNextContext(t *testing.T) {
	srv := transporttest.NewServer(t)
	serveItems(srv, []*wire.SubscriptionItem{
		{Kind: wire.ItemValue, Sequence: 1, Value: wire.TextValue("one")},
	}, true)
	client := newTestClient(t, srv, nil, transport.Options{})

	resp, err := client.Subscribe(context.Background(), "events", "orders")
	require.NoError(t, err)
	sub := resp.(*Subscription)

	_, err = sub.Next(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = sub.Next(ctx)
	assert.True(t, relayerrors.IsKind(err, relayerrors.CancelledError))

	// the subscription stays closed
	_, err = sub.Next(context.Background())
	assert.True(t, relayerrors.IsKind(err, relayerrors.CancelledError))
	assert.NoError(t, sub.Close())
}

func TestSubscribeStreamFailure(t *testing.T) {
	srv := transporttest.NewServer(t)
	srv.HandleStream(wire.MethodSubscribe, func(context.Context, []byte, func([]byte) error) error {
		return status.Error(codes.NotFound, "no such cache")
	})
	client := newTestClient(t, srv, nil, transport.Options{})

	resp, err := client.Subscribe(context.Background(), "missing", "orders")
	require.NoError(t, err)
	sub := resp.(*Subscription)

	_, err = sub.Next(context.Background())
	assert.True(t, relayerrors.IsKind(err, relayerrors.NotFoundError))
}
