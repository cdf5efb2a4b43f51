package transport_test

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/relaycache/relay-go/pkg/cancellation"
	relayerrors "github.com/relaycache/relay-go/pkg/errors"
	"github.com/relaycache/relay-go/pkg/middleware"
	"github.com/relaycache/relay-go/pkg/retry"
	"github.com/relaycache/relay-go/pkg/transport"
	"github.com/relaycache/relay-go/pkg/transport/transporttest"
	"github.com/relaycache/relay-go/pkg/wire"
)

func TestGRPCUnaryRoundTrip(t *testing.T) {
	srv := transporttest.NewServer(t)
	srv.HandleUnary(wire.MethodGet, func(ctx context.Context, req []byte) ([]byte, error) {
		_ = grpc.SetHeader(ctx, metadata.Pairs("served-by", "bufnet"))
		return append([]byte("echo:"), req...), nil
	})
	inv := srv.NewInvoker(t, transport.Options{AuthToken: "token"})

	res, sdkErr := inv.Invoke(context.Background(), wire.MethodGet, "users", []byte{0x0a, 0x01, 'k'})
	require.Nil(t, sdkErr)
	assert.Equal(t, append([]byte("echo:"), 0x0a, 0x01, 'k'), res.Payload)
	assert.Equal(t, []string{"bufnet"}, res.Header.Get("served-by"))

	calls := srv.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, wire.MethodGet, calls[0].Method)
	assert.Equal(t, []string{"token"}, calls[0].Metadata.Get(transport.HeaderAuthorization))
	assert.Equal(t, []string{"users"}, calls[0].Metadata.Get(transport.HeaderCache))
}

func TestGRPCRetriesUnavailable(t *testing.T) {
	srv := transporttest.NewServer(t)
	var served atomic.Int32
	srv.HandleUnary(wire.MethodSet, func(ctx context.Context, req []byte) ([]byte, error) {
		if served.Add(1) < 3 {
			return nil, status.Error(codes.Unavailable, "warming up")
		}
		return []byte("ok"), nil
	})
	inv := srv.NewInvoker(t, transport.Options{
		Pool:   srv.NewPool(t, 2),
		Policy: retry.FixedCount{MaxAttempts: 3},
	})

	res, sdkErr := inv.Invoke(context.Background(), wire.MethodSet, "c", []byte("payload"))
	require.Nil(t, sdkErr)
	assert.Equal(t, 3, res.Attempts)

	calls := srv.Calls()
	require.Len(t, calls, 3)
	for _, call := range calls {
		assert.Equal(t, []byte("payload"), call.Payload)
	}
}

func TestGRPCNonIdempotentNotRetried(t *testing.T) {
	srv := transporttest.NewServer(t)
	srv.HandleUnary(wire.MethodIncrement, func(context.Context, []byte) ([]byte, error) {
		return nil, status.Error(codes.Unavailable, "ambiguous")
	})
	inv := srv.NewInvoker(t, transport.Options{Policy: retry.FixedCount{MaxAttempts: 3}})

	_, sdkErr := inv.Invoke(context.Background(), wire.MethodIncrement, "c", []byte("k"))
	require.NotNil(t, sdkErr)
	assert.Equal(t, relayerrors.ServerUnavailableError, sdkErr.Kind())
	assert.Len(t, srv.Calls(), 1)
}

func TestGRPCTrailersReachError(t *testing.T) {
	srv := transporttest.NewServer(t)
	srv.HandleUnary(wire.MethodGet, func(ctx context.Context, _ []byte) ([]byte, error) {
		_ = grpc.SetTrailer(ctx, metadata.Pairs("err", "item_not_found"))
		return nil, status.Error(codes.NotFound, "cache not found")
	})
	inv := srv.NewInvoker(t, transport.Options{})

	_, sdkErr := inv.Invoke(context.Background(), wire.MethodGet, "missing", []byte("k"))
	require.NotNil(t, sdkErr)
	assert.Equal(t, relayerrors.NotFoundError, sdkErr.Kind())
	assert.Equal(t, "cache not found", sdkErr.Message())
	assert.Equal(t, []string{"item_not_found"}, sdkErr.Metadata().Get("err"))
}

func TestGRPCServerStream(t *testing.T) {
	srv := transporttest.NewServer(t)
	srv.HandleStream(wire.MethodSubscribe, func(ctx context.Context, req []byte, send func([]byte) error) error {
		for _, msg := range []string{"one", "two", "three"} {
			if err := send([]byte(msg)); err != nil {
				return err
			}
		}
		return nil
	})

	var inbound []string
	pipeline := middleware.NewPipeline(middleware.MiddlewareFunc(func(info middleware.CallInfo) middleware.Handler {
		assert.True(t, info.Streaming)
		return &middleware.Funcs{
			ResponseBody: func(body []byte) ([]byte, error) {
				inbound = append(inbound, string(body))
				return body, nil
			},
		}
	}))
	inv := srv.NewInvoker(t, transport.Options{Pipeline: pipeline})

	stream, sdkErr := inv.Stream(context.Background(), wire.MethodSubscribe, "c", []byte("topic"))
	require.Nil(t, sdkErr)

	var got []string
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, string(msg))
	}
	assert.Equal(t, []string{"one", "two", "three"}, got)
	assert.Equal(t, got, inbound)

	_, err := stream.Recv()
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, stream.Close())
}

func TestGRPCServerStreamError(t *testing.T) {
	srv := transporttest.NewServer(t)
	srv.HandleStream(wire.MethodSubscribe, func(ctx context.Context, _ []byte, send func([]byte) error) error {
		if err := send([]byte("first")); err != nil {
			return err
		}
		return status.Error(codes.Internal, "stream broke")
	})
	inv := srv.NewInvoker(t, transport.Options{})

	stream, sdkErr := inv.Stream(context.Background(), wire.MethodSubscribe, "c", nil)
	require.Nil(t, sdkErr)

	msg, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), msg)

	_, err = stream.Recv()
	require.Error(t, err)
	assert.True(t, relayerrors.IsKind(err, relayerrors.InternalServerError))

	_, again := stream.Recv()
	assert.Equal(t, err, again)
}

func TestGRPCServerStreamClose(t *testing.T) {
	srv := transporttest.NewServer(t)
	srv.HandleStream(wire.MethodSubscribe, func(ctx context.Context, _ []byte, send func([]byte) error) error {
		if err := send([]byte("hello")); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	})
	inv := srv.NewInvoker(t, transport.Options{})

	source := cancellation.NewSource()
	stream, sdkErr := inv.Stream(context.Background(), wire.MethodSubscribe, "c", nil, transport.WithSignal(source))
	require.Nil(t, sdkErr)

	_, err := stream.Recv()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := stream.Recv()
		done <- err
	}()
	source.Cancel(nil)

	select {
	case err := <-done:
		assert.True(t, relayerrors.IsKind(err, relayerrors.CancelledError))
	case <-time.After(5 * time.Second):
		t.Fatal("Recv did not return after cancellation")
	}
	assert.NoError(t, stream.Close())
}

func TestGRPCUnknownMethod(t *testing.T) {
	srv := transporttest.NewServer(t)
	inv := srv.NewInvoker(t, transport.Options{})

	_, sdkErr := inv.Invoke(context.Background(), "/cache_client.Scs/Nope", "c", nil)
	require.NotNil(t, sdkErr)
	assert.Equal(t, relayerrors.BadRequestError, sdkErr.Kind())
}
