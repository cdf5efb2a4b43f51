package cache

import (
	"context"
	"strconv"
	"sync"
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

// memoryCache is a minimal cache service behind the test server
type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
	ttls  map[string]uint64
}

func serveMemoryCache(srv *transporttest.Server) *memoryCache {
	m := &memoryCache{items: make(map[string][]byte), ttls: make(map[string]uint64)}

	srv.HandleUnary(wire.MethodGet, func(_ context.Context, req []byte) ([]byte, error) {
		key, err := wire.UnmarshalKeyRequest(req)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		value, ok := m.items[string(key)]
		if !ok {
			return (&wire.GetResponse{Result: wire.ResultMiss}).Marshal(), nil
		}
		return (&wire.GetResponse{Result: wire.ResultHit, Body: value}).Marshal(), nil
	})
	srv.HandleUnary(wire.MethodSet, func(_ context.Context, req []byte) ([]byte, error) {
		set, err := wire.UnmarshalSetRequest(req)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		m.items[string(set.Key)] = set.Body
		m.ttls[string(set.Key)] = set.TTLMillis
		return nil, nil
	})
	srv.HandleUnary(wire.MethodDelete, func(_ context.Context, req []byte) ([]byte, error) {
		key, err := wire.UnmarshalKeyRequest(req)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.items, string(key))
		return nil, nil
	})
	srv.HandleUnary(wire.MethodIncrement, func(_ context.Context, req []byte) ([]byte, error) {
		inc, err := wire.UnmarshalIncrementRequest(req)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		current := int64(0)
		if raw, ok := m.items[string(inc.Key)]; ok {
			current, err = strconv.ParseInt(string(raw), 10, 64)
			if err != nil {
				return nil, status.Error(codes.FailedPrecondition, "value is not an integer")
			}
		}
		current += inc.Amount
		m.items[string(inc.Key)] = []byte(strconv.FormatInt(current, 10))
		return (&wire.IncrementResponse{Value: current}).Marshal(), nil
	})
	return m
}

func (m *memoryCache) ttl(key string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ttls[key]
}

func newTestClient(t *testing.T, srv *transporttest.Server, delivery relayerrors.Delivery, opts transport.Options) *Client {
	t.Helper()
	client, err := New(Options{
		Invoker:    srv.NewInvoker(t, opts),
		Delivery:   delivery,
		DefaultTTL: time.Minute,
	})
	require.NoError(t, err)
	return client
}

func TestNew(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestSetGetDelete(t *testing.T) {
	srv := transporttest.NewServer(t)
	store := serveMemoryCache(srv)
	client := newTestClient(t, srv, nil, transport.Options{})
	ctx := context.Background()

	resp, err := client.Get(ctx, "users", []byte("alice"))
	require.NoError(t, err)
	assert.IsType(t, &GetMiss{}, resp)

	setResp, err := client.Set(ctx, "users", []byte("alice"), []byte("admin"), 0)
	require.NoError(t, err)
	assert.IsType(t, &SetSuccess{}, setResp)
	assert.Equal(t, uint64(60000), store.ttl("alice"), "zero ttl falls back to the default")

	resp, err = client.Get(ctx, "users", []byte("alice"))
	require.NoError(t, err)
	hit, ok := resp.(*GetHit)
	require.True(t, ok, "expected a hit, got %T", resp)
	assert.Equal(t, "admin", hit.ValueString())

	_, err = client.Set(ctx, "users", []byte("bob"), []byte("guest"), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), store.ttl("bob"))

	delResp, err := client.Delete(ctx, "users", []byte("alice"))
	require.NoError(t, err)
	assert.IsType(t, &DeleteSuccess{}, delResp)

	resp, err = client.Get(ctx, "users", []byte("alice"))
	require.NoError(t, err)
	assert.IsType(t, &GetMiss{}, resp)

	calls := srv.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, []string{"users"}, calls[0].Metadata.Get(transport.HeaderCache))
}

func TestIncrement(t *testing.T) {
	srv := transporttest.NewServer(t)
	serveMemoryCache(srv)
	client := newTestClient(t, srv, nil, transport.Options{})
	ctx := context.Background()

	for i, want := range []int64{3, 6, 1} {
		amount := int64(3)
		if i == 2 {
			amount = -5
		}
		resp, err := client.Increment(ctx, "counters", []byte("hits"), amount, 0)
		require.NoError(t, err)
		success, ok := resp.(*IncrementSuccess)
		require.True(t, ok, "expected success, got %T", resp)
		assert.Equal(t, want, success.Value())
	}

	_, err := client.Set(ctx, "counters", []byte("name"), []byte("not a number"), 0)
	require.NoError(t, err)
	resp, err := client.Increment(ctx, "counters", []byte("name"), 1, 0)
	require.NoError(t, err)
	failure, ok := resp.(*IncrementError)
	require.True(t, ok)
	assert.Equal(t, relayerrors.FailedPreconditionError, failure.Err().Kind())
}

func TestValidationBypassesTransport(t *testing.T) {
	srv := transporttest.NewServer(t)
	serveMemoryCache(srv)
	client := newTestClient(t, srv, nil, transport.Options{})
	ctx := context.Background()

	tests := []struct {
		name string
		call func() (interface{}, error)
	}{
		{"empty cache name", func() (interface{}, error) { return client.Get(ctx, "", []byte("k")) }},
		{"cache name with space", func() (interface{}, error) { return client.Get(ctx, "my cache", []byte("k")) }},
		{"empty key", func() (interface{}, error) { return client.Delete(ctx, "c", nil) }},
		{"negative ttl", func() (interface{}, error) { return client.Set(ctx, "c", []byte("k"), []byte("v"), -time.Second) }},
		{"negative increment ttl", func() (interface{}, error) { return client.Increment(ctx, "c", []byte("k"), 1, -time.Second) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := tt.call()
			require.NoError(t, err)
			errResp, ok := resp.(interface{ Err() *relayerrors.SdkError })
			require.True(t, ok, "expected an error variant, got %T", resp)
			assert.Equal(t, relayerrors.UnknownError, errResp.Err().Kind())
			_, hasCode := errResp.Err().TransportCode()
			assert.False(t, hasCode)
		})
	}
	assert.Empty(t, srv.Calls())
}

func TestDeliveryModes(t *testing.T) {
	srv := transporttest.NewServer(t)
	srv.HandleUnary(wire.MethodGet, func(context.Context, []byte) ([]byte, error) {
		return nil, status.Error(codes.PermissionDenied, "read not allowed")
	})

	valueClient := newTestClient(t, srv, relayerrors.Value(), transport.Options{})
	throwClient := newTestClient(t, srv, relayerrors.Throw(), transport.Options{})
	ctx := context.Background()

	resp, err := valueClient.Get(ctx, "c", []byte("k"))
	require.NoError(t, err)
	valueErr, ok := resp.(*GetError)
	require.True(t, ok)
	assert.Equal(t, relayerrors.PermissionError, valueErr.Err().Kind())

	resp, err = throwClient.Get(ctx, "c", []byte("k"))
	assert.Nil(t, resp)
	require.Error(t, err)
	thrown, ok := relayerrors.AsSdkError(err)
	require.True(t, ok)

	assert.Equal(t, valueErr.Err().Kind(), thrown.Kind())
	assert.Equal(t, valueErr.Err().Message(), thrown.Message())
	assert.Equal(t, valueErr.Err().Code(), thrown.Code())

	// validation failures take the same route
	_, err = throwClient.Set(ctx, "", []byte("k"), []byte("v"), 0)
	assert.True(t, relayerrors.IsKind(err, relayerrors.UnknownError))
}

func TestGetRetriedThroughInvoker(t *testing.T) {
	srv := transporttest.NewServer(t)
	var mu sync.Mutex
	served := 0
	srv.HandleUnary(wire.MethodGet, func(context.Context, []byte) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		served++
		if served == 1 {
			return nil, status.Error(codes.Unavailable, "restarting")
		}
		return (&wire.GetResponse{Result: wire.ResultHit, Body: []byte("v")}).Marshal(), nil
	})
	client := newTestClient(t, srv, nil, transport.Options{Policy: retry.FixedCount{MaxAttempts: 2}})

	resp, err := client.Get(context.Background(), "c", []byte("k"))
	require.NoError(t, err)
	assert.IsType(t, &GetHit{}, resp)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, served)
}

func TestGetUnexpectedResult(t *testing.T) {
	srv := transporttest.NewServer(t)
	srv.HandleUnary(wire.MethodGet, func(context.Context, []byte) ([]byte, error) {
		return (&wire.GetResponse{Result: wire.ResultInvalid, Message: "corrupt"}).Marshal(), nil
	})
	client := newTestClient(t, srv, nil, transport.Options{})

	resp, err := client.Get(context.Background(), "c", []byte("k"))
	require.NoError(t, err)
	failure, ok := resp.(*GetError)
	require.True(t, ok)
	assert.Equal(t, relayerrors.UnknownError, failure.Err().Kind())
	assert.Contains(t, failure.Error(), "corrupt")
}
