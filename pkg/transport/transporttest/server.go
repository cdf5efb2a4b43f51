// Package transporttest provides an in-memory gRPC server for exercising
// the transport, cache and topics packages without a network.
package transporttest

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/relaycache/relay-go/pkg/config"
	"github.com/relaycache/relay-go/pkg/logging"
	"github.com/relaycache/relay-go/pkg/pool"
	"github.com/relaycache/relay-go/pkg/transport"
)

const bufSize = 1 << 20

// UnaryHandler answers one unary call with an encoded response
type UnaryHandler func(ctx context.Context, req []byte) ([]byte, error)

// StreamHandler serves one server-streaming call. Returning nil ends the
// stream cleanly.
type StreamHandler func(ctx context.Context, req []byte, send func([]byte) error) error

// Call is a request the server received
type Call struct {
	Method   string
	Metadata metadata.MD
	Payload  []byte
}

// Server routes raw frames to per-method handlers
type Server struct {
	lis *bufconn.Listener
	srv *grpc.Server

	mu      sync.Mutex
	unary   map[string]UnaryHandler
	streams map[string]StreamHandler
	calls   []Call
}

// NewServer starts a server that is stopped when the test ends
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		lis:     bufconn.Listen(bufSize),
		unary:   make(map[string]UnaryHandler),
		streams: make(map[string]StreamHandler),
	}
	s.srv = grpc.NewServer(
		grpc.UnknownServiceHandler(s.handle),
		grpc.ForceServerCodec(transport.Codec),
	)
	go func() {
		_ = s.srv.Serve(s.lis)
	}()
	t.Cleanup(s.srv.Stop)
	return s
}

// HandleUnary registers h for a unary method
func (s *Server) HandleUnary(method string, h UnaryHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unary[method] = h
}

// HandleStream registers h for a server-streaming method
func (s *Server) HandleStream(method string, h StreamHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[method] = h
}

// Calls returns the requests received so far
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Factory returns a pool factory dialing this server
func (s *Server) Factory(t testing.TB) pool.Factory {
	t.Helper()
	factory, err := transport.NewChannelFactory("passthrough:///bufnet",
		config.TLSConfig{Insecure: true},
		config.ChannelConfig{},
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return s.lis.DialContext(ctx)
		}),
	)
	require.NoError(t, err)
	return factory
}

// NewPool returns a pool of size channels to this server, closed when the
// test ends
func (s *Server) NewPool(t testing.TB, size int) *pool.Pool {
	t.Helper()
	p, err := pool.New(pool.Config{
		Size:    size,
		Factory: s.Factory(t),
		Logger:  logging.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// NewInvoker returns an invoker over a single-channel pool to this server.
// opts.Pool is filled in when nil.
func (s *Server) NewInvoker(t testing.TB, opts transport.Options) *transport.Invoker {
	t.Helper()
	if opts.Pool == nil {
		opts.Pool = s.NewPool(t, 1)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	inv, err := transport.New(opts)
	require.NoError(t, err)
	return inv
}

func (s *Server) handle(_ interface{}, stream grpc.ServerStream) error {
	method, ok := grpc.MethodFromServerStream(stream)
	if !ok {
		return status.Error(codes.Internal, "no method in stream")
	}
	req := &transport.Frame{}
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	md, _ := metadata.FromIncomingContext(stream.Context())

	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: method, Metadata: md.Copy(), Payload: req.Payload})
	unary := s.unary[method]
	streaming := s.streams[method]
	s.mu.Unlock()

	switch {
	case streaming != nil:
		return streaming(stream.Context(), req.Payload, func(b []byte) error {
			return stream.SendMsg(&transport.Frame{Payload: b})
		})
	case unary != nil:
		resp, err := unary(stream.Context(), req.Payload)
		if err != nil {
			return err
		}
		return stream.SendMsg(&transport.Frame{Payload: resp})
	default:
		return status.Errorf(codes.Unimplemented, "unknown method %s", method)
	}
}
