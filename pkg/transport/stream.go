package transport

import (
	"context"
	"errors"
	"io"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/relaycache/relay-go/pkg/cancellation"
	relayerrors "github.com/relaycache/relay-go/pkg/errors"
	"github.com/relaycache/relay-go/pkg/middleware"
)

// ClientStream is an open server-streaming call. Streams are never retried;
// resuming is up to the caller. Recv must not be called concurrently, Close
// may be called from any goroutine.
type ClientStream struct {
	inv    *Invoker
	call   *middleware.Call
	cs     grpc.ClientStream
	parent context.Context
	signal cancellation.Signal

	cancel  context.CancelFunc
	stop    func() bool
	release func()

	headerOnce sync.Once
	header     metadata.MD
	headerErr  error

	mu       sync.Mutex
	finished bool
	terminal error
}

// Stream opens a server-streaming call on the next pool slot. Unlike
// Invoke, there is no overall deadline unless WithTimeout is given.
func (inv *Invoker) Stream(ctx context.Context, method, resource string, payload []byte, opts ...CallOption) (*ClientStream, *relayerrors.SdkError) {
	co := applyCallOptions(opts)

	call := inv.pipeline.OnNewCall(middleware.CallInfo{
		Method:    method,
		Resource:  resource,
		Streaming: true,
		RequestID: inv.requestIDs.Generate(),
		Start:     inv.clock(),
		Context:   ctx,
	})

	md, err := call.RequestMetadata(outboundMetadata(inv.baseMetadata, resource, co.metadata))
	if err != nil {
		return nil, inv.abort(call, relayerrors.Unexpected(err))
	}
	body, err := call.RequestBody(payload)
	if err != nil {
		return nil, inv.abort(call, relayerrors.Unexpected(err))
	}
	if sdkErr := interrupted(ctx, co.signal); sdkErr != nil {
		return nil, inv.abort(call, sdkErr)
	}

	ch, release, err := inv.pool.Next().Acquire()
	if err != nil {
		return nil, inv.fail(call, status.Convert(acquireError(err)), nil, nil)
	}

	var streamCtx context.Context
	var cancel context.CancelFunc
	if co.timeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, co.timeout)
	} else {
		streamCtx, cancel = context.WithCancel(ctx)
	}
	stop := cancellation.Bind(co.signal, cancel)

	cs, err := inv.streamIssuer.OpenStream(streamCtx, ch, method, body, md)
	if err != nil {
		stop()
		cancel()
		release()
		if sdkErr := interrupted(ctx, co.signal); sdkErr != nil {
			return nil, inv.abort(call, sdkErr)
		}
		return nil, inv.fail(call, status.Convert(err), nil, nil)
	}

	return &ClientStream{
		inv:     inv,
		call:    call,
		cs:      cs,
		parent:  ctx,
		signal:  co.signal,
		cancel:  cancel,
		stop:    stop,
		release: release,
	}, nil
}

// Header returns the response metadata after the response metadata hooks
// ran over it. It blocks until the server sends headers.
func (s *ClientStream) Header() (metadata.MD, error) {
	s.headerOnce.Do(func() {
		md, err := s.cs.Header()
		if err != nil {
			s.headerErr = err
			return
		}
		s.header, s.headerErr = s.call.ResponseMetadata(md)
	})
	return s.header, s.headerErr
}

// Recv returns the next message. It returns io.EOF when the server ended
// the stream cleanly, and an *errors.SdkError otherwise. Once the stream
// has ended every call returns the same error.
func (s *ClientStream) Recv() ([]byte, error) {
	if err := s.ended(); err != nil {
		return nil, err
	}

	frame := &Frame{}
	err := s.cs.RecvMsg(frame)
	if err == nil {
		if _, herr := s.Header(); herr != nil {
			return nil, s.abort(relayerrors.Unexpected(herr))
		}
		body, herr := s.call.ResponseBody(frame.Payload)
		if herr != nil {
			return nil, s.abort(relayerrors.Unexpected(herr))
		}
		return body, nil
	}

	if errors.Is(err, io.EOF) {
		if _, herr := s.Header(); herr != nil {
			return nil, s.abort(relayerrors.Unexpected(herr))
		}
		return nil, s.finish(func() error {
			st, herr := s.call.ResponseStatus(status.New(codes.OK, ""))
			if herr != nil {
				s.call.Complete(status.New(codes.Unknown, herr.Error()))
				return relayerrors.Unexpected(herr)
			}
			s.call.Complete(st)
			if sdkErr := relayerrors.FromStatus(st, s.cs.Trailer()); sdkErr != nil {
				return sdkErr
			}
			return io.EOF
		})
	}

	if sdkErr := interrupted(s.parent, s.signal); sdkErr != nil {
		return nil, s.abort(sdkErr)
	}
	st := status.Convert(err)
	return nil, s.finish(func() error {
		return s.inv.fail(s.call, st, nil, s.cs.Trailer())
	})
}

// Close ends the stream. Pending and later Recv calls fail with a
// CancelledError. Close is idempotent.
func (s *ClientStream) Close() error {
	s.abort(relayerrors.Cancelled(errors.New("stream closed")))
	return nil
}

func (s *ClientStream) ended() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return s.terminal
	}
	return nil
}

func (s *ClientStream) abort(sdkErr *relayerrors.SdkError) error {
	return s.finish(func() error {
		return s.inv.abort(s.call, sdkErr)
	})
}

// finish ends the stream once; resolve produces the terminal error and
// completes the call
func (s *ClientStream) finish(resolve func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return s.terminal
	}
	s.finished = true

	s.stop()
	s.cancel()
	s.release()
	s.terminal = resolve()
	return s.terminal
}
