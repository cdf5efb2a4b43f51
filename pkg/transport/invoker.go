package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/relaycache/relay-go/pkg/cancellation"
	relayerrors "github.com/relaycache/relay-go/pkg/errors"
	"github.com/relaycache/relay-go/pkg/logging"
	"github.com/relaycache/relay-go/pkg/middleware"
	"github.com/relaycache/relay-go/pkg/pool"
	"github.com/relaycache/relay-go/pkg/retry"
)

// Result is the successful outcome of a logical call
type Result struct {
	Payload []byte
	Header  metadata.MD
	Trailer metadata.MD
	// Attempts is the number of attempts the call took
	Attempts int
}

// Invoker issues logical calls with retries. It is safe for concurrent use.
type Invoker struct {
	pool          *pool.Pool
	pipeline      *middleware.Pipeline
	policy        retry.Policy
	retryObserver retry.Observer
	retryWindow   time.Duration
	timeout       time.Duration
	baseMetadata  metadata.MD
	issuer        Issuer
	streamIssuer  StreamIssuer
	logger        logging.Logger
	requestIDs    logging.RequestIDGenerator
	clock         func() time.Time
}

// New creates an Invoker
func New(opts Options) (*Invoker, error) {
	if opts.Pool == nil {
		return nil, errors.New("transport: pool is required")
	}
	if opts.RequestTimeout < 0 {
		return nil, fmt.Errorf("transport: invalid request timeout %v", opts.RequestTimeout)
	}

	inv := &Invoker{
		pool:          opts.Pool,
		pipeline:      opts.Pipeline,
		policy:        opts.Policy,
		retryObserver: opts.RetryObserver,
		retryWindow:   opts.RetryWindow,
		timeout:       opts.RequestTimeout,
		baseMetadata:  BaseMetadata(opts.AuthToken),
		issuer:        opts.Issuer,
		streamIssuer:  opts.StreamIssuer,
		logger:        opts.Logger,
		requestIDs:    opts.RequestIDs,
		clock:         opts.Clock,
	}

	if inv.pipeline == nil {
		inv.pipeline = middleware.NewPipeline()
	}
	if inv.policy == nil {
		inv.policy = retry.NeverRetry{}
	}
	if w, ok := inv.policy.(retry.RetryWindower); ok && w.RetryWindow() > 0 {
		inv.retryWindow = w.RetryWindow()
	}
	if inv.timeout == 0 {
		inv.timeout = DefaultRequestTimeout
	}
	if inv.issuer == nil {
		inv.issuer = GRPCIssuer{}
	}
	if inv.streamIssuer == nil {
		inv.streamIssuer = GRPCIssuer{}
	}
	if inv.logger == nil {
		inv.logger = logging.GetGlobalLogger()
	}
	inv.logger = inv.logger.WithFields(logging.String("component", "invoker"))
	if inv.requestIDs == nil {
		inv.requestIDs = &logging.UUIDGenerator{}
	}
	if inv.clock == nil {
		inv.clock = time.Now
	}

	return inv, nil
}

// Pool returns the channel pool calls are issued on
func (inv *Invoker) Pool() *pool.Pool {
	return inv.pool
}

// Close closes the channel pool
func (inv *Invoker) Close() error {
	return inv.pool.Close()
}

// Invoke runs one logical unary call and returns exactly one outcome: the
// response of the last attempt, or the mapped error.
func (inv *Invoker) Invoke(ctx context.Context, method, resource string, payload []byte, opts ...CallOption) (*Result, *relayerrors.SdkError) {
	co := applyCallOptions(opts)
	start := inv.clock()

	timeout := inv.timeout
	if co.timeout > 0 {
		timeout = co.timeout
	}
	overall := start.Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(overall) {
		overall = d
	}

	call := inv.pipeline.OnNewCall(middleware.CallInfo{
		Method:    method,
		Resource:  resource,
		RequestID: inv.requestIDs.Generate(),
		Start:     start,
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

	cc := newCallContext(method, resource, overall, body, md)
	logger := inv.logger.WithFields(
		logging.String("method", method),
		logging.String("request_id", call.Info().RequestID),
	)

	for {
		if sdkErr := interrupted(ctx, co.signal); sdkErr != nil {
			return nil, inv.abort(call, sdkErr)
		}

		resp, attemptErr := inv.attempt(ctx, cc, co.signal)
		if attemptErr == nil {
			return inv.succeed(call, cc, resp)
		}

		// a cancelled call reports cancellation, not the status the
		// aborted attempt happened to end with
		if sdkErr := interrupted(ctx, co.signal); sdkErr != nil {
			return nil, inv.abort(call, sdkErr)
		}

		st := status.Convert(attemptErr)
		decision, err := inv.decide(retry.Request{
			Code:            st.Code(),
			Method:          method,
			AttemptNumber:   cc.attemptNumber,
			OverallDeadline: overall,
			Now:             inv.clock(),
		})
		if err != nil {
			logger.WithError(err).Warn("Retry policy failed")
			return nil, inv.abort(call, relayerrors.Unexpected(err))
		}

		delay, again := decision.Delay()
		if !again {
			return nil, inv.fail(call, st, responseHeader(resp), responseTrailer(resp))
		}

		now := inv.clock()
		if !now.Before(overall) {
			return nil, inv.abort(call, deadlineExceeded(cc.attemptNumber+1, st))
		}

		cc.scheduleRetry()
		if remaining := overall.Sub(now); delay > remaining {
			delay = remaining
		}
		if inv.retryObserver != nil {
			inv.retryObserver.OnRetry(method, cc.attemptNumber, st.Code(), delay)
		}
		logger.Debug("Retrying call",
			logging.Int("attempt", cc.attemptNumber),
			logging.String("grpc_code", st.Code().String()),
			logging.Duration("delay", delay),
		)

		if err := cancellation.Sleep(ctx, co.signal, delay); err != nil {
			if sdkErr := interrupted(ctx, co.signal); sdkErr != nil {
				return nil, inv.abort(call, sdkErr)
			}
			return nil, inv.abort(call, relayerrors.Cancelled(err))
		}

		now = inv.clock()
		if !now.Before(overall) {
			return nil, inv.abort(call, deadlineExceeded(cc.attemptNumber, st))
		}
		cc.armRetry(now, inv.retryWindow)
	}
}

// attempt issues the saved request once on the next pool slot
func (inv *Invoker) attempt(ctx context.Context, cc *CallContext, signal cancellation.Signal) (*Response, error) {
	ch, release, err := inv.pool.Next().Acquire()
	if err != nil {
		return nil, acquireError(err)
	}
	defer release()

	attemptCtx, cancel := context.WithDeadline(ctx, cc.attemptDeadline)
	defer cancel()
	stop := cancellation.Bind(signal, cancel)
	defer stop()

	return inv.issuer.Issue(attemptCtx, ch, cc.method, cc.Payload(), cc.Metadata())
}

// decide consults the policy. A panicking policy must not take the call
// down with it.
func (inv *Invoker) decide(req retry.Request) (decision retry.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("retry policy panicked: %v", r)
		}
	}()
	return inv.policy.DetermineWhenToRetry(req), nil
}

// succeed runs the inbound hooks over a successful response
func (inv *Invoker) succeed(call *middleware.Call, cc *CallContext, resp *Response) (*Result, *relayerrors.SdkError) {
	header, err := call.ResponseMetadata(resp.Header)
	if err != nil {
		return nil, inv.abort(call, relayerrors.Unexpected(err))
	}
	body, err := call.ResponseBody(resp.Payload)
	if err != nil {
		return nil, inv.abort(call, relayerrors.Unexpected(err))
	}
	st, err := call.ResponseStatus(status.New(codes.OK, ""))
	if err != nil {
		return nil, inv.abort(call, relayerrors.Unexpected(err))
	}

	call.Complete(st)
	if sdkErr := relayerrors.FromStatus(st, resp.Trailer); sdkErr != nil {
		return nil, sdkErr
	}
	return &Result{
		Payload:  body,
		Header:   header,
		Trailer:  resp.Trailer,
		Attempts: cc.attemptNumber + 1,
	}, nil
}

// fail runs the inbound hooks over a failed final status and maps it.
// header may be nil when no response metadata arrived.
func (inv *Invoker) fail(call *middleware.Call, st *status.Status, header, trailer metadata.MD) *relayerrors.SdkError {
	if header != nil {
		if _, err := call.ResponseMetadata(header); err != nil {
			return inv.abort(call, relayerrors.Unexpected(err))
		}
	}
	final, err := call.ResponseStatus(st)
	if err != nil {
		return inv.abort(call, relayerrors.Unexpected(err))
	}
	if final == nil || final.Code() == codes.OK {
		final = st
	}

	call.Complete(final)
	return relayerrors.FromStatus(final, trailer)
}

// abort ends a call with an error produced on the client side
func (inv *Invoker) abort(call *middleware.Call, sdkErr *relayerrors.SdkError) *relayerrors.SdkError {
	inv.logger.WithError(sdkErr).Debug("Call aborted",
		logging.String("method", call.Info().Method),
		logging.String("request_id", call.Info().RequestID),
	)
	call.Complete(statusOf(sdkErr))
	return sdkErr
}

// interrupted reports why the caller no longer wants the call, if it doesn't
func interrupted(ctx context.Context, signal cancellation.Signal) *relayerrors.SdkError {
	if cancellation.Active(signal) {
		return relayerrors.Cancelled(cancellation.Cause(signal))
	}
	err := ctx.Err()
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return relayerrors.DeadlineExceeded("caller deadline exceeded", err)
	default:
		return relayerrors.Cancelled(err)
	}
}

func deadlineExceeded(attempts int, last *status.Status) *relayerrors.SdkError {
	return relayerrors.DeadlineExceeded(
		fmt.Sprintf("request deadline exceeded after %d attempt(s); last status %s", attempts, last.Code()),
		last.Err(),
	)
}

// acquireError turns a pool failure into the status the attempt failed with
func acquireError(err error) error {
	if errors.Is(err, pool.ErrClosed) {
		return status.Error(codes.FailedPrecondition, "client is closed")
	}
	return status.Error(codes.Unavailable, err.Error())
}

// statusOf describes a client-side error as a status for completion hooks
func statusOf(sdkErr *relayerrors.SdkError) *status.Status {
	code := codes.Unknown
	if c, ok := sdkErr.TransportCode(); ok {
		code = c
	}
	return status.New(code, sdkErr.Message())
}

func responseHeader(resp *Response) metadata.MD {
	if resp == nil {
		return nil
	}
	return resp.Header
}

func responseTrailer(resp *Response) metadata.MD {
	if resp == nil {
		return nil
	}
	return resp.Trailer
}

func applyCallOptions(opts []CallOption) callOptions {
	var co callOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&co)
		}
	}
	return co
}
