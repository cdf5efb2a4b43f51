// Package middleware composes the request and response hooks that run around
// every logical call.
//
// A Middleware is a factory: it produces one Handler per logical call, and
// that handler is shared by every retry attempt of the call. Outbound hooks
// run in registration order, each receiving the previous handler's output.
// Inbound hooks run in reverse registration order, so the middleware
// registered last sees the rawest response.
package middleware

import (
	"context"
	"time"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// CallInfo describes the logical call a handler is created for.
type CallInfo struct {
	// Method is the full gRPC method name, e.g. "/cache_client.Scs/Get"
	Method string
	// Resource is the target cache or topic namespace
	Resource string
	// Streaming is true for server-streaming calls
	Streaming bool
	// RequestID identifies the logical call across attempts
	RequestID string
	// Start is when the logical call began
	Start time.Time
	// Context is the caller's context, e.g. to parent a tracing span
	Context context.Context
}

// Handler observes and transforms one logical call. Each transform returns
// the value handed to the next handler; returning an error aborts the rest
// of the chain for that hook and fails the call.
type Handler interface {
	OnRequestMetadata(md metadata.MD) (metadata.MD, error)
	OnRequestBody(body []byte) ([]byte, error)
	OnResponseMetadata(md metadata.MD) (metadata.MD, error)
	OnResponseBody(body []byte) ([]byte, error)
	OnResponseStatus(st *status.Status) (*status.Status, error)
	// OnCallComplete runs exactly once per logical call, after the final
	// status is known. For streams it runs when the stream ends.
	OnCallComplete(st *status.Status)
}

// Middleware creates a Handler for every new logical call.
type Middleware interface {
	OnNewCall(info CallInfo) Handler
}

// MiddlewareFunc is an adapter to allow the use of ordinary functions as middleware
type MiddlewareFunc func(info CallInfo) Handler

// OnNewCall implements the Middleware interface
func (f MiddlewareFunc) OnNewCall(info CallInfo) Handler {
	return f(info)
}

// BaseHandler passes everything through unchanged. Embed it to override
// only the hooks you need.
type BaseHandler struct{}

// OnRequestMetadata implements Handler
func (BaseHandler) OnRequestMetadata(md metadata.MD) (metadata.MD, error) {
	return md, nil
}

// OnRequestBody implements Handler
func (BaseHandler) OnRequestBody(body []byte) ([]byte, error) {
	return body, nil
}

// OnResponseMetadata implements Handler
func (BaseHandler) OnResponseMetadata(md metadata.MD) (metadata.MD, error) {
	return md, nil
}

// OnResponseBody implements Handler
func (BaseHandler) OnResponseBody(body []byte) ([]byte, error) {
	return body, nil
}

// OnResponseStatus implements Handler
func (BaseHandler) OnResponseStatus(st *status.Status) (*status.Status, error) {
	return st, nil
}

// OnCallComplete implements Handler
func (BaseHandler) OnCallComplete(*status.Status) {}

// Funcs implements Handler from optional hook functions. Nil hooks pass the
// value through.
type Funcs struct {
	RequestMetadata  func(metadata.MD) (metadata.MD, error)
	RequestBody      func([]byte) ([]byte, error)
	ResponseMetadata func(metadata.MD) (metadata.MD, error)
	ResponseBody     func([]byte) ([]byte, error)
	ResponseStatus   func(*status.Status) (*status.Status, error)
	CallComplete     func(*status.Status)
}

// OnRequestMetadata implements Handler
func (f *Funcs) OnRequestMetadata(md metadata.MD) (metadata.MD, error) {
	if f.RequestMetadata == nil {
		return md, nil
	}
	return f.RequestMetadata(md)
}

// OnRequestBody implements Handler
func (f *Funcs) OnRequestBody(body []byte) ([]byte, error) {
	if f.RequestBody == nil {
		return body, nil
	}
	return f.RequestBody(body)
}

// OnResponseMetadata implements Handler
func (f *Funcs) OnResponseMetadata(md metadata.MD) (metadata.MD, error) {
	if f.ResponseMetadata == nil {
		return md, nil
	}
	return f.ResponseMetadata(md)
}

// OnResponseBody implements Handler
func (f *Funcs) OnResponseBody(body []byte) ([]byte, error) {
	if f.ResponseBody == nil {
		return body, nil
	}
	return f.ResponseBody(body)
}

// OnResponseStatus implements Handler
func (f *Funcs) OnResponseStatus(st *status.Status) (*status.Status, error) {
	if f.ResponseStatus == nil {
		return st, nil
	}
	return f.ResponseStatus(st)
}

// OnCallComplete implements Handler
func (f *Funcs) OnCallComplete(st *status.Status) {
	if f.CallComplete != nil {
		f.CallComplete(st)
	}
}
