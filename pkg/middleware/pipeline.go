package middleware

import (
	"fmt"
	"sync"

	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Pipeline is an ordered list of middlewares. It is safe to share between
// goroutines once built; Append is not safe to call concurrently with
// OnNewCall.
type Pipeline struct {
	middlewares []Middleware
}

// NewPipeline creates a pipeline; middlewares run in the given order on the
// way out and in reverse on the way back.
func NewPipeline(middlewares ...Middleware) *Pipeline {
	p := &Pipeline{}
	p.Append(middlewares...)
	return p
}

// Append registers middlewares after the existing ones. Nil entries are skipped.
func (p *Pipeline) Append(middlewares ...Middleware) {
	for _, m := range middlewares {
		if m != nil {
			p.middlewares = append(p.middlewares, m)
		}
	}
}

// Len returns the number of registered middlewares
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.middlewares)
}

// OnNewCall creates the handlers for one logical call, in registration order.
func (p *Pipeline) OnNewCall(info CallInfo) *Call {
	c := &Call{info: info}
	if p == nil {
		return c
	}
	c.handlers = make([]Handler, 0, len(p.middlewares))
	for _, m := range p.middlewares {
		if h := m.OnNewCall(info); h != nil {
			c.handlers = append(c.handlers, h)
		}
	}
	return c
}

// HookError reports a handler failure. The remaining handlers of the hook
// did not run.
type HookError struct {
	Hook  string
	Index int
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("middleware %d failed in %s: %v", e.Index, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

// Call holds the handler instances of one logical call.
type Call struct {
	info     CallInfo
	handlers []Handler
	once     sync.Once
}

// Info returns the call description the handlers were created with
func (c *Call) Info() CallInfo {
	return c.info
}

// RequestMetadata folds md through the handlers in registration order.
func (c *Call) RequestMetadata(md metadata.MD) (metadata.MD, error) {
	for i, h := range c.handlers {
		next, err := guard(i, "OnRequestMetadata", func() (metadata.MD, error) {
			return h.OnRequestMetadata(md)
		})
		if err != nil {
			return nil, err
		}
		md = next
	}
	return md, nil
}

// RequestBody folds body through the handlers in registration order.
func (c *Call) RequestBody(body []byte) ([]byte, error) {
	for i, h := range c.handlers {
		next, err := guard(i, "OnRequestBody", func() ([]byte, error) {
			return h.OnRequestBody(body)
		})
		if err != nil {
			return nil, err
		}
		body = next
	}
	return body, nil
}

// ResponseMetadata folds md through the handlers in reverse order.
func (c *Call) ResponseMetadata(md metadata.MD) (metadata.MD, error) {
	for i := len(c.handlers) - 1; i >= 0; i-- {
		h := c.handlers[i]
		next, err := guard(i, "OnResponseMetadata", func() (metadata.MD, error) {
			return h.OnResponseMetadata(md)
		})
		if err != nil {
			return nil, err
		}
		md = next
	}
	return md, nil
}

// ResponseBody folds body through the handlers in reverse order. Streams
// call it once per received message.
func (c *Call) ResponseBody(body []byte) ([]byte, error) {
	for i := len(c.handlers) - 1; i >= 0; i-- {
		h := c.handlers[i]
		next, err := guard(i, "OnResponseBody", func() ([]byte, error) {
			return h.OnResponseBody(body)
		})
		if err != nil {
			return nil, err
		}
		body = next
	}
	return body, nil
}

// ResponseStatus folds st through the handlers in reverse order.
func (c *Call) ResponseStatus(st *status.Status) (*status.Status, error) {
	for i := len(c.handlers) - 1; i >= 0; i-- {
		h := c.handlers[i]
		next, err := guard(i, "OnResponseStatus", func() (*status.Status, error) {
			return h.OnResponseStatus(st)
		})
		if err != nil {
			return nil, err
		}
		st = next
	}
	return st, nil
}

// Complete runs the completion hooks in reverse order. Only the first call
// has an effect. A panicking hook does not stop the others.
func (c *Call) Complete(st *status.Status) {
	c.once.Do(func() {
		for i := len(c.handlers) - 1; i >= 0; i-- {
			h := c.handlers[i]
			_, _ = guard(i, "OnCallComplete", func() (struct{}, error) {
				h.OnCallComplete(st)
				return struct{}{}, nil
			})
		}
	})
}

// guard runs one hook, turning an error or panic into a *HookError.
func guard[T any](index int, hook string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Hook: hook, Index: index, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	result, err = fn()
	if err != nil {
		return result, &HookError{Hook: hook, Index: index, Err: err}
	}
	return result, nil
}
