package logging

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/relaycache/relay-go/pkg/middleware"
)

// CallLogger logs the lifecycle of every logical call
type CallLogger struct {
	logger  Logger
	logBody bool
}

// CallLoggerOption configures a CallLogger
type CallLoggerOption func(*CallLogger)

// WithBodySizes adds request and response payload sizes to the log lines
func WithBodySizes() CallLoggerOption {
	return func(c *CallLogger) {
		c.logBody = true
	}
}

// Middleware creates a call logging middleware. Register it last to see the
// rawest response.
func Middleware(logger Logger, opts ...CallLoggerOption) *CallLogger {
	c := &CallLogger{logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ middleware.Middleware = (*CallLogger)(nil)

// OnNewCall implements middleware.Middleware
func (c *CallLogger) OnNewCall(info middleware.CallInfo) middleware.Handler {
	start := info.Start
	if start.IsZero() {
		start = time.Now()
	}

	fields := []Field{
		String("method", info.Method),
		String("resource", info.Resource),
	}
	if info.RequestID != "" {
		fields = append(fields, String("request_id", info.RequestID))
	}
	if info.Streaming {
		fields = append(fields, Bool("streaming", true))
	}

	h := &callLogHandler{
		logger:  c.logger.WithFields(fields...),
		logBody: c.logBody,
		start:   start,
	}
	h.logger.Debug("Call started")
	return h
}

type callLogHandler struct {
	middleware.BaseHandler
	logger  Logger
	logBody bool
	start   time.Time

	requestBytes  int
	responseBytes int
	messages      int
}

func (h *callLogHandler) OnRequestBody(body []byte) ([]byte, error) {
	h.requestBytes = len(body)
	return body, nil
}

func (h *callLogHandler) OnResponseMetadata(md metadata.MD) (metadata.MD, error) {
	if len(md) > 0 {
		h.logger.Debug("Response metadata received", Int("keys", md.Len()))
	}
	return md, nil
}

func (h *callLogHandler) OnResponseBody(body []byte) ([]byte, error) {
	h.messages++
	h.responseBytes += len(body)
	return body, nil
}

func (h *callLogHandler) OnCallComplete(st *status.Status) {
	code := codes.OK
	message := ""
	if st != nil {
		code = st.Code()
		message = st.Message()
	}

	fields := []Field{
		String("grpc_code", code.String()),
		Duration("duration", time.Since(h.start)),
	}
	if h.logBody {
		fields = append(fields,
			Int("request_bytes", h.requestBytes),
			Int("response_bytes", h.responseBytes),
			Int("messages", h.messages),
		)
	}

	if code == codes.OK {
		h.logger.Debug("Call completed", fields...)
		return
	}
	fields = append(fields, String("status_message", message))
	h.logger.Warn("Call failed", fields...)
}

// RequestIDGenerator generates unique request IDs
type RequestIDGenerator interface {
	Generate() string
}

// UUIDGenerator generates UUID request IDs
type UUIDGenerator struct{}

// Generate generates a new UUID
func (g *UUIDGenerator) Generate() string {
	return uuid.New().String()
}

// PrefixedGenerator generates prefixed request IDs
type PrefixedGenerator struct {
	Prefix    string
	Generator RequestIDGenerator
}

// Generate generates a new prefixed ID
func (g *PrefixedGenerator) Generate() string {
	base := g.Generator.Generate()
	return fmt.Sprintf("%s-%s", g.Prefix, base)
}
