package errors

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// FromStatus maps a transport status to an SdkError. trailers may be nil.
// A nil or OK status yields nil.
func FromStatus(st *status.Status, trailers metadata.MD) *SdkError {
	if st == nil || st.Code() == codes.OK {
		return nil
	}
	code := st.Code()
	return &SdkError{
		kind:          KindForCode(code),
		message:       st.Message(),
		transportCode: &code,
		cause:         st.Err(),
		metadata:      trailers,
	}
}

// Map normalizes any error into an SdkError. It is total: status errors use
// their code, context errors become CancelledError or TimeoutError, and
// anything else becomes UnknownError with the original error as cause.
func Map(err error) *SdkError {
	if err == nil {
		return nil
	}
	if sdkErr, ok := AsSdkError(err); ok {
		return sdkErr
	}
	if st, ok := status.FromError(err); ok {
		return FromStatus(st, nil)
	}
	switch {
	case errors.Is(err, context.Canceled):
		return fromCode(codes.Canceled, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return fromCode(codes.DeadlineExceeded, err.Error(), err)
	}
	return &SdkError{
		kind:    UnknownError,
		message: err.Error(),
		cause:   err,
	}
}

// Cancelled builds the error delivered when the caller's cancellation signal fires.
func Cancelled(cause error) *SdkError {
	msg := "request cancelled"
	if cause != nil {
		msg = fmt.Sprintf("request cancelled: %v", cause)
	}
	return fromCode(codes.Canceled, msg, cause)
}

// DeadlineExceeded builds the error delivered when the overall call budget
// runs out, regardless of what the transport last reported.
func DeadlineExceeded(msg string, cause error) *SdkError {
	return fromCode(codes.DeadlineExceeded, msg, cause)
}

// Unexpected builds the error delivered when the SDK itself failed while
// processing a call, e.g. a retry policy or middleware handler panicked.
func Unexpected(cause error) *SdkError {
	msg := "unexpected error"
	if cause != nil {
		msg = cause.Error()
	}
	return &SdkError{
		kind:    UnknownError,
		message: msg,
		cause:   cause,
	}
}

func fromCode(code codes.Code, msg string, cause error) *SdkError {
	return &SdkError{
		kind:          KindForCode(code),
		message:       msg,
		transportCode: &code,
		cause:         cause,
	}
}
