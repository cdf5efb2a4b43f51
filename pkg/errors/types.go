// Package errors provides the error taxonomy of the relay SDK.
//
// Every failure surfaced by the SDK, whether it came from the server, from a
// transport problem or from client-side validation, is reported as a single
// *SdkError whose Kind belongs to a fixed, closed enumeration. Transport
// status codes are mapped onto kinds by a total function (see KindForCode),
// so application code can switch on Kind without ever seeing gRPC codes.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
)

// SdkError is the only error type returned by the SDK.
//
// Values are built exclusively by the constructors of this package so the
// taxonomy stays exhaustive.
type SdkError struct {
	kind          Kind
	message       string
	transportCode *codes.Code
	cause         error
	metadata      metadata.MD
	data          interface{}
}

// Error implements the error interface
func (e *SdkError) Error() string {
	if e.message == "" {
		return e.kind.Description()
	}
	return fmt.Sprintf("%s: %s", e.kind.Description(), e.message)
}

// Kind returns the semantic error kind
func (e *SdkError) Kind() Kind {
	return e.kind
}

// Code returns the stable error code string of the kind
func (e *SdkError) Code() string {
	return e.kind.Code()
}

// Message returns the human-readable message without the kind prefix
func (e *SdkError) Message() string {
	return e.message
}

// TransportCode returns the transport status code, if the error came from the wire
func (e *SdkError) TransportCode() (codes.Code, bool) {
	if e.transportCode == nil {
		return codes.OK, false
	}
	return *e.transportCode, true
}

// Cause returns the underlying error, if any
func (e *SdkError) Cause() error {
	return e.cause
}

// Metadata returns the trailing metadata received with the failed call
func (e *SdkError) Metadata() metadata.MD {
	return e.metadata
}

// Data returns structured data attached to the error (validation details)
func (e *SdkError) Data() interface{} {
	return e.data
}

// Unwrap returns the underlying error for error chain traversal
func (e *SdkError) Unwrap() error {
	return e.cause
}

// Is reports whether target is the sentinel of this error's kind, or an
// SdkError of the same kind.
func (e *SdkError) Is(target error) bool {
	if s, ok := target.(*kindSentinel); ok {
		return s.kind == e.kind
	}
	if other, ok := target.(*SdkError); ok {
		return other.kind == e.kind && other.message == e.message
	}
	return false
}

// ToJSON returns the error as a JSON-serializable map
func (e *SdkError) ToJSON() map[string]interface{} {
	result := map[string]interface{}{
		"kind":    e.kind.String(),
		"code":    e.kind.Code(),
		"message": e.message,
	}
	if e.transportCode != nil {
		result["transport_code"] = e.transportCode.String()
	}
	if e.data != nil {
		result["data"] = e.data
	}
	if e.cause != nil {
		result["cause"] = e.cause.Error()
	}
	return result
}

// MarshalJSON implements json.Marshaler
func (e *SdkError) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.ToJSON())
}

// withData returns a copy carrying structured data
func (e *SdkError) withData(data interface{}) *SdkError {
	newErr := *e
	newErr.data = data
	return &newErr
}

// kindSentinel is a comparable marker used with errors.Is.
type kindSentinel struct {
	kind Kind
}

func (s *kindSentinel) Error() string {
	return s.kind.Description()
}

func sentinel(kind Kind) error {
	return &kindSentinel{kind: kind}
}

// Sentinels usable with errors.Is:
//
//	if errors.Is(err, relayerrors.ErrTimeout) { ... }
var (
	ErrUnknown            = sentinel(UnknownError)
	ErrPermission         = sentinel(PermissionError)
	ErrInternalServer     = sentinel(InternalServerError)
	ErrUnknownService     = sentinel(UnknownServiceError)
	ErrServerUnavailable  = sentinel(ServerUnavailableError)
	ErrNotFound           = sentinel(NotFoundError)
	ErrBadRequest         = sentinel(BadRequestError)
	ErrFailedPrecondition = sentinel(FailedPreconditionError)
	ErrInvalidArgument    = sentinel(InvalidArgumentError)
	ErrCancelled          = sentinel(CancelledError)
	ErrTimeout            = sentinel(TimeoutError)
	ErrAuthentication     = sentinel(AuthenticationError)
	ErrLimitExceeded      = sentinel(LimitExceededError)
	ErrAlreadyExists      = sentinel(AlreadyExistsError)
)

// AsSdkError extracts an *SdkError from an error chain
func AsSdkError(err error) (*SdkError, bool) {
	if err == nil {
		return nil, false
	}
	var sdkErr *SdkError
	if errors.As(err, &sdkErr) {
		return sdkErr, true
	}
	return nil, false
}

// IsKind checks if an error is an SdkError of the given kind
func IsKind(err error, kind Kind) bool {
	if sdkErr, ok := AsSdkError(err); ok {
		return sdkErr.kind == kind
	}
	return false
}
