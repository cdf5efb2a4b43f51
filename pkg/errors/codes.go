package errors

import (
	"sort"

	"google.golang.org/grpc/codes"
)

// Kind is the semantic category of an SdkError. The set is closed; callers
// may switch over it exhaustively.
type Kind int

const (
	// UnknownError covers unrecognised transport codes and client-side
	// validation failures detected before a call is sent
	UnknownError Kind = iota
	PermissionError
	InternalServerError
	UnknownServiceError
	ServerUnavailableError
	NotFoundError
	BadRequestError
	FailedPreconditionError
	InvalidArgumentError
	CancelledError
	TimeoutError
	AuthenticationError
	LimitExceededError
	AlreadyExistsError
)

// KindInfo provides human-readable information about a kind
type KindInfo struct {
	Kind        Kind
	Name        string
	Code        string
	Description string
}

// kindRegistry is part of the external contract; names and codes must not change.
var kindRegistry = map[Kind]KindInfo{
	UnknownError:            {UnknownError, "UnknownError", "UNKNOWN_ERROR", "Unknown error has occurred"},
	PermissionError:         {PermissionError, "PermissionError", "PERMISSION_ERROR", "Insufficient permissions to perform an operation"},
	InternalServerError:     {InternalServerError, "InternalServerError", "INTERNAL_SERVER_ERROR", "Unexpected error encountered while trying to fulfill the request"},
	UnknownServiceError:     {UnknownServiceError, "UnknownServiceError", "UNKNOWN_SERVICE_ERROR", "Service returned an unknown response"},
	ServerUnavailableError:  {ServerUnavailableError, "ServerUnavailableError", "SERVER_UNAVAILABLE", "The server was unable to handle the request; consider retrying"},
	NotFoundError:           {NotFoundError, "NotFoundError", "NOT_FOUND_ERROR", "A resource required by the request was not found"},
	BadRequestError:         {BadRequestError, "BadRequestError", "BAD_REQUEST_ERROR", "The request was invalid"},
	FailedPreconditionError: {FailedPreconditionError, "FailedPreconditionError", "FAILED_PRECONDITION_ERROR", "System is not in a state required for the operation's execution"},
	InvalidArgumentError:    {InvalidArgumentError, "InvalidArgumentError", "INVALID_ARGUMENT_ERROR", "Invalid argument passed to client"},
	CancelledError:          {CancelledError, "CancelledError", "CANCELLED_ERROR", "The request was cancelled by the server or the client"},
	TimeoutError:            {TimeoutError, "TimeoutError", "TIMEOUT_ERROR", "The client's configured timeout was exceeded"},
	AuthenticationError:     {AuthenticationError, "AuthenticationError", "AUTHENTICATION_ERROR", "Invalid authentication credentials to connect to the service"},
	LimitExceededError:      {LimitExceededError, "LimitExceededError", "LIMIT_EXCEEDED_ERROR", "Request rate, bandwidth, or object size exceeded the limits for this account"},
	AlreadyExistsError:      {AlreadyExistsError, "AlreadyExistsError", "ALREADY_EXISTS_ERROR", "A resource already exists"},
}

// codeKinds maps every defined transport status code onto a kind.
var codeKinds = map[codes.Code]Kind{
	codes.PermissionDenied:   PermissionError,
	codes.Internal:           InternalServerError,
	codes.DataLoss:           InternalServerError,
	codes.Aborted:            InternalServerError,
	codes.Unknown:            UnknownServiceError,
	codes.Unavailable:        ServerUnavailableError,
	codes.NotFound:           NotFoundError,
	codes.OutOfRange:         BadRequestError,
	codes.Unimplemented:      BadRequestError,
	codes.FailedPrecondition: FailedPreconditionError,
	codes.InvalidArgument:    InvalidArgumentError,
	codes.Canceled:           CancelledError,
	codes.DeadlineExceeded:   TimeoutError,
	codes.Unauthenticated:    AuthenticationError,
	codes.ResourceExhausted:  LimitExceededError,
	codes.AlreadyExists:      AlreadyExistsError,
}

// KindForCode maps a transport status code to its kind. The function is
// total: OK and unrecognised codes map to UnknownError.
func KindForCode(code codes.Code) Kind {
	if kind, ok := codeKinds[code]; ok {
		return kind
	}
	return UnknownError
}

// String returns the kind name, e.g. "TimeoutError"
func (k Kind) String() string {
	if info, ok := kindRegistry[k]; ok {
		return info.Name
	}
	return kindRegistry[UnknownError].Name
}

// Code returns the stable error code, e.g. "TIMEOUT_ERROR"
func (k Kind) Code() string {
	if info, ok := kindRegistry[k]; ok {
		return info.Code
	}
	return kindRegistry[UnknownError].Code
}

// Description returns the message prefix used by Error()
func (k Kind) Description() string {
	if info, ok := kindRegistry[k]; ok {
		return info.Description
	}
	return kindRegistry[UnknownError].Description
}

// GetKindInfo returns information about a kind
func GetKindInfo(kind Kind) (KindInfo, bool) {
	info, exists := kindRegistry[kind]
	return info, exists
}

// ListKinds returns all kinds ordered by value
func ListKinds() []KindInfo {
	kinds := make([]KindInfo, 0, len(kindRegistry))
	for _, info := range kindRegistry {
		kinds = append(kinds, info)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Kind < kinds[j].Kind })
	return kinds
}
