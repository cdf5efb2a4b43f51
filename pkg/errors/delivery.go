package errors

import (
	"fmt"
	"strings"
)

// Mode selects how errors reach the caller
type Mode int

const (
	// ModeValue returns errors inside the operation's response union
	ModeValue Mode = iota
	// ModeThrow returns errors through the error result
	ModeThrow
)

// String returns the configuration spelling of the mode
func (m Mode) String() string {
	switch m {
	case ModeThrow:
		return "throw"
	default:
		return "value"
	}
}

// ParseMode parses "throw" or "value"; the empty string selects value mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "value":
		return ModeValue, nil
	case "throw":
		return ModeThrow, nil
	default:
		return ModeValue, fmt.Errorf("unknown error mode %q", s)
	}
}

// Delivery is chosen once when a client is built and decides whether a
// mapped error travels as a value or as the error result. Both adapters hand
// over the same *SdkError.
type Delivery interface {
	Mode() Mode
	asValue() bool
}

type throwDelivery struct{}

func (throwDelivery) Mode() Mode    { return ModeThrow }
func (throwDelivery) asValue() bool { return false }

type valueDelivery struct{}

func (valueDelivery) Mode() Mode    { return ModeValue }
func (valueDelivery) asValue() bool { return true }

// Throw returns the adapter that delivers errors through the error result
func Throw() Delivery { return throwDelivery{} }

// Value returns the adapter that delivers errors inside the response union
func Value() Delivery { return valueDelivery{} }

// DeliveryFor returns the adapter for a mode
func DeliveryFor(mode Mode) Delivery {
	if mode == ModeThrow {
		return Throw()
	}
	return Value()
}

// Deliver hands err to the caller according to d. wrap builds the error
// variant of the operation's response union.
func Deliver[R any](d Delivery, err *SdkError, wrap func(*SdkError) R) (R, error) {
	if d == nil || d.asValue() {
		return wrap(err), nil
	}
	var zero R
	return zero, err
}
