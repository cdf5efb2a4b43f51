package cache

import (
	relayerrors "github.com/relaycache/relay-go/pkg/errors"
)

// GetResponse is one of *GetHit, *GetMiss or *GetError
type GetResponse interface {
	isGetResponse()
}

// GetHit carries the stored value
type GetHit struct {
	value []byte
}

// ValueBytes returns the stored value
func (r *GetHit) ValueBytes() []byte { return r.value }

// ValueString returns the stored value as a string
func (r *GetHit) ValueString() string { return string(r.value) }

// GetMiss reports that the key is not stored
type GetMiss struct{}

// GetError holds the failure of a Get in value delivery mode
type GetError struct {
	err *relayerrors.SdkError
}

// Err returns the mapped error
func (r *GetError) Err() *relayerrors.SdkError { return r.err }

func (r *GetError) Error() string { return r.err.Error() }

func (*GetHit) isGetResponse()   {}
func (*GetMiss) isGetResponse()  {}
func (*GetError) isGetResponse() {}

// SetResponse is one of *SetSuccess or *SetError
type SetResponse interface {
	isSetResponse()
}

// SetSuccess reports a stored value
type SetSuccess struct{}

// SetError holds the failure of a Set in value delivery mode
type SetError struct {
	err *relayerrors.SdkError
}

// Err returns the mapped error
func (r *SetError) Err() *relayerrors.SdkError { return r.err }

func (r *SetError) Error() string { return r.err.Error() }

func (*SetSuccess) isSetResponse() {}
func (*SetError) isSetResponse()   {}

// DeleteResponse is one of *DeleteSuccess or *DeleteError
type DeleteResponse interface {
	isDeleteResponse()
}

// DeleteSuccess reports that the key is gone, whether or not it existed
type DeleteSuccess struct{}

// DeleteError holds the failure of a Delete in value delivery mode
type DeleteError struct {
	err *relayerrors.SdkError
}

// Err returns the mapped error
func (r *DeleteError) Err() *relayerrors.SdkError { return r.err }

func (r *DeleteError) Error() string { return r.err.Error() }

func (*DeleteSuccess) isDeleteResponse() {}
func (*DeleteError) isDeleteResponse()   {}

// IncrementResponse is one of *IncrementSuccess or *IncrementError
type IncrementResponse interface {
	isIncrementResponse()
}

// IncrementSuccess carries the value after the increment
type IncrementSuccess struct {
	value int64
}

// Value returns the value after the increment
func (r *IncrementSuccess) Value() int64 { return r.value }

// IncrementError holds the failure of an Increment in value delivery mode
type IncrementError struct {
	err *relayerrors.SdkError
}

// Err returns the mapped error
func (r *IncrementError) Err() *relayerrors.SdkError { return r.err }

func (r *IncrementError) Error() string { return r.err.Error() }

func (*IncrementSuccess) isIncrementResponse() {}
func (*IncrementError) isIncrementResponse()   {}
