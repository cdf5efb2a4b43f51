// Package cancellation binds caller-owned cancellation signals to in-flight
// calls.
//
// Cancellation is best-effort: it stops the next observable step of a call
// (a pending retry delay, the in-flight attempt) but cannot recall bytes that
// already reached the server. A cancelled write may still take effect.
package cancellation

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCancelled is reported by a Source cancelled without an explicit cause.
var ErrCancelled = errors.New("cancelled")

// Signal is an external cancellation signal. context.Context satisfies it.
type Signal interface {
	Done() <-chan struct{}
	Err() error
}

// Source is a standalone Signal for callers that do not thread a context
// through their code.
type Source struct {
	once  sync.Once
	mu    sync.Mutex
	done  chan struct{}
	cause error
}

// NewSource returns an inactive Source.
func NewSource() *Source {
	return &Source{done: make(chan struct{})}
}

// Cancel activates the signal. Only the first call has an effect.
func (s *Source) Cancel(cause error) {
	s.once.Do(func() {
		if cause == nil {
			cause = ErrCancelled
		}
		s.mu.Lock()
		s.cause = cause
		s.mu.Unlock()
		close(s.done)
	})
}

// Done implements Signal.
func (s *Source) Done() <-chan struct{} {
	return s.done
}

// Err implements Signal.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cause
}

// Cancelled reports whether Cancel has been called.
func (s *Source) Cancelled() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Active reports whether signal has fired. A nil signal never fires.
func Active(signal Signal) bool {
	if signal == nil {
		return false
	}
	select {
	case <-signal.Done():
		return true
	default:
		return false
	}
}

// Bind arranges for cancel to run when signal fires. If the signal is
// already active, cancel runs before Bind returns. The returned stop function
// detaches the listener and reports whether it was still armed; it must be
// called once the call finishes so the listener does not outlive it.
func Bind(signal Signal, cancel func()) (stop func() bool) {
	if signal == nil || cancel == nil {
		return func() bool { return false }
	}
	if Active(signal) {
		cancel()
		return func() bool { return false }
	}

	if ctx, ok := signal.(context.Context); ok {
		return context.AfterFunc(ctx, cancel)
	}

	detach := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case <-signal.Done():
			once.Do(cancel)
		case <-detach:
		}
	}()

	return func() bool {
		armed := false
		once.Do(func() {
			armed = true
			close(detach)
		})
		return armed
	}
}

// Cause returns the error describing why signal fired, or nil.
func Cause(signal Signal) error {
	if !Active(signal) {
		return nil
	}
	if err := signal.Err(); err != nil {
		return err
	}
	return ErrCancelled
}

// Sleep waits for d, returning early with the cancellation cause if ctx or
// signal fires first. A non-positive d returns immediately unless one of
// them is already active.
func Sleep(ctx context.Context, signal Signal, d time.Duration) error {
	if err := Cause(signal); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	var signalDone <-chan struct{}
	if signal != nil {
		signalDone = signal.Done()
	}

	select {
	case <-timer.C:
		return nil
	case <-signalDone:
		return Cause(signal)
	case <-ctx.Done():
		return ctx.Err()
	}
}
