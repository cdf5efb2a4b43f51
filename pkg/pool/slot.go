package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc/connectivity"

	"github.com/relaycache/relay-go/pkg/logging"
)

// Slot is one entry of the pool. Its channel is created on first use.
type Slot struct {
	index int
	pool  *Pool

	mu           sync.Mutex
	ch           Channel
	lastActivity time.Time
	inflight     int
}

// Index returns the slot's position in the pool
func (s *Slot) Index() int {
	return s.index
}

// State returns the connectivity state of the slot's channel. A slot whose
// channel has not been created yet reports Idle.
func (s *Slot) State() connectivity.State {
	s.mu.Lock()
	ch := s.ch
	s.mu.Unlock()
	if ch == nil {
		return connectivity.Idle
	}
	return ch.GetState()
}

// LastActivity returns when the slot was last used; zero if never
func (s *Slot) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Channel returns the slot's channel, creating it if needed. Callers that
// keep using the channel for a while should use Acquire instead so the slot
// is not recycled underneath them.
func (s *Slot) Channel() (Channel, error) {
	ch, release, err := s.Acquire()
	if err != nil {
		return nil, err
	}
	release()
	return ch, nil
}

// Acquire returns the slot's channel and marks it in use until release is
// called. A channel idle for longer than the pool's max idle time is closed
// and replaced first; a channel in use is never recycled.
func (s *Slot) Acquire() (ch Channel, release func(), err error) {
	if s.pool.closed.Load() {
		return nil, nil, ErrClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Close may have swept this slot while we waited for the lock
	if s.pool.closed.Load() {
		return nil, nil, ErrClosed
	}

	now := s.pool.clock()
	if s.ch != nil && s.idleExpired(now) {
		s.recycleLocked(now)
	}
	if s.ch == nil {
		created, err := s.pool.factory()
		if err != nil {
			return nil, nil, fmt.Errorf("create channel %d: %w", s.index, err)
		}
		s.ch = created
		s.pool.logger.Debug("Channel created", logging.Int("slot", s.index))
	}

	s.inflight++
	s.lastActivity = now

	var once sync.Once
	release = func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.inflight--
			s.lastActivity = s.pool.clock()
		})
	}
	return s.ch, release, nil
}

func (s *Slot) idleExpired(now time.Time) bool {
	maxIdle := s.pool.maxIdle
	return maxIdle > 0 && s.inflight == 0 && now.Sub(s.lastActivity) > maxIdle
}

// recycleLocked tears down the current channel; the next Acquire creates a
// fresh one. s.mu must be held.
func (s *Slot) recycleLocked(now time.Time) {
	idle := now.Sub(s.lastActivity)
	if err := s.ch.Close(); err != nil {
		s.pool.logger.WithError(err).Debug("Closing idle channel failed", logging.Int("slot", s.index))
	}
	s.ch = nil
	s.pool.logger.Debug("Idle channel recycled",
		logging.Int("slot", s.index),
		logging.Duration("idle", idle),
	)
	s.pool.notifyRecycled(s.index)
}

// Connect starts connecting the slot's channel and waits until it is READY,
// deadline passes, or the channel shuts down. It never reports a connection
// failure: those surface later as call failures. The returned state is the
// last one observed.
func (s *Slot) Connect(ctx context.Context, deadline time.Time) connectivity.State {
	ch, err := s.Channel()
	if err != nil {
		s.pool.logger.WithError(err).Debug("Connect skipped", logging.Int("slot", s.index))
		return connectivity.Idle
	}

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ch.Connect()
	for {
		state := ch.GetState()
		s.pool.notifyState(s.index, state)

		switch state {
		case connectivity.Ready:
			return state
		case connectivity.Shutdown:
			s.pool.logger.Debug("Channel shut down while connecting", logging.Int("slot", s.index))
			return state
		}

		if !ch.WaitForStateChange(ctx, state) {
			s.pool.logger.Debug("Channel not ready before deadline",
				logging.Int("slot", s.index),
				logging.String("state", state.String()),
			)
			return state
		}
	}
}

// Close closes the slot's channel if it was created
func (s *Slot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return nil
	}
	err := s.ch.Close()
	s.ch = nil
	return err
}
