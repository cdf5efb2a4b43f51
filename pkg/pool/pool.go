// Package pool spreads calls across a fixed set of gRPC channels.
//
// Channels are created lazily on first use and recycled once they have been
// idle longer than the configured maximum, which bounds resource usage for
// bursty workloads without a health-check loop. Slots are handed out
// round-robin.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"

	"github.com/relaycache/relay-go/pkg/logging"
)

// DefaultSize is the number of channels used when Config.Size is zero. Each
// HTTP/2 connection is limited to roughly 100 concurrent streams.
const DefaultSize = 6

// ErrClosed is returned when a closed pool is used
var ErrClosed = errors.New("channel pool closed")

// Channel is one transport connection. *grpc.ClientConn implements it.
type Channel interface {
	grpc.ClientConnInterface
	GetState() connectivity.State
	WaitForStateChange(ctx context.Context, sourceState connectivity.State) bool
	Connect()
	Close() error
}

// Factory creates a new channel. It must not block on connecting.
type Factory func() (Channel, error)

// Observer receives channel lifecycle events
type Observer interface {
	OnChannelState(index int, state connectivity.State)
	OnChannelRecycled(index int)
}

// Config configures a Pool
type Config struct {
	// Size is the number of channels; DefaultSize if zero
	Size int
	// MaxIdle is how long a channel may go unused before it is torn down and
	// recreated on next use. Zero disables recycling.
	MaxIdle time.Duration
	// Factory creates channels
	Factory Factory
	// Logger defaults to the global logger
	Logger logging.Logger
	// Observer is optional
	Observer Observer
	// Clock returns the current time; time.Now if nil
	Clock func() time.Time
}

// Pool holds the channel slots
type Pool struct {
	slots    []*Slot
	cursor   atomic.Uint64
	closed   atomic.Bool
	maxIdle  time.Duration
	factory  Factory
	logger   logging.Logger
	observer Observer
	clock    func() time.Time
}

// New creates a pool. No channel is created until a slot is used.
func New(config Config) (*Pool, error) {
	if config.Factory == nil {
		return nil, errors.New("pool: factory is required")
	}
	if config.Size < 0 {
		return nil, fmt.Errorf("pool: invalid size %d", config.Size)
	}
	if config.MaxIdle < 0 {
		return nil, fmt.Errorf("pool: invalid max idle %v", config.MaxIdle)
	}

	size := config.Size
	if size == 0 {
		size = DefaultSize
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}

	p := &Pool{
		maxIdle:  config.MaxIdle,
		factory:  config.Factory,
		logger:   logger.WithFields(logging.String("component", "pool")),
		observer: config.Observer,
		clock:    clock,
	}
	p.slots = make([]*Slot, size)
	for i := range p.slots {
		p.slots[i] = &Slot{index: i, pool: p}
	}
	return p, nil
}

// Next returns the next slot in round-robin order. It is safe for
// concurrent use; the cursor is the only state every dispatch mutates.
func (p *Pool) Next() *Slot {
	n := p.cursor.Add(1) - 1
	return p.slots[n%uint64(len(p.slots))]
}

// Slots returns all slots in index order
func (p *Pool) Slots() []*Slot {
	out := make([]*Slot, len(p.slots))
	copy(out, p.slots)
	return out
}

// Size returns the number of slots
func (p *Pool) Size() int {
	return len(p.slots)
}

// Prewarm materialises and connects every slot concurrently, waiting until
// each is READY or deadline passes. Like Slot.Connect it does not report
// connection failures; it returns an error only if a channel could not be
// created at all.
func (p *Pool) Prewarm(ctx context.Context, deadline time.Time) error {
	if p.closed.Load() {
		return ErrClosed
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, slot := range p.slots {
		slot := slot
		g.Go(func() error {
			if _, err := slot.Channel(); err != nil {
				return err
			}
			slot.Connect(gctx, deadline)
			return nil
		})
	}
	return g.Wait()
}

// Close closes every materialised channel. The pool cannot be used afterwards.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	for _, slot := range p.slots {
		if err := slot.Close(); err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", slot.index, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) notifyState(index int, state connectivity.State) {
	if p.observer != nil {
		p.observer.OnChannelState(index, state)
	}
}

func (p *Pool) notifyRecycled(index int) {
	if p.observer != nil {
		p.observer.OnChannelRecycled(index)
	}
}
