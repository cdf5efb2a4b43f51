package topics

import (
	"context"
	"errors"
	"io"
	"sync/atomic"

	relayerrors "github.com/relaycache/relay-go/pkg/errors"
	"github.com/relaycache/relay-go/pkg/transport"
	"github.com/relaycache/relay-go/pkg/wire"
)

// Event is one of Item, Heartbeat or Discontinuity
type Event interface {
	isEvent()
}

// Item is a published value
type Item struct {
	Sequence uint64
	Value    wire.TopicValue
}

// Text returns the value of a text item
func (i Item) Text() string { return i.Value.Text }

// Bytes returns the value as bytes, whatever its kind
func (i Item) Bytes() []byte {
	if i.Value.IsText {
		return []byte(i.Value.Text)
	}
	return i.Value.Binary
}

// Heartbeat tells an idle subscriber that the stream is alive
type Heartbeat struct{}

// Discontinuity reports that items between LastSequence and NewSequence
// were lost
type Discontinuity struct {
	LastSequence uint64
	NewSequence  uint64
}

func (Item) isEvent()          {}
func (Heartbeat) isEvent()     {}
func (Discontinuity) isEvent() {}

// Subscription is an open topic stream. Next must not be called
// concurrently; Close may be called from any goroutine.
type Subscription struct {
	stream    *transport.ClientStream
	cacheName string
	topic     string
	last      atomic.Uint64
}

func newSubscription(stream *transport.ClientStream, cacheName, topic string, after uint64) *Subscription {
	s := &Subscription{stream: stream, cacheName: cacheName, topic: topic}
	s.last.Store(after)
	return s
}

// CacheName returns the cache the topic lives in
func (s *Subscription) CacheName() string { return s.cacheName }

// Topic returns the subscribed topic
func (s *Subscription) Topic() string { return s.topic }

// LastSequence returns the sequence number of the last item delivered, to
// resume from with SubscribeFrom
func (s *Subscription) LastSequence() uint64 { return s.last.Load() }

// Next blocks until the next event. It returns io.EOF when the server ended
// the subscription and an *errors.SdkError on failure. If ctx is done
// before an event arrives the subscription is closed and Next returns a
// CancelledError.
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		s.Close()
		return nil, relayerrors.Cancelled(err)
	}
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	msg, err := s.stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}

	item, err := wire.UnmarshalSubscriptionItem(msg)
	if err != nil {
		return nil, relayerrors.Unexpected(err)
	}
	switch item.Kind {
	case wire.ItemValue:
		s.last.Store(item.Sequence)
		return Item{Sequence: item.Sequence, Value: item.Value}, nil
	case wire.ItemDiscontinuity:
		s.last.Store(item.NewSequence)
		return Discontinuity{LastSequence: item.LastSequence, NewSequence: item.NewSequence}, nil
	default:
		return Heartbeat{}, nil
	}
}

// Close ends the subscription. It is idempotent.
func (s *Subscription) Close() error {
	return s.stream.Close()
}
