package browse

import (
	"context"
	"errors"
	"time"

	"github.com/EOSC-Data-Commons/req-packager/internal/models"
)

// ErrDeliveryTimeout is returned when an event waits longer than the
// delivery timeout for buffer space.
var ErrDeliveryTimeout = errors.New("delivery timed out: consumer not reading")

// Sink receives the events of one session, in order. Send blocks until the
// event is accepted or fails.
type Sink interface {
	Send(ctx context.Context, ev models.BrowseEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev models.BrowseEvent) error

func (f SinkFunc) Send(ctx context.Context, ev models.BrowseEvent) error {
	return f(ctx, ev)
}

// ChannelSink pushes events into a bounded channel. A full channel blocks
// the producer; that is the only backpressure. Only file entries are
// subject to the delivery timeout: every other event waits for buffer
// space until ctx is done, so a live consumer always sees the terminal
// event.
type ChannelSink struct {
	ch      chan<- models.BrowseEvent
	timeout time.Duration
}

// NewChannelSink wraps ch. A zero timeout makes file entries wait until
// ctx is done as well.
func NewChannelSink(ch chan<- models.BrowseEvent, timeout time.Duration) *ChannelSink {
	return &ChannelSink{ch: ch, timeout: timeout}
}

func (s *ChannelSink) Send(ctx context.Context, ev models.BrowseEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case s.ch <- ev:
		return nil
	default:
	}

	var expired <-chan time.Time
	if s.timeout > 0 && ev.Kind == models.EventFileEntry {
		t := time.NewTimer(s.timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return ErrDeliveryTimeout
	}
}
