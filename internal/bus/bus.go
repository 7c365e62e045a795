package bus

import (
	"context"
	"log/slog"
	"sync"
)

const inboundBuffer = 256

// MessageBus is a buffered in-process implementation of MessageRouter.
type MessageBus struct {
	inbound chan InboundEvent

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a MessageBus with a bounded inbound buffer.
func New() *MessageBus {
	return &MessageBus{
		inbound: make(chan InboundEvent, inboundBuffer),
		closed:  make(chan struct{}),
	}
}

// PublishInbound enqueues an event for the dispatch loop. Events arriving
// while the buffer is full are dropped with a warning rather than blocking
// the bridge read loop.
func (b *MessageBus) PublishInbound(ev InboundEvent) {
	select {
	case <-b.closed:
		return
	default:
	}
	select {
	case b.inbound <- ev:
	default:
		slog.Warn("bus: inbound buffer full, dropping event",
			"conn", ev.Conn, "chat", ev.Event.Key.RemoteJID)
	}
}

// ConsumeInbound blocks until an event is available or ctx is done. The
// second return is false when the consumer should stop.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundEvent, bool) {
	select {
	case ev, ok := <-b.inbound:
		return ev, ok
	case <-ctx.Done():
		return InboundEvent{}, false
	case <-b.closed:
		return InboundEvent{}, false
	}
}

// Close stops the bus. Safe to call more than once.
func (b *MessageBus) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}
