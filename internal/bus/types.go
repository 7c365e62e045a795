// Package bus routes inbound WhatsApp events from bridge connections to the
// dispatcher without coupling either side to the other.
package bus

import (
	"context"

	"github.com/nextlevelbuilder/sylph/internal/wa"
)

// InboundEvent is one message event received on a bridge connection.
type InboundEvent struct {
	// Conn names the bridge connection that received the event.
	Conn string
	// Event is the raw upsert payload from the bridge.
	Event *wa.MessageEvent
}

// MessageRouter abstracts inbound event routing between bridges and the
// dispatch loop.
type MessageRouter interface {
	PublishInbound(ev InboundEvent)
	ConsumeInbound(ctx context.Context) (InboundEvent, bool)
}
