// Package protocol defines the JSON wire format spoken between the sylph
// runtime and a WhatsApp bridge process over WebSocket. The bridge owns the
// actual WhatsApp session; the runtime only exchanges envelopes.
package protocol

import "github.com/nextlevelbuilder/sylph/internal/wa"

// Envelope types pushed from the bridge to the runtime.
const (
	// TypeReady announces the connection's own identity. Sent once after
	// the bridge has an authenticated session.
	TypeReady = "ready"
	// TypeMessage carries one inbound message event.
	TypeMessage = "message"
)

// Envelope types sent from the runtime to the bridge. Requests that carry a
// correlation ID get a response envelope of the same type echoing the ID.
const (
	TypeGroupMetadata     = "group_metadata"
	TypeSendText          = "send"
	TypeReact             = "react"
	TypeRemoveParticipant = "remove_participant"
	TypeRead              = "read"
	TypeDelete            = "delete"
)

// Envelope is the wire shape in both directions. Type selects which fields
// are meaningful; unused fields are omitted on the wire.
type Envelope struct {
	Type string `json:"type"`
	// ID correlates a request with its response. Fire-and-forget
	// envelopes leave it empty.
	ID string `json:"id,omitempty"`

	// TypeReady
	JID string `json:"jid,omitempty"`
	LID string `json:"lid,omitempty"`

	// TypeMessage
	Event *wa.MessageEvent `json:"event,omitempty"`

	// Requests and results.
	Chat        string            `json:"chat,omitempty"`
	Text        string            `json:"text,omitempty"`
	Quoted      *wa.MessageKey    `json:"quoted,omitempty"`
	MsgKey      *wa.MessageKey    `json:"key,omitempty"`
	Keys        []wa.MessageKey   `json:"keys,omitempty"`
	Emoji       string            `json:"emoji,omitempty"`
	Participant string            `json:"participant,omitempty"`
	Metadata    *wa.GroupMetadata `json:"metadata,omitempty"`

	// Error is set on a response when the bridge could not serve the
	// request. A non-empty value makes the whole call fail.
	Error string `json:"error,omitempty"`
}
