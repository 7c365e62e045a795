package wa

import (
	"bytes"
	"encoding/json"
	"strings"
)

const (
	// GroupSuffix marks group chat JIDs.
	GroupSuffix = "@g.us"
	// StatusBroadcast is the status-update pseudo chat.
	StatusBroadcast = "status@broadcast"
)

// MessageKey addresses a single message within a chat.
type MessageKey struct {
	ID          string `json:"id"`
	RemoteJID   string `json:"remoteJid"`
	FromMe      bool   `json:"fromMe"`
	Participant string `json:"participant,omitempty"`
}

// MessageEvent is the raw inbound event shape delivered by the transport.
// Message is the variant-tagged content object: its first key selects the
// content variant, and that variant's text/caption field (when present) is
// the command text.
type MessageEvent struct {
	Key      MessageKey      `json:"key"`
	Message  json.RawMessage `json:"message"`
	PushName string          `json:"pushName,omitempty"`
}

// GroupParticipant is one roster entry from a group-metadata snapshot.
// Entries may carry the identifier under ID or JID, and the role under
// Admin ("admin"/"superadmin") or Role, depending on the transport.
type GroupParticipant struct {
	ID    string `json:"id,omitempty"`
	JID   string `json:"jid,omitempty"`
	Admin string `json:"admin,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Identifier returns whichever identifier field is populated.
func (p GroupParticipant) Identifier() string {
	if p.ID != "" {
		return p.ID
	}
	return p.JID
}

// AdminRole returns the roster role, normalizing the two field spellings.
func (p GroupParticipant) AdminRole() string {
	if p.Admin != "" {
		return p.Admin
	}
	return p.Role
}

// GroupMetadata is a point-in-time snapshot of a group's roster.
type GroupMetadata struct {
	JID          string             `json:"id"`
	Subject      string             `json:"subject,omitempty"`
	Participants []GroupParticipant `json:"participants"`
}

// Message is the per-event processing context. It is created from a
// MessageEvent, mutated as it moves through the dispatch pipeline, and
// discarded after the finalize phase applies its accumulators.
type Message struct {
	Key      MessageKey
	ID       string
	Chat     string
	Sender   string
	FromMe   bool
	IsGroup  bool
	PushName string
	Text     string

	// Internal marks transport-generated housekeeping messages
	// (identified by their ID shape) that must never reach handlers.
	Internal bool

	// Flags computed during identity/admin resolution.
	IsAdmin      bool
	IsSuperAdmin bool
	IsBotAdmin   bool
	IsCommand    bool

	// Accumulators applied in the finalize phase.
	Exp    int
	Coin   int
	Plugin string
	Err    error
}

// Simplify derives the processing context from a raw event, the way the
// transport layer observes it: sender falls back through participant fields
// to the chat for DMs, and self-messages take the connection's own identity.
func (ev *MessageEvent) Simplify(self Identity) *Message {
	if ev == nil {
		return nil
	}
	m := &Message{
		Key:      ev.Key,
		ID:       ev.Key.ID,
		Chat:     ev.Key.RemoteJID,
		FromMe:   ev.Key.FromMe,
		PushName: ev.PushName,
	}
	m.IsGroup = strings.HasSuffix(m.Chat, GroupSuffix)
	if m.FromMe {
		m.Sender = self.JID
	} else if ev.Key.Participant != "" {
		m.Sender = ev.Key.Participant
	} else {
		m.Sender = m.Chat
	}
	m.Internal = isInternalID(m.ID)
	m.Text = extractText(ev.Message)
	return m
}

// Name returns the display name, defaulting like the transport does.
func (m *Message) Name() string {
	if m.PushName != "" {
		return m.PushName
	}
	return "User"
}

// isInternalID recognizes transport-generated message IDs.
func isInternalID(id string) bool {
	switch {
	case strings.HasPrefix(id, "BAE5"):
		return true
	case strings.HasPrefix(id, "3EB0"):
		return true
	case strings.HasPrefix(id, "NJX-"):
		return true
	case strings.HasPrefix(id, "B24E") && len(id) == 20:
		return true
	}
	return false
}

// contentVariant is the subset of a message content variant the dispatcher
// cares about. Conversation-style variants are plain strings on the wire.
type contentVariant struct {
	Text        string `json:"text"`
	Caption     string `json:"caption"`
	ContentText string `json:"contentText"`
}

// extractText pulls the command text out of the variant-tagged content
// object. JSON objects are unordered in Go maps, so the first key is found
// by scanning the token stream in declaration order.
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return ""
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if _, err := dec.Token(); err != nil { // opening brace
		return ""
	}
	tok, err := dec.Token()
	if err != nil {
		return ""
	}
	if _, ok := tok.(string); !ok {
		return ""
	}

	var variant json.RawMessage
	if err := dec.Decode(&variant); err != nil {
		return ""
	}

	variant = bytes.TrimSpace(variant)
	if len(variant) == 0 {
		return ""
	}
	// The "conversation" variant is a bare string.
	if variant[0] == '"' {
		var s string
		if json.Unmarshal(variant, &s) == nil {
			return s
		}
		return ""
	}
	var v contentVariant
	if json.Unmarshal(variant, &v) != nil {
		return ""
	}
	switch {
	case v.Text != "":
		return v.Text
	case v.Caption != "":
		return v.Caption
	default:
		return v.ContentText
	}
}
