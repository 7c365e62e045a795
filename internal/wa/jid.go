// Package wa holds WhatsApp identity and wire shapes shared across the runtime:
// JID normalization, same-user comparison strategies, and the inbound message
// event model delivered by the bridge.
//
// JIDs look like `localpart[:device]@domain`. Group rosters mix full JIDs,
// short numeric JIDs and transport-specific alternate identifiers for the same
// principal, so raw string equality under-matches in practice. Comparison must
// go through Normalize (or a SameUserFunc cascade), never `==` alone.
package wa

import "strings"

// Normalize reduces a JID to its canonical digits-only form: everything after
// '@' is dropped, then everything after ':' (the device suffix), then any
// non-digit character. Lossy and many-to-one, so only useful for equality.
// Total: empty input yields the empty string.
func Normalize(jid string) string {
	if jid == "" {
		return ""
	}
	base := jid
	if i := strings.IndexByte(base, '@'); i >= 0 {
		base = base[:i]
	}
	if i := strings.IndexByte(base, ':'); i >= 0 {
		base = base[:i]
	}
	var b strings.Builder
	for _, r := range base {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Clean strips only the `:device` component of a JID, keeping the domain.
func Clean(jid string) string {
	if jid == "" {
		return ""
	}
	if i := strings.IndexByte(jid, ':'); i >= 0 {
		at := strings.IndexByte(jid, '@')
		if at < 0 || i < at {
			rest := ""
			if at >= 0 {
				rest = jid[at:]
			}
			return jid[:i] + rest
		}
	}
	return jid
}

// Digits strips every non-digit character. Used to canonicalize configured
// owner/moderator phone numbers, which may carry formatting.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DecodeFunc decodes a transport-specific JID into its full canonical form.
// The identity function is a valid decoder.
type DecodeFunc func(jid string) string

// Identity is a bot connection's own addressing: the connection JID and the
// optional alternate (linked-device) identifier some rosters use instead.
type Identity struct {
	JID string
	LID string
}

// JIDs returns the non-empty identifiers of this identity.
func (id Identity) JIDs() []string {
	out := make([]string, 0, 2)
	if id.JID != "" {
		out = append(out, id.JID)
	}
	if id.LID != "" {
		out = append(out, id.LID)
	}
	return out
}
