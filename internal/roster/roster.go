// Package roster resolves participants inside a group-metadata snapshot.
//
// Rosters are observed to mix full-JID, short-number and alternate-identifier
// representations for the same principal, so lookup runs a cascade of
// matching strategies in strict precedence order. Every strategy is
// fault-isolated: a failing strategy is skipped and the cascade continues.
package roster

import (
	"github.com/nextlevelbuilder/sylph/internal/wa"
)

// Participant is a resolved roster entry. It lives only as long as the
// group-metadata snapshot it came from and is never persisted.
type Participant struct {
	ID      string // raw identifier as the roster carries it
	Full    string // decoded identifier
	Num     string // canonical digits
	Role    string // "admin", "superadmin" or ""
	IsAdmin bool
}

// Options configures resolution. Decode defaults to the identity function;
// SameUser is the transport's comparator and may be nil.
type Options struct {
	Decode   wa.DecodeFunc
	SameUser wa.SameUserFunc
}

func (o Options) decode(jid string) string {
	if o.Decode == nil {
		return jid
	}
	if full := o.Decode(jid); full != "" {
		return full
	}
	return jid
}

// Build normalizes one raw roster entry into a Participant.
func Build(p wa.GroupParticipant, opts Options) Participant {
	raw := p.Identifier()
	full := opts.decode(raw)
	role := p.AdminRole()
	return Participant{
		ID:      raw,
		Full:    full,
		Num:     wa.Normalize(full),
		Role:    role,
		IsAdmin: role != "",
	}
}

// BuildAll normalizes a whole roster.
func BuildAll(roster []wa.GroupParticipant, opts Options) []Participant {
	out := make([]Participant, 0, len(roster))
	for _, p := range roster {
		if p.Identifier() == "" {
			continue
		}
		out = append(out, Build(p, opts))
	}
	return out
}

// Find locates target in the roster. Strategies are tried per entry in strict
// precedence order, first success wins:
//
//  1. the transport comparator, against raw-raw, decoded-decoded and
//     raw-decoded pairs
//  2. canonical-numeric equality (decoded and raw forms)
//  3. device-suffix-stripped equality (raw and decoded forms)
//  4. exact raw string equality
//
// Returns nil when no entry matches.
func Find(target string, roster []wa.GroupParticipant, opts Options) *wa.GroupParticipant {
	if target == "" || len(roster) == 0 {
		return nil
	}

	targetFull := opts.decode(target)
	targetNum := wa.Normalize(targetFull)
	if targetNum == "" {
		targetNum = wa.Normalize(target)
	}
	targetClean := wa.Clean(target)
	targetFullClean := wa.Clean(targetFull)

	for i := range roster {
		p := &roster[i]
		raw := p.Identifier()
		if raw == "" {
			continue
		}
		full := opts.decode(raw)

		if wa.Same(opts.SameUser, raw, target) ||
			wa.Same(opts.SameUser, full, targetFull) ||
			wa.Same(opts.SameUser, raw, targetFull) {
			return p
		}

		if num := wa.Normalize(full); num != "" && num == targetNum {
			return p
		}
		if num := wa.Normalize(raw); num != "" && num == targetNum {
			return p
		}

		if c := wa.Clean(raw); c != "" && c == targetClean {
			return p
		}
		if c := wa.Clean(full); c != "" && c == targetFullClean {
			return p
		}

		if raw == target || full == target {
			return p
		}
	}
	return nil
}
