// Package plugin defines the command-handler model: the descriptor with its
// capability requirements, the prefix/command matchers, the permission gate,
// and the ordered registry the dispatch loop walks.
package plugin

import (
	"context"

	"github.com/nextlevelbuilder/sylph/internal/roster"
	"github.com/nextlevelbuilder/sylph/internal/store"
	"github.com/nextlevelbuilder/sylph/internal/wa"
)

// Responder is the outbound surface handlers get. The dispatch layer
// implements it on top of the transport.
type Responder interface {
	Reply(ctx context.Context, chat, text string, quoted *wa.Message) error
	React(ctx context.Context, m *wa.Message, emoji string) error
	Remove(ctx context.Context, chat, participant string) error
}

// Env carries the per-invocation context a handler receives alongside the
// message: parse results, roster snapshot, resolved capabilities and the
// durable records for the sender and chat.
type Env struct {
	Conn Responder

	UsedPrefix string
	NoPrefix   string
	Command    string
	Args       []string
	Text       string

	Group        *wa.GroupMetadata
	Participants []roster.Participant
	User         *roster.Participant
	Bot          *roster.Participant

	IsROwner   bool
	IsOwner    bool
	IsAdmin    bool
	IsRAdmin   bool
	IsBotAdmin bool
	IsPrems    bool

	UserRecord *store.User
	ChatRecord *store.Chat
}

// HandlerFunc is a plugin's main body.
type HandlerFunc func(ctx context.Context, m *wa.Message, env *Env) error

// BeforeFunc runs before prefix acceptance; returning intercept=true makes
// the loop continue to the next plugin without executing this one. Used for
// stateful multi-step conversations.
type BeforeFunc func(ctx context.Context, m *wa.Message, env *Env) (intercept bool, err error)

// AllFunc fires for every inbound message regardless of prefix match. Its
// failure is logged and never aborts the loop.
type AllFunc func(ctx context.Context, m *wa.Message) error

// FailFunc overrides the default permission-denied reply for one plugin.
type FailFunc func(ctx context.Context, kind DenyKind, m *wa.Message, conn Responder)

// DefaultExp is the experience reward for plugins that do not declare one.
const DefaultExp = 17

// Plugin describes one registered command handler. Registered once at
// startup and read-only during dispatch, except for Disabled.
type Plugin struct {
	Name string
	Tags []string

	// Prefix overrides the registry default; nil defers to it.
	Prefix *Affix
	// Command must match the extracted command word; a plugin without a
	// command spec never matches.
	Command *Affix

	// Capability requirements, checked in the gate's fixed order.
	RootOwner bool
	Owner     bool
	Mods      bool
	Premium   bool
	Admin     bool
	BotAdmin  bool
	Group     bool
	Private   bool
	Register  bool

	// Warn marks the plugin as flagged: non-privileged callers accumulate
	// escalating warnings when they trigger it.
	Warn bool
	// BypassBan exempts this plugin from the chat/user ban short-circuit
	// (unban and owner-recovery commands).
	BypassBan bool

	Coin   int  // currency price per invocation
	Exp    int  // experience reward; 0 means DefaultExp
	HasExp bool // distinguishes explicit 0 from unset
	Level  int  // minimum user level

	Disabled bool

	All     AllFunc
	Before  BeforeFunc
	Handler HandlerFunc
	After   HandlerFunc
	Fail    FailFunc
}

// HasTag reports whether the plugin carries the given tag.
func (p *Plugin) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ExpReward returns the declared experience reward, or the default.
func (p *Plugin) ExpReward() int {
	if p.HasExp {
		return p.Exp
	}
	return DefaultExp
}
