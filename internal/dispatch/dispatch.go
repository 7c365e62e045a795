// Package dispatch implements the per-message pipeline: identity and admin
// resolution, prefix/command matching, the layered permission policy,
// throttling, at-most-one-handler execution and the finalize bookkeeping.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/sylph/internal/plugin"
	"github.com/nextlevelbuilder/sylph/internal/roster"
	"github.com/nextlevelbuilder/sylph/internal/store"
	"github.com/nextlevelbuilder/sylph/internal/wa"
)

// ToxicClassifier is the boolean text classifier collaborator.
type ToxicClassifier interface {
	IsToxic(text string) bool
}

// Options are the runtime toggles and limits the pipeline consults.
type Options struct {
	// SelfOnly drops every message not sent by the bot itself.
	SelfOnly bool
	// Listen drops every message (observation mode).
	Listen bool
	// StatusOnly drops everything outside the status broadcast chat.
	StatusOnly bool
	// Restrict enables admin-tagged plugins.
	Restrict bool
	// Queue serializes non-privileged senders through the fairness queue.
	Queue bool
	// AutoRead sends read receipts for processed messages.
	AutoRead bool

	SpamWindowMS   int64
	WarnLimit      int
	ToxicWarnLimit int

	// APIKeys values are masked out of error text echoed to chats.
	APIKeys map[string]string
}

// Dispatcher processes inbound events for one bridge connection. Messages
// on one connection are handled to completion one at a time; concurrency
// only exists between connections, arbitrated by fleet de-duplication.
type Dispatcher struct {
	Opts      Options
	Registry  *plugin.Registry
	Stores    *store.Stores
	Transport Transport
	Toxic     ToxicClassifier
	Roles     plugin.Roles
	Roster    roster.Options

	// Self is this connection's identity; Global is the primary
	// connection's identity when running a fleet.
	Self   wa.Identity
	Global wa.Identity

	// Peers returns the identities of the currently live connections,
	// including this one. nil means a single connection.
	Peers func() []wa.Identity

	Queue *Queue

	tracer  trace.Tracer
	now     func() time.Time
	randInt func(n int) int
}

// New finishes a Dispatcher: clock, randomness and tracer defaults.
func New(d *Dispatcher) *Dispatcher {
	if d.now == nil {
		d.now = time.Now
	}
	if d.randInt == nil {
		d.randInt = rand.Intn
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer("sylph/dispatch")
	}
	if d.Opts.SpamWindowMS == 0 {
		d.Opts.SpamWindowMS = 3000
	}
	if d.Opts.WarnLimit == 0 {
		d.Opts.WarnLimit = 3
	}
	if d.Opts.ToxicWarnLimit == 0 {
		d.Opts.ToxicWarnLimit = 4
	}
	return d
}

// reactionTrigger fires the reaction-on-match easter egg for chats that
// enable it.
var reactionTrigger = regexp.MustCompile(`(?i)(ción|dad|aje|oso|izar|mente|pero|tion|age|ous|ate|and|but|ify|ai|yuki|a|s)`)

var reactionEmojis = []string{
	"🍟", "😃", "😄", "😁", "😆", "🍓", "😅", "😂", "🤣", "🥲", "☺️", "😊",
	"😇", "🙂", "🙃", "😉", "😌", "😍", "🥰", "😘", "🌺", "🌸", "😋", "😜",
	"🤓", "😎", "🤩", "🥳", "😏", "💫", "🥺", "🤗", "🤔", "🤭", "🤖", "🍭",
	"🗿", "✨", "⚡", "🔥", "🌈", "❤️", "💛", "💚", "💙", "💜", "🤍", "💕",
	"💖", "💘", "👊", "💋", "💅", "👑", "🐣", "🐤", "🐈",
}

// Handle runs one inbound event through the pipeline. Nothing escaping it
// may crash the process: faults are recovered, logged and the message is
// dropped.
func (d *Dispatcher) Handle(ctx context.Context, ev *wa.MessageEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch: message dropped", "panic", r)
		}
	}()

	m := ev.Simplify(d.Self)
	if m == nil || m.Chat == "" {
		return
	}

	ctx, span := d.tracer.Start(ctx, "dispatch.message", trace.WithAttributes(
		attribute.String("chat", m.Chat),
		attribute.String("sender", m.Sender),
		attribute.Bool("group", m.IsGroup),
	))
	defer span.End()

	// Fleet de-duplication: in shared groups exactly one live connection
	// handles the message, pseudo-randomly elected.
	if m.IsGroup && d.Peers != nil {
		if peers := d.Peers(); len(peers) > 1 {
			elected := peers[d.randInt(len(peers))]
			if wa.Normalize(elected.JID) != wa.Normalize(d.Self.JID) {
				span.SetAttributes(attribute.Bool("dedup.dropped", true))
				return
			}
		}
	}

	user := d.Stores.Users.GetOrCreate(m.Sender, m.Name())
	chat := d.Stores.Chats.GetOrCreate(m.Chat)
	settings := d.Stores.Settings.GetOrCreate(d.Self.JID)

	// Per-chat bot allow-list: when the lag guard is on, only allow-listed
	// connections respond. The primary connection is always allowed.
	if chat.AntiLag {
		allowed := append([]string{}, chat.Allowed...)
		if d.Global.JID != "" {
			allowed = append(allowed, d.Global.JID)
		}
		ok := false
		for _, a := range allowed {
			if wa.Normalize(a) == wa.Normalize(d.Self.JID) {
				ok = true
				break
			}
		}
		if !ok {
			return
		}
	}

	if d.Opts.Listen {
		return
	}
	if (d.Opts.SelfOnly || settings.Self) && !m.FromMe {
		return
	}
	if d.Opts.StatusOnly && m.Chat != wa.StatusBroadcast {
		return
	}

	// Roster snapshot and admin standing. Metadata failures degrade to an
	// empty roster.
	var meta *wa.GroupMetadata
	var rosterEntries []wa.GroupParticipant
	if m.IsGroup {
		var err error
		meta, err = d.Transport.GroupMetadata(ctx, m.Chat)
		if err != nil {
			slog.Debug("dispatch: group metadata unavailable", "chat", m.Chat, "error", err)
		} else if meta != nil {
			rosterEntries = meta.Participants
		}
	}
	bots := []wa.Identity{d.Self}
	if d.Global.JID != "" && d.Global.JID != d.Self.JID {
		bots = append(bots, d.Global)
	}
	status := roster.AdminStatus(m, rosterEntries, bots, d.Roster)
	m.IsAdmin = status.IsAdmin
	m.IsSuperAdmin = status.IsSuperAdmin
	m.IsBotAdmin = status.IsBotAdmin

	isROwner := d.Roles.IsRootOwner(m.Sender, d.Self)
	if !isROwner && d.Global.JID != "" {
		isROwner = d.Roles.IsRootOwner(m.Sender, d.Global)
	}
	isOwner := d.Roles.IsOwner(isROwner, m.FromMe)
	isMods := d.Roles.IsModerator(m.Sender, isOwner)
	isPrems := d.Roles.IsPremium(m.Sender, isROwner, user)

	queued := false
	if d.Opts.Queue && d.Queue != nil && m.Text != "" && !(isMods || isPrems) {
		prev := d.Queue.Add(m.ID)
		queued = true
		d.Queue.Wait(ctx, prev)
	}

	nowMS := d.now().UnixMilli()

	// Bookkeeping runs whether or not a handler executed, mirroring the
	// accumulators' contract: apply deltas, evict the queue slot, bump
	// stats, then the passive chat features.
	defer d.finalize(ctx, m, user, chat, queued)

	if m.Internal {
		return
	}

	// Passive experience for any processed message, 1..10.
	m.Exp += d.randInt(10) + 1

	if m.IsGroup && chat.AntiToxic && d.Toxic != nil {
		d.handleToxic(ctx, m, user)
	}

	d.runPlugins(ctx, m, user, chat, status, isROwner, isOwner, isMods, isPrems, meta, nowMS)
}

// runPlugins walks the registry in registration order. At most one plugin's
// handler executes per message; the loop breaks after it.
func (d *Dispatcher) runPlugins(ctx context.Context, m *wa.Message, user *store.User, chat *store.Chat, status roster.Status, isROwner, isOwner, isMods, isPrems bool, meta *wa.GroupMetadata, nowMS int64) {
	conn := responder{d.Transport}
	participants := roster.BuildAll(rosterOf(meta), d.Roster)
	plugins := d.Registry.Plugins()

	// The all-hooks fire for every message on every plugin, independent of
	// the gated path, so they run as their own pass: a handler executing
	// and breaking the loop below must not starve later plugins' hooks.
	for _, p := range plugins {
		if p == nil || p.Disabled || p.All == nil {
			continue
		}
		runIsolated(p.Name+".all", func() {
			if err := p.All(ctx, m); err != nil {
				slog.Error("dispatch: all-hook failed", "plugin", p.Name, "error", err)
			}
		})
	}

	for _, p := range plugins {
		if p == nil || p.Disabled {
			continue
		}

		if !d.Opts.Restrict && p.HasTag("admin") {
			continue
		}

		usedPrefix, prefixOK := d.Registry.PrefixFor(p).MatchPrefix(m.Text)

		env := &plugin.Env{
			Conn:         conn,
			UsedPrefix:   usedPrefix,
			Group:        meta,
			Participants: participants,
			User:         status.Sender,
			Bot:          status.Bot,
			IsROwner:     isROwner,
			IsOwner:      isOwner,
			IsAdmin:      m.IsAdmin,
			IsRAdmin:     m.IsSuperAdmin,
			IsBotAdmin:   m.IsBotAdmin,
			IsPrems:      isPrems,
			UserRecord:   user,
			ChatRecord:   chat,
		}

		if p.Before != nil {
			intercept := false
			runIsolated(p.Name+".before", func() {
				var err error
				intercept, err = p.Before(ctx, m, env)
				if err != nil {
					slog.Error("dispatch: before-hook failed", "plugin", p.Name, "error", err)
				}
			})
			if intercept {
				continue
			}
		}

		if p.Handler == nil {
			continue
		}
		if !prefixOK || usedPrefix == "" {
			continue
		}

		command, args, noPrefix := plugin.SplitCommand(m.Text, usedPrefix)
		if !p.Command.MatchCommand(command) {
			continue
		}

		m.Plugin = p.Name

		// Handler-agnostic ban short-circuits; explicit recovery plugins
		// carry BypassBan.
		if chat.IsBanned && !isROwner && !p.BypassBan {
			return
		}
		if user.Antispam > 2 {
			return
		}
		if m.Text != "" && user.Banned && !isROwner && !p.BypassBan {
			reason := "✰ *Motivo:* Sin Especificar"
			if user.BannedReason != "" {
				reason = "✰ *Motivo:* " + user.BannedReason
			}
			d.reply(ctx, m, "《✦》Estas baneado/a, no puedes usar comandos en este bot!\n\n"+reason+"\n\n> ✧ Si este Bot es cuenta oficial y tiene evidencia que respalde que este mensaje es un error, puedes exponer tu caso con un moderador.")
			user.Antispam++
			return
		}

		// A root-owner carrying the secondary anti-spam flag is blocked
		// unconditionally.
		if user.Antispam2 && isROwner {
			return
		}

		if !acceptSpam(user, d.Opts.SpamWindowMS, nowMS) {
			slog.Info("dispatch: spam window hit", "sender", m.Sender, "plugin", p.Name)
			return
		}

		if p.Warn && !isOwner && !isROwner {
			d.handleWarn(ctx, m, user)
			return
		}

		// Admin-only chat mode: silently drop non-admin commands.
		if chat.AdminOnly && !isOwner && !isROwner && m.IsGroup && !m.IsAdmin {
			return
		}

		caps := plugin.Capabilities{
			ROwner:     isROwner,
			Owner:      isOwner,
			Mods:       isMods,
			Prems:      isPrems,
			Admin:      m.IsAdmin,
			BotAdmin:   m.IsBotAdmin,
			InGroup:    m.IsGroup,
			Registered: user.Registered,
		}
		failFn := func(ctx context.Context, kind plugin.DenyKind) {
			if p.Fail != nil {
				p.Fail(ctx, kind, m, conn)
				return
			}
			dfail(ctx, d.Transport, kind, m)
		}
		if kind, ok := plugin.Gate(p, caps); !ok {
			failFn(ctx, kind)
			continue
		}
		if p.BotAdmin && !m.IsBotAdmin {
			failFn(ctx, plugin.DenyBotAdmin)
			continue
		}

		m.IsCommand = true

		if xp := p.ExpReward(); xp > 200 {
			d.reply(ctx, m, "chirrido -_-")
		} else {
			m.Exp += xp
		}

		if !isPrems && p.Coin > 0 && user.Coin < p.Coin {
			d.reply(ctx, m, "❮✦❯ Se agotaron tus coins")
			continue
		}
		if p.Level > user.Level {
			d.reply(ctx, m, fmt.Sprintf("❮✦❯ Se requiere el nivel: *%d*\n\n• Tu nivel actual es: *%d*\n\n• Usa este comando para subir de nivel:\n*%slevelup*", p.Level, user.Level, usedPrefix))
			continue
		}

		env.NoPrefix = noPrefix
		env.Command = command
		env.Args = args
		env.Text = strings.Join(args, " ")

		d.execute(ctx, p, m, env, user, isPrems)
		break
	}
}

// execute runs the plugin body with fault isolation, then the after-hook
// and the coin charge notice regardless of the body's outcome.
func (d *Dispatcher) execute(ctx context.Context, p *plugin.Plugin, m *wa.Message, env *plugin.Env, user *store.User, isPrems bool) {
	ctx, span := d.tracer.Start(ctx, "dispatch.execute", trace.WithAttributes(
		attribute.String("plugin", p.Name),
	))
	defer span.End()

	defer func() {
		if p.After != nil {
			runIsolated(p.Name+".after", func() {
				if err := p.After(ctx, m, env); err != nil {
					slog.Error("dispatch: after-hook failed", "plugin", p.Name, "error", err)
				}
			})
		}
		if m.Coin > 0 {
			d.reply(ctx, m, fmt.Sprintf("❮✦❯ Utilizaste %d coins", m.Coin))
		}
	}()

	var err error
	runIsolated(p.Name, func() {
		err = p.Handler(ctx, m, env)
	})
	if err != nil {
		m.Err = err
		span.RecordError(err)
		slog.Error("dispatch: plugin failed", "plugin", p.Name, "error", err)
		d.reply(ctx, m, maskSensitive(err.Error(), d.Opts.APIKeys))
		return
	}
	if !isPrems && p.Coin > 0 {
		m.Coin = p.Coin
	}
}

// handleWarn escalates the flagged-plugin warning counter and attempts a
// removal at the threshold.
func (d *Dispatcher) handleWarn(ctx context.Context, m *wa.Message, user *store.User) {
	user.Warn++
	d.reply(ctx, m, fmt.Sprintf("⚠️ Advertencia %d/%d.", user.Warn, d.Opts.WarnLimit))
	if user.Warn < d.Opts.WarnLimit {
		return
	}
	user.Warn = 0
	if err := d.Transport.RemoveParticipant(ctx, m.Chat, m.Sender); err != nil {
		d.reply(ctx, m, "⚠️ No se pudo expulsar al usuario. Revisa permisos del bot.")
		return
	}
	d.reply(ctx, m, "🪴 Has sido expulsado por acumulación de advertencias.")
}

// handleToxic escalates the independent toxic-language counter, threshold
// ToxicWarnLimit, with the same reset-and-remove pattern.
func (d *Dispatcher) handleToxic(ctx context.Context, m *wa.Message, user *store.User) {
	if !d.Toxic.IsToxic(m.Text) {
		return
	}
	slog.Info("dispatch: toxic language detected", "sender", m.Sender, "chat", m.Chat)
	user.Warns++
	d.reply(ctx, m, fmt.Sprintf("🍭 *Advertencia por tóxico %d/%d*\nEvita usar lenguaje ofensivo.", user.Warns, d.Opts.ToxicWarnLimit))
	if user.Warns < d.Opts.ToxicWarnLimit {
		return
	}
	user.Warns = 0
	if err := d.Transport.RemoveParticipant(ctx, m.Chat, m.Sender); err != nil {
		slog.Error("dispatch: toxic removal failed", "sender", m.Sender, "error", err)
		d.reply(ctx, m, "⚠️ No se pudo expulsar al usuario. Verifica si el bot es admin.")
		return
	}
	d.reply(ctx, m, "❌ Usuario expulsado por comportamiento tóxico reiterado.")
}

// finalize applies the message accumulators and the passive chat features.
// Runs for every message, whichever branch ended the pipeline.
func (d *Dispatcher) finalize(ctx context.Context, m *wa.Message, user *store.User, chat *store.Chat, queued bool) {
	if queued && d.Queue != nil {
		d.Queue.Remove(m.ID)
	}

	if user.Muted && !m.FromMe {
		if err := d.Transport.DeleteMessage(ctx, m.Chat, m.Key); err != nil {
			slog.Debug("dispatch: muted delete failed", "chat", m.Chat, "error", err)
		}
	}

	user.Exp += m.Exp
	user.Coin -= m.Coin

	if m.Plugin != "" && m.IsCommand {
		d.Stores.Stats.Bump(m.Plugin, m.Err == nil, d.now().UnixMilli())
	}

	if d.Opts.AutoRead {
		if err := d.Transport.ReadMessages(ctx, []wa.MessageKey{m.Key}); err != nil {
			slog.Debug("dispatch: read receipt failed", "chat", m.Chat, "error", err)
		}
	}

	if chat.Reaction && !m.FromMe && m.Text != "" && reactionTrigger.MatchString(m.Text) {
		emoji := reactionEmojis[d.randInt(len(reactionEmojis))]
		if err := d.Transport.React(ctx, m.Chat, m.Key, emoji); err != nil {
			slog.Debug("dispatch: reaction failed", "chat", m.Chat, "error", err)
		}
	}
}

func (d *Dispatcher) reply(ctx context.Context, m *wa.Message, text string) {
	if err := d.Transport.SendText(ctx, m.Chat, text, &m.Key); err != nil {
		slog.Error("dispatch: reply failed", "chat", m.Chat, "error", err)
	}
}

// runIsolated confines a hook or handler panic to this plugin: a crashed
// plugin never aborts dispatch of the rest of the loop.
func runIsolated(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch: plugin panicked", "plugin", name, "panic", r)
		}
	}()
	fn()
}

func rosterOf(meta *wa.GroupMetadata) []wa.GroupParticipant {
	if meta == nil {
		return nil
	}
	return meta.Participants
}
