package dispatch

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/sylph/internal/plugin"
	"github.com/nextlevelbuilder/sylph/internal/wa"
)

// Transport is the outbound surface of one bridge connection. Every call is
// fallible; callers degrade gracefully (empty roster, logged send failure)
// instead of aborting dispatch.
type Transport interface {
	GroupMetadata(ctx context.Context, chat string) (*wa.GroupMetadata, error)
	SendText(ctx context.Context, chat, text string, quoted *wa.MessageKey) error
	React(ctx context.Context, chat string, key wa.MessageKey, emoji string) error
	RemoveParticipant(ctx context.Context, chat, participant string) error
	ReadMessages(ctx context.Context, keys []wa.MessageKey) error
	DeleteMessage(ctx context.Context, chat string, key wa.MessageKey) error
}

// responder adapts a Transport to the plugin.Responder surface.
type responder struct {
	t Transport
}

func (r responder) Reply(ctx context.Context, chat, text string, quoted *wa.Message) error {
	var key *wa.MessageKey
	if quoted != nil {
		key = &quoted.Key
	}
	return r.t.SendText(ctx, chat, text, key)
}

func (r responder) React(ctx context.Context, m *wa.Message, emoji string) error {
	return r.t.React(ctx, m.Chat, m.Key, emoji)
}

func (r responder) Remove(ctx context.Context, chat, participant string) error {
	return r.t.RemoveParticipant(ctx, chat, participant)
}

// denyMessages is the fixed user-facing reply per permission failure kind.
var denyMessages = map[plugin.DenyKind]string{
	plugin.DenyROwner:   "*`🍉 sᴏʟᴏ ᴅᴇsᴀʀʀᴏʟʟᴀᴅᴏʀ • ᴇsᴛᴇ ᴄᴏᴍᴀɴᴅᴏ sᴏʟᴏ ᴘᴜᴇᴅᴇ sᴇʀ ᴜsᴀᴅᴏ ᴘᴏʀ ᴇʟ ᴅᴇsᴀʀʀᴏʟʟᴀᴅᴏʀ ᴅᴇʟ ʙᴏᴛ`*",
	plugin.DenyOwner:    "*`🍉 sᴏʟᴏ ᴘʀᴏᴘɪᴇᴛᴀʀɪᴏ • ᴇsᴛᴇ ᴄᴏᴍᴀɴᴅᴏ sᴏʟᴏ ᴘᴜᴇᴅᴇ sᴇʀ ᴜsᴀᴅᴏ ᴘᴏʀ ᴇʟ ᴘʀᴏᴘɪᴇᴛᴀʀɪᴏ ᴅᴇʟ ʙᴏᴛ`*",
	plugin.DenyMods:     "*`🍉 sᴏʟᴏ ᴍᴏᴅᴇʀᴀᴅᴏʀᴇs • ᴇsᴛᴇ ᴄᴏᴍᴀɴᴅᴏ sᴏʟᴏ ᴘᴜᴇᴅᴇ sᴇʀ ᴜsᴀᴅᴏ ᴘᴏʀ ᴍᴏᴅᴇʀᴀᴅᴏʀᴇs ᴅᴇʟ ʙᴏᴛ`*",
	plugin.DenyPremium:  "*`🍉 sᴏʟᴏ ᴜsᴜᴀʀɪᴏs ᴘʀᴇᴍɪᴜᴍ • ᴇsᴛᴇ ᴄᴏᴍᴀɴᴅᴏ sᴏʟᴏ ᴘᴜᴇᴅᴇ sᴇʀ ᴜsᴀᴅᴏ ᴘᴏʀ ᴜsᴜᴀʀɪᴏs ᴘʀᴇᴍɪᴜᴍ`*",
	plugin.DenyGroup:    "*`🍉 ᴄʜᴀᴛ ᴅᴇ ɢʀᴜᴘᴏ • ᴇsᴛᴇ ᴄᴏᴍᴀɴᴅᴏ sᴏʟᴏ ᴘᴜᴇᴅᴇ sᴇʀ ᴜsᴀᴅᴏ ᴇɴ ɢʀᴜᴘᴏs`*",
	plugin.DenyPrivate:  "*`🍉 ᴄʜᴀᴛ ᴘʀɪᴠᴀᴅᴏ • ᴇsᴛᴇ ᴄᴏᴍᴀɴᴅᴏ sᴏʟᴏ ᴘᴜᴇᴅᴇ sᴇʀ ᴜsᴀᴅᴏ ᴇɴ ᴄʜᴀᴛs ᴘʀɪᴠᴀᴅᴏs`*",
	plugin.DenyAdmin:    "*`🍉 sᴏʟᴏ ᴀᴅᴍɪɴɪsᴛʀᴀᴅᴏʀᴇs • ᴇsᴛᴇ ᴄᴏᴍᴀɴᴅᴏ sᴏʟᴏ ᴘᴜᴇᴅᴇ sᴇʀ ᴜsᴀᴅᴏ ᴘᴏʀ ᴀᴅᴍɪɴs ᴅᴇʟ ɢʀᴜᴘᴏ`*",
	plugin.DenyBotAdmin: "*`🍉 sᴏʟᴏ ᴄᴜᴀɴᴅᴏ ᴇʟ ʙᴏᴛ ᴇs ᴀᴅᴍɪɴ • ᴇsᴛᴇ ᴄᴏᴍᴀɴᴅᴏ sᴏʟᴏ ᴘᴜᴇᴅᴇ sᴇʀ ᴜsᴀᴅᴏ ᴄᴜᴀɴᴅᴏ ᴇʟ ʙᴏᴛ ᴇs ᴀᴅᴍɪɴ`*",
	plugin.DenyUnreg:    "*`🍉 ɴᴏ ᴇsᴛᴀ́s ʀᴇɢɪsᴛʀᴀᴅᴏ/ᴀ • ᴇsᴄʀɪʙᴇ .ʀᴇɢ ᴘᴀʀᴀ ᴘᴏᴅᴇʀ ᴜsᴀʀ ᴇsᴛᴀ ғᴜɴᴄɪᴏ́ɴ`*",
	plugin.DenyRestrict: "*`🍉 ʀᴇsᴛʀɪɴɢɪᴅᴏ • ʟᴀs ʀᴇsᴛʀɪᴄᴄɪᴏɴᴇs ɴᴏ ᴇsᴛᴀ́ɴ ᴀᴄᴛɪᴠᴀᴅᴀs ᴇɴ ᴇsᴛᴇ ᴄʜᴀᴛ`*",
}

// dfail sends the deny reply for a permission failure, then marks the
// message with a cross reaction. Send failures are logged only.
func dfail(ctx context.Context, t Transport, kind plugin.DenyKind, m *wa.Message) {
	msg, ok := denyMessages[kind]
	if !ok {
		return
	}
	if err := t.SendText(ctx, m.Chat, msg, &m.Key); err != nil {
		slog.Error("dispatch: deny reply failed", "kind", kind, "chat", m.Chat, "error", err)
		return
	}
	if err := t.React(ctx, m.Chat, m.Key, "✖️"); err != nil {
		slog.Debug("dispatch: deny react failed", "chat", m.Chat, "error", err)
	}
}
