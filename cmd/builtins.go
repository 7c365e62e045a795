package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/sylph/internal/plugin"
	"github.com/nextlevelbuilder/sylph/internal/wa"
)

// registerBuiltins installs the baseline command set. The embedding program
// can register further plugins before the fleet starts.
func registerBuiltins(reg *plugin.Registry) error {
	started := time.Now()

	builtins := []*plugin.Plugin{
		{
			Name:    "info-ping",
			Tags:    []string{"info"},
			Command: plugin.Literal("ping"),
			Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
				return env.Conn.Reply(ctx, m.Chat, fmt.Sprintf("🏓 Pong! Activo desde hace %s.", time.Since(started).Round(time.Second)), m)
			},
		},
		{
			Name:    "user-reg",
			Tags:    []string{"user"},
			Command: plugin.Literals("reg", "register"),
			Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
				name := strings.TrimSpace(env.Text)
				if name == "" {
					name = m.Name()
				}
				env.UserRecord.Name = name
				env.UserRecord.Registered = true
				env.UserRecord.RegTime = time.Now().UnixMilli()
				return env.Conn.Reply(ctx, m.Chat, fmt.Sprintf("✧ Registro completado, *%s*.", name), m)
			},
		},
		{
			Name:     "user-profile",
			Tags:     []string{"user"},
			Command:  plugin.Literals("profile", "perfil"),
			Register: true,
			Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
				u := env.UserRecord
				text := fmt.Sprintf("✧ *%s*\n• Nivel: %d\n• Exp: %d\n• Coins: %d\n• Advertencias: %d/3",
					u.Name, u.Level, u.Exp, u.Coin, u.Warn)
				return env.Conn.Reply(ctx, m.Chat, text, m)
			},
		},
		{
			Name:      "grupo-unbanchat",
			Tags:      []string{"owner"},
			Command:   plugin.Literal("unbanchat"),
			Owner:     true,
			BypassBan: true,
			Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
				env.ChatRecord.IsBanned = false
				return env.Conn.Reply(ctx, m.Chat, "✧ Este chat fue desbaneado.", m)
			},
		},
		{
			Name:    "grupo-banchat",
			Tags:    []string{"owner"},
			Command: plugin.Literal("banchat"),
			Owner:   true,
			Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
				env.ChatRecord.IsBanned = true
				return env.Conn.Reply(ctx, m.Chat, "✧ Este chat fue baneado.", m)
			},
		},
		{
			Name:     "grupo-kick",
			Tags:     []string{"admin"},
			Command:  plugin.Literals("kick", "echar"),
			Group:    true,
			Admin:    true,
			BotAdmin: true,
			Handler: func(ctx context.Context, m *wa.Message, env *plugin.Env) error {
				if len(env.Args) == 0 {
					return env.Conn.Reply(ctx, m.Chat, fmt.Sprintf("✧ Uso: *%skick @usuario*", env.UsedPrefix), m)
				}
				target := wa.Digits(env.Args[0]) + "@s.whatsapp.net"
				if err := env.Conn.Remove(ctx, m.Chat, target); err != nil {
					return fmt.Errorf("no se pudo expulsar: %w", err)
				}
				return env.Conn.Reply(ctx, m.Chat, "🪴 Usuario expulsado.", m)
			},
		},
	}

	for _, p := range builtins {
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	return nil
}
