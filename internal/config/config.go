// Package config loads the runtime configuration: a JSON5 file with env-var
// overlays on top of sensible defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON; owner and
// moderator lists are phone numbers users paste in either form.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the sylph runtime.
type Config struct {
	// Prefix is the default command prefix character set; any single
	// leading character from this set starts a command. Plugins may
	// declare their own prefix spec instead.
	Prefix string `json:"prefix"`

	Owners FlexibleStringSlice `json:"owners"`
	Mods   FlexibleStringSlice `json:"mods"`
	Prems  FlexibleStringSlice `json:"prems"`

	// APIKeys are masked out of error text echoed back to chats.
	APIKeys map[string]string `json:"api_keys,omitempty"`

	Opts       OptsConfig       `json:"opts"`
	Limits     LimitsConfig     `json:"limits"`
	Bridges    []BridgeConfig   `json:"bridges"`
	Database   DatabaseConfig   `json:"database"`
	Moderation ModerationConfig `json:"moderation"`
	Tracing    TracingConfig    `json:"tracing"`
	Flush      FlushConfig      `json:"flush"`
}

// OptsConfig are the runtime behavior toggles.
type OptsConfig struct {
	// Self ignores every message not sent by the bot itself.
	Self bool `json:"self"`
	// Restrict enables admin-tagged plugins; off skips them entirely.
	Restrict bool `json:"restrict"`
	// Queue serializes non-privileged senders through the fairness queue.
	Queue bool `json:"queue"`
	// AutoRead sends read receipts for processed messages.
	AutoRead bool `json:"autoread"`
	// StatusOnly processes only status-broadcast events.
	StatusOnly bool `json:"status_only"`
	// Listen drops every inbound message (observation mode).
	Listen bool `json:"listen"`
}

// LimitsConfig bounds abuse and load handling.
type LimitsConfig struct {
	SpamWindowMS   int64 `json:"spam_window_ms"`
	WarnLimit      int   `json:"warn_limit"`
	ToxicWarnLimit int   `json:"toxic_warn_limit"`
	QueueStepMS    int64 `json:"queue_step_ms"`
	SendPerMinute  int   `json:"send_per_minute"`
}

// BridgeConfig describes one WhatsApp bridge connection. The first entry is
// the primary connection whose identity is the fleet's global identity.
type BridgeConfig struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// DatabaseConfig selects the durable store backend.
type DatabaseConfig struct {
	Backend     string `json:"backend"` // "file" or "postgres"
	Path        string `json:"path"`    // file backend snapshot
	PostgresDSN string `json:"-"`       // env only, never in the config file
}

// ModerationConfig tunes the toxic-language classifier.
type ModerationConfig struct {
	// WordsFile adds extra words to the built-in list; watched for changes.
	WordsFile string `json:"words_file,omitempty"`
}

// TracingConfig enables the OTLP trace exporter.
type TracingConfig struct {
	Enabled  bool   `json:"enabled"`
	Protocol string `json:"protocol"` // "grpc" or "http"
	Endpoint string `json:"endpoint"`
	Insecure bool   `json:"insecure"`
}

// FlushConfig schedules periodic store flushes (cron expression).
type FlushConfig struct {
	Schedule string `json:"schedule"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Prefix: ".#/!",
		Opts: OptsConfig{
			Restrict: true,
		},
		Limits: LimitsConfig{
			SpamWindowMS:   3000,
			WarnLimit:      3,
			ToxicWarnLimit: 4,
			QueueStepMS:    5000,
			SendPerMinute:  20,
		},
		Database: DatabaseConfig{
			Backend: "file",
			Path:    "~/.sylph/database.json",
		},
		Tracing: TracingConfig{
			Protocol: "grpc",
		},
		Flush: FlushConfig{
			Schedule: "*/5 * * * *",
		},
	}
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return home + strings.TrimPrefix(path, "~")
}
