package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error: defaults plus env overlays still apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(ExpandHome(path))
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays SYLPH_* env vars on top of file values so
// deployments can keep secrets out of the config file.
func applyEnvOverrides(cfg *Config) {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setStr("SYLPH_PREFIX", &cfg.Prefix)
	setStr("SYLPH_DB_PATH", &cfg.Database.Path)
	setStr("SYLPH_DB_BACKEND", &cfg.Database.Backend)
	setStr("SYLPH_POSTGRES_DSN", &cfg.Database.PostgresDSN)
	setStr("SYLPH_WORDS_FILE", &cfg.Moderation.WordsFile)
	setStr("SYLPH_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)
	setBool("SYLPH_TRACING", &cfg.Tracing.Enabled)

	if v := os.Getenv("SYLPH_OWNERS"); v != "" {
		cfg.Owners = splitList(v)
	}
	if v := os.Getenv("SYLPH_BRIDGE_URL"); v != "" {
		cfg.Bridges = append(cfg.Bridges[:0], BridgeConfig{Name: "primary", URL: v})
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configurations the runtime cannot start with.
func (c *Config) Validate() error {
	if c.Prefix == "" {
		return fmt.Errorf("prefix must not be empty")
	}
	switch c.Database.Backend {
	case "file", "postgres":
	default:
		return fmt.Errorf("unknown database backend %q", c.Database.Backend)
	}
	if c.Database.Backend == "postgres" && c.Database.PostgresDSN == "" {
		return fmt.Errorf("postgres backend requires SYLPH_POSTGRES_DSN")
	}
	if c.Limits.SpamWindowMS <= 0 {
		return fmt.Errorf("spam_window_ms must be positive")
	}
	if c.Limits.WarnLimit <= 0 || c.Limits.ToxicWarnLimit <= 0 {
		return fmt.Errorf("warn limits must be positive")
	}
	if c.Tracing.Enabled {
		switch c.Tracing.Protocol {
		case "grpc", "http":
		default:
			return fmt.Errorf("unknown tracing protocol %q", c.Tracing.Protocol)
		}
	}
	return nil
}
