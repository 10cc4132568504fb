package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent studio configuration stored as config.toml
// in the .studio/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version int           `toml:"version"`
	Server  ServerConfig  `toml:"server"`
	Chat    ChatConfig    `toml:"chat"`
	Image   ImageConfig   `toml:"image"`
	Storage StorageConfig `toml:"storage"`
	History HistoryConfig `toml:"history"`
	Events  EventsConfig  `toml:"events"`
	Client  ClientConfig  `toml:"client"`
	UI      UIConfig      `toml:"ui"`
}

// ServerConfig holds settings for "studio serve".
type ServerConfig struct {
	Listen                 string `toml:"listen,omitempty"`
	UpstreamTimeoutSeconds int    `toml:"upstream_timeout_seconds,omitempty"`
}

// ChatConfig holds the upstream chat completion settings. The credential is
// read from GROQ_API_KEY and never stored here.
type ChatConfig struct {
	Upstream    string  `toml:"upstream,omitempty"`
	Model       string  `toml:"model,omitempty"`
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens,omitempty"`
	TopP        float64 `toml:"top_p"`
}

// ImageConfig holds the upstream image generation settings.
type ImageConfig struct {
	Upstream          string  `toml:"upstream,omitempty"`
	Model             string  `toml:"model,omitempty"`
	Width             int     `toml:"width,omitempty"`
	Height            int     `toml:"height,omitempty"`
	MaxCount          int     `toml:"max_count,omitempty"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// StorageConfig selects the history backend. Both empty means in-memory.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// HistoryConfig bounds the history logs.
type HistoryConfig struct {
	MaxMessages int `toml:"max_messages,omitempty"`
	MaxImages   int `toml:"max_images,omitempty"`
}

// EventsConfig configures event publishing. Empty brokers disables it.
type EventsConfig struct {
	KafkaBrokers string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string `toml:"kafka_topic,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to a running
// studio server (e.g. studio chat, studio image). Values are full URLs.
type ClientConfig struct {
	Target string `toml:"target,omitempty"`
}

// UIConfig holds terminal presentation preferences.
type UIConfig struct {
	// Theme is "light", "dark" or empty for environment detection.
	Theme string `toml:"theme,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if n < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = n
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'g', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if f < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = f
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"server.listen": stringKey(func(c *Config) *string { return &c.Server.Listen }),
	"server.upstream_timeout_seconds": intKey("server.upstream_timeout_seconds",
		func(c *Config) *int { return &c.Server.UpstreamTimeoutSeconds }),

	"chat.upstream":    stringKey(func(c *Config) *string { return &c.Chat.Upstream }),
	"chat.model":       stringKey(func(c *Config) *string { return &c.Chat.Model }),
	"chat.temperature": floatKey("chat.temperature", func(c *Config) *float64 { return &c.Chat.Temperature }),
	"chat.max_tokens":  intKey("chat.max_tokens", func(c *Config) *int { return &c.Chat.MaxTokens }),
	"chat.top_p":       floatKey("chat.top_p", func(c *Config) *float64 { return &c.Chat.TopP }),

	"image.upstream":  stringKey(func(c *Config) *string { return &c.Image.Upstream }),
	"image.model":     stringKey(func(c *Config) *string { return &c.Image.Model }),
	"image.width":     intKey("image.width", func(c *Config) *int { return &c.Image.Width }),
	"image.height":    intKey("image.height", func(c *Config) *int { return &c.Image.Height }),
	"image.max_count": intKey("image.max_count", func(c *Config) *int { return &c.Image.MaxCount }),
	"image.requests_per_second": floatKey("image.requests_per_second",
		func(c *Config) *float64 { return &c.Image.RequestsPerSecond }),

	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"history.max_messages": intKey("history.max_messages", func(c *Config) *int { return &c.History.MaxMessages }),
	"history.max_images":   intKey("history.max_images", func(c *Config) *int { return &c.History.MaxImages }),

	"events.kafka_brokers": stringKey(func(c *Config) *string { return &c.Events.KafkaBrokers }),
	"events.kafka_topic":   stringKey(func(c *Config) *string { return &c.Events.KafkaTopic }),

	"client.target": stringKey(func(c *Config) *string { return &c.Client.Target }),

	"ui.theme": {
		get: func(c *Config) string { return c.UI.Theme },
		set: func(c *Config, v string) error {
			switch v {
			case "", "light", "dark":
				c.UI.Theme = v
				return nil
			}
			return fmt.Errorf("invalid value for ui.theme: %q (expected light or dark)", v)
		},
	},
}

// orderedKeys lists configKeys in the TOML section layout order.
var orderedKeys = []string{
	"server.listen",
	"server.upstream_timeout_seconds",
	"chat.upstream",
	"chat.model",
	"chat.temperature",
	"chat.max_tokens",
	"chat.top_p",
	"image.upstream",
	"image.model",
	"image.width",
	"image.height",
	"image.max_count",
	"image.requests_per_second",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"history.max_messages",
	"history.max_images",
	"events.kafka_brokers",
	"events.kafka_topic",
	"client.target",
	"ui.theme",
}
