package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/papercomputeco/studio/pkg/dotdir"
)

// EnvPrefix prefixes every environment variable viper binds.
const EnvPrefix = "STUDIO"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the STUDIO_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (STUDIO_SERVER_LISTEN, STUDIO_CHAT_MODEL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: STUDIO_SERVER_LISTEN, STUDIO_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Server
	v.SetDefault("server.listen", d.Server.Listen)
	v.SetDefault("server.upstream_timeout_seconds", d.Server.UpstreamTimeoutSeconds)

	// Chat
	v.SetDefault("chat.upstream", d.Chat.Upstream)
	v.SetDefault("chat.model", d.Chat.Model)
	v.SetDefault("chat.temperature", d.Chat.Temperature)
	v.SetDefault("chat.max_tokens", d.Chat.MaxTokens)
	v.SetDefault("chat.top_p", d.Chat.TopP)

	// Image
	v.SetDefault("image.upstream", d.Image.Upstream)
	v.SetDefault("image.model", d.Image.Model)
	v.SetDefault("image.width", d.Image.Width)
	v.SetDefault("image.height", d.Image.Height)
	v.SetDefault("image.max_count", d.Image.MaxCount)
	v.SetDefault("image.requests_per_second", d.Image.RequestsPerSecond)

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// History
	v.SetDefault("history.max_messages", d.History.MaxMessages)
	v.SetDefault("history.max_images", d.History.MaxImages)

	// Events
	v.SetDefault("events.kafka_brokers", d.Events.KafkaBrokers)
	v.SetDefault("events.kafka_topic", d.Events.KafkaTopic)

	// Client
	v.SetDefault("client.target", d.Client.Target)

	// UI
	v.SetDefault("ui.theme", d.UI.Theme)
}

// FromViper resolves every config key through v's precedence chain.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	for key, info := range configKeys {
		if err := info.set(cfg, v.GetString(key)); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Watch re-resolves the config whenever viper sees the config file change and
// hands the result to onChange. Invalid edits are reported through onError
// and otherwise ignored.
func Watch(v *viper.Viper, onChange func(*Config, fsnotify.Event), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := FromViper(v)
		if err != nil {
			onError(err)
			return
		}
		onChange(cfg, e)
	})
	v.WatchConfig()
}
