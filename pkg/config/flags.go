package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --target
// on "studio chat", "studio image" and "studio history").
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "server.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddIntFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen        = "listen"
	FlagChatUpstream  = "chat-upstream"
	FlagChatModel     = "chat-model"
	FlagImageUpstream = "image-upstream"
	FlagImageMaxCount = "image-max-count"
	FlagSQLite        = "sqlite"
	FlagPostgres      = "postgres"
	FlagKafkaBrokers  = "kafka-brokers"
	FlagKafkaTopic    = "kafka-topic"
	FlagTarget        = "target"
	FlagModel         = "model"
	FlagTheme         = "theme"
)

// StudioFlags is the registry shared by every studio command.
var StudioFlags = FlagSet{
	FlagListen: {
		Name: "listen", Shorthand: "l", ViperKey: "server.listen",
		Description: "Address for the studio server to listen on",
	},
	FlagChatUpstream: {
		Name: "chat-upstream", ViperKey: "chat.upstream",
		Description: "OpenAI-compatible chat completion API base URL",
	},
	FlagChatModel: {
		Name: "chat-model", ViperKey: "chat.model",
		Description: "Default chat model when a request names none",
	},
	FlagImageUpstream: {
		Name: "image-upstream", ViperKey: "image.upstream",
		Description: "Image generation API base URL",
	},
	FlagImageMaxCount: {
		Name: "image-max-count", ViperKey: "image.max_count",
		Description: "Largest image batch a single request may ask for",
	},
	FlagSQLite: {
		Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path",
		Description: "Path to SQLite history database (default: in-memory)",
	},
	FlagPostgres: {
		Name: "postgres", ViperKey: "storage.postgres_dsn",
		Description: "PostgreSQL connection string for history storage",
	},
	FlagKafkaBrokers: {
		Name: "kafka-brokers", ViperKey: "events.kafka_brokers",
		Description: "Comma separated Kafka brokers for event publishing (default: disabled)",
	},
	FlagKafkaTopic: {
		Name: "kafka-topic", ViperKey: "events.kafka_topic",
		Description: "Kafka topic receiving studio events",
	},
	FlagTarget: {
		Name: "target", Shorthand: "t", ViperKey: "client.target",
		Description: "Studio server URL",
	},
	FlagModel: {
		Name: "model", Shorthand: "m", ViperKey: "chat.model",
		Description: "Chat model to use",
	},
	FlagTheme: {
		Name: "theme", ViperKey: "ui.theme",
		Description: "Terminal theme: light or dark (default: detect)",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *int) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultInt returns the default int value for a viper key from NewDefaultConfig.
func defaultInt(viperKey string) int {
	v := viper.New()
	setViperDefaults(v)
	return v.GetInt(viperKey)
}
