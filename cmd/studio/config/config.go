// Package configcmder provides the config command for managing persistent
// studio configuration stored in the .studio/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/studio/pkg/cliui"
	"github.com/papercomputeco/studio/pkg/config"
)

const configLongDesc string = `Manage persistent studio configuration.

Configuration is stored as config.toml in the .studio/ directory and provides
default values for command flags. CLI flags and STUDIO_* environment variables
always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  server.listen, server.upstream_timeout_seconds,
  chat.upstream, chat.model, chat.temperature, chat.max_tokens, chat.top_p,
  image.upstream, image.model, image.width, image.height, image.max_count,
  image.requests_per_second,
  storage.sqlite_path, storage.postgres_dsn,
  history.max_messages, history.max_images,
  events.kafka_brokers, events.kafka_topic,
  client.target, ui.theme

The chat credential is read from GROQ_API_KEY, a .env file, or the key saved
by "studio auth" in credentials.toml. It is never stored in config.toml.

Use subcommands to get, set, or list configuration values:
  studio config set <key> <value>    Set a configuration value
  studio config get <key>...         Get configuration values
  studio config list [--changed]     List configuration values

Examples:
  studio config set chat.model llama-3.1-8b-instant
  studio config set storage.sqlite_path ~/.studio/history.db
  studio config get chat.temperature
  studio config list`

const configShortDesc string = "Manage persistent studio configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func unknownKeyError(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func printTarget(w io.Writer, cfger *config.Configer) {
	target := cfger.GetTarget()
	if target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
	} else {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
	}
}
