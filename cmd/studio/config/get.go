package configcmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/studio/pkg/cliui"
	"github.com/papercomputeco/studio/pkg/config"
)

const getLongDesc string = `Get one or more configuration values.

Values come from config.toml, falling back to the built-in defaults for keys
the file does not set. With --raw only the bare values are printed, one per
line, for use in scripts.

Examples:
  studio config get chat.model
  studio config get chat.temperature chat.top_p
  studio config get --raw client.target`

const getShortDesc string = "Get configuration values"

func newGetCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "get <key>...",
		Short: getShortDesc,
		Long:  getLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runGet(cmd.OutOrStdout(), args, configDir, raw)
		},
		ValidArgsFunction: completeKeys,
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "Print only the values")

	return cmd
}

func runGet(w io.Writer, keys []string, configDir string, raw bool) error {
	for _, key := range keys {
		if !config.IsValidConfigKey(key) {
			return unknownKeyError(key)
		}
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !raw {
		printTarget(w, cfger)
	}

	for _, key := range keys {
		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}

		switch {
		case raw:
			fmt.Fprintln(w, value)
		case value == "":
			fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render(key), cliui.DimStyle.Render("<not set>"))
		default:
			fmt.Fprintf(w, "  %s  %s\n", cliui.KeyStyle.Render(key), cliui.ValueStyle.Render(value))
		}
	}
	if !raw {
		fmt.Fprintln(w)
	}

	return nil
}
