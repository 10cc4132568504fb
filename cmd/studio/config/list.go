package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/studio/pkg/cliui"
	"github.com/papercomputeco/studio/pkg/config"
)

const listLongDesc string = `List configuration values.

Prints every key grouped by its config.toml section. Values still at their
built-in default are marked. Use --changed to print only the keys that
differ from the defaults.

Examples:
  studio config list
  studio config list --changed`

const listShortDesc string = "List configuration values"

func newListCmd() *cobra.Command {
	var changed bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(cmd.OutOrStdout(), configDir, changed)
		},
	}

	cmd.Flags().BoolVar(&changed, "changed", false, "Only list keys that differ from the defaults")

	return cmd
}

func runList(w io.Writer, configDir string, changedOnly bool) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "Using config file: %s\n", target)
	} else {
		fmt.Fprintln(w, "No config file found. Using default config.")
	}

	keys := config.ValidConfigKeys()
	width := 0
	for _, k := range keys {
		width = max(width, len(k))
	}

	section := ""
	for _, key := range keys {
		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}
		def := config.DefaultValue(key)
		if changedOnly && value == def {
			continue
		}

		if s, _, _ := strings.Cut(key, "."); s != section {
			section = s
			fmt.Fprintf(w, "\n%s\n", cliui.KeyStyle.Render("["+section+"]"))
		}

		shown := fmt.Sprintf("%q", value)
		if value == "" {
			shown = "<not set>"
		}
		line := fmt.Sprintf("%-*s = %s", width, key, shown)
		if value == def && value != "" {
			line += "  " + cliui.DimStyle.Render("(default)")
		}
		fmt.Fprintln(w, line)
	}

	return nil
}
