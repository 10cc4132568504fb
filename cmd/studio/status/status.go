// Package statuscmder provides the status command for checking a studio
// server and summarizing its history.
package statuscmder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/studio/pkg/client"
	"github.com/papercomputeco/studio/pkg/cliui"
	"github.com/papercomputeco/studio/pkg/config"
	"github.com/papercomputeco/studio/pkg/transcript"
)

type statusCommander struct {
	target string
	out    io.Writer
}

const statusLongDesc string = `Show whether a studio server is reachable and what it holds.

Pings the server, then prints the model catalog size and the number of stored
chat messages and images.

Examples:
  studio status
  studio status --target http://localhost:3000`

const statusShortDesc string = "Show studio server status"

func NewStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed(config.FlagTarget) {
				return nil
			}
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cmder.target = cfg.Client.Target
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.StudioFlags, config.FlagTarget, &cmder.target)

	return cmd
}

func (c *statusCommander) run(ctx context.Context) error {
	cl := client.New(c.target, &http.Client{Timeout: 10 * time.Second})

	fmt.Fprintln(c.out)
	err := cliui.Step(c.out, "Reaching "+c.target, func() error {
		return cl.Ping(ctx)
	})
	if err != nil {
		return fmt.Errorf("studio server unreachable: %w", err)
	}

	models, err := cl.Models(ctx)
	if err != nil {
		return fmt.Errorf("listing models: %w", err)
	}
	msgs, err := cl.ChatHistory(ctx, 0)
	if err != nil {
		return fmt.Errorf("loading chat history: %w", err)
	}
	imgs, err := cl.ImageHistory(ctx, 0)
	if err != nil {
		return fmt.Errorf("loading image history: %w", err)
	}

	fmt.Fprintf(c.out, "\n  %s  %s\n", cliui.KeyStyle.Render("Models:      "), cliui.ValueStyle.Render(strconv.Itoa(len(models))))
	fmt.Fprintf(c.out, "  %s  %s %s\n",
		cliui.KeyStyle.Render("Chat:        "),
		cliui.ValueStyle.Render(strconv.Itoa(len(msgs))),
		cliui.DimStyle.Render(transcript.Title(msgs)),
	)
	fmt.Fprintf(c.out, "  %s  %s\n\n", cliui.KeyStyle.Render("Images:      "), cliui.ValueStyle.Render(strconv.Itoa(len(imgs))))
	return nil
}
