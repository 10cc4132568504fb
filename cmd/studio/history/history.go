// Package historycmder provides the history command for inspecting and
// clearing the chat and image history of a studio server.
package historycmder

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/studio/pkg/client"
	"github.com/papercomputeco/studio/pkg/cliui"
	"github.com/papercomputeco/studio/pkg/config"
	"github.com/papercomputeco/studio/pkg/llm"
	"github.com/papercomputeco/studio/pkg/transcript"
	"github.com/papercomputeco/studio/pkg/utils"
)

const timeLayout = "2006-01-02 15:04:05"

type historyCommander struct {
	target string
	limit  int
	clear  bool
	delete string

	out io.Writer
}

const historyLongDesc string = `Inspect the chat and image history kept by a studio server.

Examples:
  studio history chat
  studio history chat --limit 10
  studio history chat --clear
  studio history images
  studio history images --delete 3f1c6a2e-...
  studio history images --clear`

const historyShortDesc string = "Inspect the server's chat and image history"

func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: historyShortDesc,
		Long:  historyLongDesc,
	}

	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newImagesCmd())

	return cmd
}

func newChatCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:     "chat",
		Short:   "List or clear the chat history",
		Args:    cobra.NoArgs,
		PreRunE: cmder.loadTarget,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.runChat(cmd.Context())
		},
	}

	cmder.addFlags(cmd)
	return cmd
}

func newImagesCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:     "images",
		Short:   "List, delete or clear the image history",
		Args:    cobra.NoArgs,
		PreRunE: cmder.loadTarget,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.out = cmd.OutOrStdout()
			return cmder.runImages(cmd.Context())
		},
	}

	cmder.addFlags(cmd)
	cmd.Flags().StringVar(&cmder.delete, "delete", "", "Delete the image with this id")
	return cmd
}

func (c *historyCommander) addFlags(cmd *cobra.Command) {
	config.AddStringFlag(cmd, config.StudioFlags, config.FlagTarget, &c.target)
	cmd.Flags().IntVar(&c.limit, "limit", 0, "Only show the most recent entries (0 shows all)")
	cmd.Flags().BoolVar(&c.clear, "clear", false, "Delete every entry")
}

func (c *historyCommander) loadTarget(cmd *cobra.Command, _ []string) error {
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
	c.target = cfg.Client.Target
	return nil
}

func (c *historyCommander) runChat(ctx context.Context) error {
	cl := client.New(c.target, nil)

	if c.clear {
		if err := cl.ClearChat(ctx); err != nil {
			return fmt.Errorf("clearing chat history: %w", err)
		}
		fmt.Fprintf(c.out, "  %s Chat history cleared\n", cliui.SuccessMark)
		return nil
	}

	msgs, err := cl.ChatHistory(ctx, c.limit)
	if err != nil {
		return fmt.Errorf("loading chat history: %w", err)
	}

	if len(msgs) == 0 {
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render("No chat history."))
		return nil
	}

	fmt.Fprintf(c.out, "\n  %s %s\n\n",
		cliui.KeyStyle.Render(transcript.Title(msgs)),
		cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(msgs))),
	)
	for _, m := range msgs {
		fmt.Fprintf(c.out, "  %s %s  %s\n",
			cliui.DimStyle.Render(utils.FromMillis(m.Timestamp).Format(timeLayout)),
			roleLabel(m.Role),
			utils.Truncate(m.Content, 72),
		)
	}
	fmt.Fprintln(c.out)
	return nil
}

func (c *historyCommander) runImages(ctx context.Context) error {
	cl := client.New(c.target, nil)

	switch {
	case c.clear:
		if err := cl.ClearImages(ctx); err != nil {
			return fmt.Errorf("clearing image history: %w", err)
		}
		fmt.Fprintf(c.out, "  %s Image history cleared\n", cliui.SuccessMark)
		return nil
	case c.delete != "":
		if err := cl.DeleteImage(ctx, c.delete); err != nil {
			return fmt.Errorf("deleting image: %w", err)
		}
		fmt.Fprintf(c.out, "  %s Deleted %s\n", cliui.SuccessMark, cliui.NameStyle.Render(c.delete))
		return nil
	}

	imgs, err := cl.ImageHistory(ctx, c.limit)
	if err != nil {
		return fmt.Errorf("loading image history: %w", err)
	}

	if len(imgs) == 0 {
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render("No image history."))
		return nil
	}

	fmt.Fprintln(c.out)
	for _, img := range imgs {
		fmt.Fprintf(c.out, "  %s %s  %s\n",
			cliui.DimStyle.Render(utils.FromMillis(img.Timestamp).Format(timeLayout)),
			cliui.NameStyle.Render(img.ID),
			utils.Truncate(img.Prompt, 60),
		)
	}
	fmt.Fprintln(c.out)
	return nil
}

func roleLabel(role string) string {
	switch role {
	case llm.RoleUser:
		return cliui.UserStyle.Render("user     ")
	case llm.RoleAssistant:
		return cliui.AssistantStyle.Render("assistant")
	}
	return cliui.DimStyle.Render(fmt.Sprintf("%-9s", role))
}
