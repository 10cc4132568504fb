// Package chatcmder provides the chat command for interactive chat through a
// running studio server.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/studio/pkg/client"
	"github.com/papercomputeco/studio/pkg/cliui"
	"github.com/papercomputeco/studio/pkg/config"
	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/logger"
	"github.com/papercomputeco/studio/pkg/theme"
	"github.com/papercomputeco/studio/pkg/transcript"
)

var userPrompt = cliui.UserStyle.Render("you> ")

type chatCommander struct {
	target     string
	model      string
	themeName  string
	fresh      bool
	noMarkdown bool
	debug      bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfger  *config.Configer
	theme  *theme.State
	client *client.Client
	conv   *transcript.Transcript
	logger *slog.Logger
}

const chatLongDesc string = `Start an interactive chat session through a studio server.

Replies stream token by token. On a terminal, each finished reply is
re-rendered as markdown in the current theme.

The session resumes from the server's stored chat history unless --new is
given. Every finished message is written back to that history.

Commands:
  /models          List the chat models the server offers
  /model [id]      Show or change the model (only before the first message)
  /clear           Clear the stored history and start over
  /theme           Toggle between the light and dark theme
  /title           Show the conversation title
  /exit            Quit (Ctrl+D also quits)

Examples:
  studio chat
  studio chat --model llama-3.1-8b-instant
  studio chat --target http://localhost:3000 --new`

const chatShortDesc string = "Interactive chat through a studio server"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed(config.FlagTarget) {
				cmder.target = cfg.Client.Target
			}
			if !cmd.Flags().Changed(config.FlagModel) {
				cmder.model = cfg.Chat.Model
			}
			if !cmd.Flags().Changed(config.FlagTheme) {
				cmder.themeName = cfg.UI.Theme
			}
			cmder.cfger = cfger
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cmder.run(ctx)
		},
	}

	config.AddStringFlag(cmd, config.StudioFlags, config.FlagTarget, &cmder.target)
	config.AddStringFlag(cmd, config.StudioFlags, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, config.StudioFlags, config.FlagTheme, &cmder.themeName)
	cmd.Flags().BoolVar(&cmder.fresh, "new", false, "Start an empty conversation instead of resuming the stored history")
	cmd.Flags().BoolVar(&cmder.noMarkdown, "no-markdown", false, "Print replies as raw text")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(c.errOut))
	c.theme = theme.InitProbe(c.themeName, os.Getenv, func() (theme.Theme, bool) {
		return cliui.TerminalTheme(c.out)
	})
	c.client = client.New(c.target, nil)

	var resumed []history.ChatMessage
	if !c.fresh {
		msgs, err := c.client.ChatHistory(ctx, 0)
		if err != nil {
			return fmt.Errorf("loading chat history from %s: %w", c.target, err)
		}
		resumed = msgs
	}

	c.conv = transcript.New(transcript.Config{
		Model:    c.model,
		Streamer: c.client,
		Store:    c.client,
		Diagnostics: func(msg string) {
			fmt.Fprintf(c.errOut, "  %s %s\n", cliui.WarnStyle.Render("!"), msg)
		},
		Logger: c.logger,
	}, resumed)

	fmt.Fprintln(c.out)
	if len(resumed) > 0 {
		fmt.Fprintf(c.out, "  %s Resuming %s %s\n",
			cliui.SuccessMark,
			cliui.NameStyle.Render(c.conv.Title()),
			cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(resumed))),
		)
	} else {
		fmt.Fprintf(c.out, "  %s %s\n", cliui.DimStyle.Render("●"), transcript.UntitledConversation)
	}
	fmt.Fprintf(c.out, "  %s %s\n\n",
		cliui.KeyStyle.Render("Model:"),
		cliui.NameStyle.Render(c.conv.Model()),
	)
	fmt.Fprintf(c.out, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(c.out, userPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := c.command(ctx, input)
			if err != nil {
				fmt.Fprintf(c.errOut, "  %s %v\n", cliui.FailMark, err)
			}
			if quit {
				break
			}
			continue
		}

		c.send(ctx, input)
		if ctx.Err() != nil {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// command runs a slash command and reports whether the session should end.
func (c *chatCommander) command(ctx context.Context, input string) (bool, error) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true, nil

	case "/clear":
		if err := c.client.ClearChat(ctx); err != nil {
			return false, fmt.Errorf("clearing history: %w", err)
		}
		if err := c.conv.Reset(); err != nil {
			return false, err
		}
		fmt.Fprintf(c.out, "  %s Conversation cleared\n\n", cliui.SuccessMark)

	case "/model":
		if arg == "" {
			fmt.Fprintf(c.out, "  %s %s\n\n", cliui.KeyStyle.Render("Model:"), cliui.NameStyle.Render(c.conv.Model()))
			return false, nil
		}
		if err := c.conv.SetModel(arg); err != nil {
			if errors.Is(err, transcript.ErrModelLocked) {
				return false, fmt.Errorf("%w (use /clear first)", err)
			}
			return false, err
		}
		fmt.Fprintf(c.out, "  %s Model set to %s\n\n", cliui.SuccessMark, cliui.NameStyle.Render(arg))

	case "/models":
		models, err := c.client.Models(ctx)
		if err != nil {
			return false, fmt.Errorf("listing models: %w", err)
		}
		for _, m := range models {
			marker := " "
			if m.ID == c.conv.Model() {
				marker = "*"
			}
			fmt.Fprintf(c.out, "  %s %s %s %s\n",
				marker,
				cliui.NameStyle.Render(m.ID),
				m.Name,
				cliui.DimStyle.Render(m.Description),
			)
		}
		fmt.Fprintln(c.out)

	case "/theme":
		t := c.theme.Toggle()
		fmt.Fprintf(c.out, "  %s Theme set to %s\n\n", cliui.SuccessMark, cliui.NameStyle.Render(string(t)))
		if err := c.persistTheme(t); err != nil {
			return false, fmt.Errorf("saving theme: %w", err)
		}

	case "/title":
		fmt.Fprintf(c.out, "  %s\n\n", cliui.NameStyle.Render(c.conv.Title()))

	default:
		return false, fmt.Errorf("unknown command %q", name)
	}

	return false, nil
}

func (c *chatCommander) persistTheme(t theme.Theme) error {
	if c.cfger == nil {
		return nil
	}
	if err := c.cfger.EnsureTarget(); err != nil {
		return err
	}
	return c.cfger.SetConfigValue("ui.theme", string(t))
}

// send streams one reply. Stream failures are shown in the conversation.
func (c *chatCommander) send(ctx context.Context, input string) {
	fmt.Fprintln(c.out, cliui.AssistantStyle.Render("assistant>"))

	var raw strings.Builder
	reply, err := c.conv.Send(ctx, input, func(delta string) {
		raw.WriteString(delta)
		fmt.Fprint(c.out, delta)
	})
	if err != nil {
		fmt.Fprintf(c.errOut, "  %s %v\n", cliui.FailMark, err)
		return
	}

	if reply.Err != nil {
		if raw.Len() > 0 {
			fmt.Fprintln(c.out)
		}
		fmt.Fprintf(c.out, "%s\n\n", cliui.WarnStyle.Render(reply.Message.Content))
		return
	}

	c.render(raw.String(), reply.Message.Content)

	if blocks := transcript.CodeBlocks(reply.Message.Content); len(blocks) > 0 {
		langs := make([]string, 0, len(blocks))
		for _, b := range blocks {
			langs = append(langs, b.Lang)
		}
		fmt.Fprintf(c.out, "  %s\n", cliui.DimStyle.Render(
			fmt.Sprintf("%d code block(s): %s", len(blocks), strings.Join(langs, ", ")),
		))
	}
	if reply.Dropped > 0 {
		c.logger.Debug("dropped malformed records", "count", reply.Dropped)
	}
	fmt.Fprintln(c.out)
}

// render replaces the streamed raw text with its markdown rendering when
// output is a terminal.
func (c *chatCommander) render(streamed, content string) {
	if c.noMarkdown || content == "" || !cliui.IsTerminal(c.out) {
		if streamed != "" {
			fmt.Fprintln(c.out)
		}
		return
	}

	width := cliui.Width(c.out, 80)
	rendered, err := cliui.RenderMarkdown(content, c.theme, width)
	if err != nil {
		c.logger.Debug("markdown rendering failed", "error", err)
		fmt.Fprintln(c.out)
		return
	}

	if n := screenLines(streamed, width); n > 1 {
		fmt.Fprintf(c.out, "\r\x1b[%dA\x1b[J", n-1)
	} else {
		fmt.Fprint(c.out, "\r\x1b[J")
	}
	fmt.Fprint(c.out, rendered)
}

// screenLines counts the terminal rows text occupies at the given width.
func screenLines(text string, width int) int {
	if width <= 0 {
		width = 80
	}
	rows := 0
	for line := range strings.SplitSeq(text, "\n") {
		w := ansi.StringWidth(line)
		if w == 0 {
			rows++
			continue
		}
		rows += (w + width - 1) / width
	}
	return rows
}
