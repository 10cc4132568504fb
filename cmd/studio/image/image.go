// Package imagecmder provides the image command for generating image batches
// through a running studio server.
package imagecmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/studio/pkg/client"
	"github.com/papercomputeco/studio/pkg/cliui"
	"github.com/papercomputeco/studio/pkg/config"
	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/image"
	"github.com/papercomputeco/studio/pkg/logger"
	"github.com/papercomputeco/studio/pkg/utils"
)

type imageCommander struct {
	target  string
	count   int
	outDir  string
	noSave  bool
	quiet   bool
	debug   bool
	timeout time.Duration

	out    io.Writer
	now    func() time.Time
	logger *slog.Logger
}

const imageLongDesc string = `Generate images from a text prompt through a studio server.

The server generates the batch concurrently. Every image is written to the
output directory and added to the server's image history unless --no-save is
given. The batch size is capped by the server's image.max_count.

Examples:
  studio image "a lighthouse at dusk, oil painting"
  studio image -n 4 -o ./renders "isometric city block"
  studio image --quiet "a red bicycle" | xargs open`

const imageShortDesc string = "Generate images from a prompt"

func NewImageCmd() *cobra.Command {
	cmder := &imageCommander{}

	cmd := &cobra.Command{
		Use:   "image <prompt>",
		Short: imageShortDesc,
		Long:  imageLongDesc,
		Args:  cobra.MinimumNArgs(1),
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
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			cmder.out = cmd.OutOrStdout()
			return cmder.run(cmd.Context(), strings.Join(args, " "))
		},
	}

	config.AddStringFlag(cmd, config.StudioFlags, config.FlagTarget, &cmder.target)
	cmd.Flags().IntVarP(&cmder.count, "count", "n", 1, "Number of images to generate")
	cmd.Flags().StringVarP(&cmder.outDir, "output", "o", ".", "Directory to write images to")
	cmd.Flags().BoolVar(&cmder.noSave, "no-save", false, "Do not add the images to the server's history")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Only print the written file paths")
	cmd.Flags().DurationVar(&cmder.timeout, "timeout", client.DefaultTimeout, "Deadline for the whole batch")

	return cmd
}

func (c *imageCommander) run(ctx context.Context, prompt string) error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true), logger.WithWriter(os.Stderr))
	if c.now == nil {
		c.now = time.Now
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return image.ErrInvalidPrompt
	}

	if err := os.MkdirAll(c.outDir, 0o755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}

	cl := client.New(c.target, nil)

	var uris []string
	generate := func() error {
		var err error
		uris, err = cl.GenerateImages(ctx, prompt, c.count)
		return err
	}

	var err error
	if c.quiet {
		err = generate()
	} else {
		fmt.Fprintln(c.out)
		err = cliui.Step(c.out, fmt.Sprintf("Generating %d image(s): %s", c.count, utils.Truncate(prompt, 50)), generate)
	}
	if err != nil {
		return fmt.Errorf("generating images: %w", err)
	}

	stamp := c.now().UnixMilli()
	for i, uri := range uris {
		path, err := c.write(uri, stamp, i)
		if err != nil {
			return err
		}

		if !c.noSave {
			if err := cl.AddImage(ctx, history.NewImage(prompt, uri)); err != nil {
				c.logger.Warn("could not add image to history", "path", path, "error", err)
			}
		}

		if c.quiet {
			fmt.Fprintln(c.out, path)
		} else {
			fmt.Fprintf(c.out, "  %s %s\n", cliui.SuccessMark, cliui.ValueStyle.Render(path))
		}
	}

	if !c.quiet {
		fmt.Fprintln(c.out)
	}
	return nil
}

// write decodes one data URI into outDir as studio-<stamp>-<i>.<ext>.
func (c *imageCommander) write(uri string, stamp int64, i int) (string, error) {
	contentType, data, err := image.ParseDataURI(uri)
	if err != nil {
		return "", fmt.Errorf("image %d: %w", i+1, err)
	}

	path := filepath.Join(c.outDir, fmt.Sprintf("studio-%d-%d%s", stamp, i+1, extension(contentType)))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing image: %w", err)
	}
	return path, nil
}

func extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".img"
	}
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ".img"
	}
	return exts[0]
}
