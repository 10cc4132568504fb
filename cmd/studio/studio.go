// Package studiocmder is the root of the studio command tree.
package studiocmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/studio/cmd/studio/auth"
	chatcmder "github.com/papercomputeco/studio/cmd/studio/chat"
	configcmder "github.com/papercomputeco/studio/cmd/studio/config"
	historycmder "github.com/papercomputeco/studio/cmd/studio/history"
	imagecmder "github.com/papercomputeco/studio/cmd/studio/image"
	initcmder "github.com/papercomputeco/studio/cmd/studio/init"
	servecmder "github.com/papercomputeco/studio/cmd/studio/serve"
	statuscmder "github.com/papercomputeco/studio/cmd/studio/status"
	versioncmder "github.com/papercomputeco/studio/cmd/version"
)

const studioLongDesc string = `Studio is a streaming chat relay and image generation service.

Run the server, then talk to it from the terminal:
  studio serve                 Run the studio server
  studio chat                  Chat with a model through the server
  studio image "<prompt>"      Generate images through the server
  studio history chat          Show the stored chat transcript
  studio status                Check the server and its history
  studio init                  Create a local .studio/ directory
  studio config list           Show the persistent configuration
  studio auth groq             Store the chat credential`

const studioShortDesc string = "Studio - streaming chat and image generation"

func NewStudioCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "studio",
		Short:         studioShortDesc,
		Long:          studioLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Directory holding config.toml (default: ./.studio or ~/.studio)")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(imagecmder.NewImageCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
