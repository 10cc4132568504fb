// Package server provides the studio HTTP server: the streaming chat relay,
// image generation, the history API and the MCP endpoint.
package server

import (
	"log/slog"

	"github.com/papercomputeco/studio/pkg/eventstream"
	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/image"
	"github.com/papercomputeco/studio/pkg/llm"
	"github.com/papercomputeco/studio/pkg/relay"
)

// Config is the server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":3000")
	ListenAddr string

	// Relay streams chat completions from the upstream provider.
	Relay *relay.Relay

	// Images generates image batches.
	Images *image.Generator

	// History stores the chat and image logs.
	History history.Driver

	// Publisher receives chat and image events. If nil, events are discarded.
	Publisher eventstream.Publisher

	// Models is the catalog served by /api/models. Defaults to llm.ChatModels.
	Models []llm.Model

	// DisableMCP leaves the MCP endpoint without tools.
	DisableMCP bool

	Logger *slog.Logger
}
