// Package mcp provides an MCP (Model Context Protocol) server exposing studio's
// image generation and chat history as tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/utils"
)

// ImageGenerator produces batches of data URIs.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string, n int) ([]string, error)
	MaxCount() int
}

type Config struct {
	// Images backs the generate_images tool.
	Images ImageGenerator

	// History backs the chat_history tool and records generated images.
	History history.Driver

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the studio tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "studio",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Images == nil {
			return nil, errors.New("image generator is required")
		}
		if c.History == nil {
			return nil, errors.New("history driver is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        generateImagesToolName,
			Description: generateImagesDescription,
		}, s.handleGenerateImages)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        chatHistoryToolName,
			Description: chatHistoryDescription,
		}, s.handleChatHistory)
	}

	s.mcpServer = mcpServer

	// Stateless streamable HTTP handler, mounted by the fiber app
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying server, for connecting in-process
// transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

func toolError(format string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: format + ": " + err.Error()},
		},
	}
}
