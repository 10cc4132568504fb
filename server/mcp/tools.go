package mcp

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/studio/pkg/history"
)

var (
	generateImagesToolName    = "generate_images"
	generateImagesDescription = "Generate images from a text prompt. Returns the images as base64 data URIs and records them in the image history."

	chatHistoryToolName    = "chat_history"
	chatHistoryDescription = "Read the most recent messages of the stored chat transcript, oldest first."
)

const defaultHistoryLimit = 20

// GenerateImagesInput represents the input arguments for the generate_images tool.
type GenerateImagesInput struct {
	Prompt string `json:"prompt" jsonschema:"the text description of the image"`
	Count  int    `json:"count,omitempty" jsonschema:"number of images to generate (default: 1)"`
}

// GenerateImagesOutput represents the output of the generate_images tool.
type GenerateImagesOutput struct {
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Count  int      `json:"count"`
}

// ChatHistoryInput represents the input arguments for the chat_history tool.
type ChatHistoryInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of messages to return (default: 20)"`
}

// ChatHistoryOutput represents the output of the chat_history tool.
type ChatHistoryOutput struct {
	Messages []history.ChatMessage `json:"messages"`
	Count    int                   `json:"count"`
}

func (s *Server) handleGenerateImages(ctx context.Context, _ *mcp.CallToolRequest, input GenerateImagesInput) (*mcp.CallToolResult, GenerateImagesOutput, error) {
	logger := s.config.Logger

	count := input.Count
	if count <= 0 {
		count = 1
	}
	if limit := s.config.Images.MaxCount(); count > limit {
		count = limit
	}

	logger.Debug("MCP generate_images request",
		"prompt_length", len(input.Prompt),
		"count", count,
	)

	images, err := s.config.Images.Generate(ctx, input.Prompt, count)
	if err != nil {
		logger.Error("failed to generate images", "error", err)
		return toolError("Failed to generate images", err), GenerateImagesOutput{Images: []string{}}, nil
	}

	prompt := strings.TrimSpace(input.Prompt)
	for _, uri := range images {
		if err := s.config.History.AddImage(ctx, history.NewImage(prompt, uri)); err != nil {
			logger.Warn("failed to record generated image", "error", err)
		}
	}

	output := GenerateImagesOutput{
		Prompt: prompt,
		Images: images,
		Count:  len(images),
	}
	return structured(output)
}

func (s *Server) handleChatHistory(ctx context.Context, _ *mcp.CallToolRequest, input ChatHistoryInput) (*mcp.CallToolResult, ChatHistoryOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	messages, err := s.config.History.Messages(ctx, limit)
	if err != nil {
		s.config.Logger.Error("failed to read chat history", "error", err)
		return toolError("Failed to read chat history", err), ChatHistoryOutput{Messages: []history.ChatMessage{}}, nil
	}

	if messages == nil {
		messages = []history.ChatMessage{}
	}

	output := ChatHistoryOutput{
		Messages: messages,
		Count:    len(messages),
	}
	return structured(output)
}

// structured returns output both as structured content and as a JSON text
// block for clients that only read text.
func structured[T any](output T) (*mcp.CallToolResult, T, error) {
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		var zero T
		return toolError("Failed to serialize results", err), zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
