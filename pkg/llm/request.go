package llm

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	// Conversation messages, oldest first.
	Messages []Message `json:"messages"`

	// Model identifier. Empty means the server's configured default.
	Model string `json:"model,omitempty"`
}

// ImageRequest is the body of POST /api/image.
type ImageRequest struct {
	Prompt string `json:"prompt"`
}
