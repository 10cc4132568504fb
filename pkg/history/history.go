// Package history defines the two append-only logs a studio session keeps:
// the chat transcript and the generated image gallery.
package history

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/papercomputeco/studio/pkg/llm"
	"github.com/papercomputeco/studio/pkg/utils"
)

const (
	// ChatKey names the chat log.
	ChatKey = "ai-studio-chat-history"

	// ImageKey names the image log.
	ImageKey = "ai-studio-image-history"

	DefaultMaxMessages = 100
	DefaultMaxImages   = 20
)

// ErrDuplicate is returned when an entry with the same id is already stored.
var ErrDuplicate = errors.New("history entry already exists")

// ChatMessage is one immutable entry of the chat log. Timestamp is in
// milliseconds since the Unix epoch.
type ChatMessage struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// NewMessage returns a message with a fresh id and the current time.
func NewMessage(role, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: utils.NowMillis(),
	}
}

// Validate reports whether m can be stored.
func (m ChatMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return errors.New("message id is required")
	}
	if !llm.ValidRole(m.Role) {
		return errors.New("message role must be one of system, user, assistant")
	}
	return nil
}

// GeneratedImage is one entry of the image log. URL holds a data URI.
type GeneratedImage struct {
	ID        string `json:"id"`
	Prompt    string `json:"prompt"`
	URL       string `json:"url"`
	Timestamp int64  `json:"timestamp"`
}

// NewImage returns an image entry with a fresh id and the current time.
func NewImage(prompt, url string) GeneratedImage {
	return GeneratedImage{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		URL:       url,
		Timestamp: utils.NowMillis(),
	}
}

// Validate reports whether img can be stored.
func (img GeneratedImage) Validate() error {
	if strings.TrimSpace(img.ID) == "" {
		return errors.New("image id is required")
	}
	if img.URL == "" {
		return errors.New("image url is required")
	}
	return nil
}

// Driver persists both logs.
type Driver interface {
	// AppendMessage adds m at the end of the chat log.
	AppendMessage(ctx context.Context, m ChatMessage) error

	// Messages returns the chat log oldest first. A positive limit returns
	// only the most recent limit messages.
	Messages(ctx context.Context, limit int) ([]ChatMessage, error)

	// ClearMessages empties the chat log.
	ClearMessages(ctx context.Context) error

	// PruneMessages evicts the oldest messages so that at most keep remain.
	// It returns the number evicted.
	PruneMessages(ctx context.Context, keep int) (int, error)

	// AddImage records img as the newest image.
	AddImage(ctx context.Context, img GeneratedImage) error

	// Images returns the image log newest first. A positive limit caps the
	// result.
	Images(ctx context.Context, limit int) ([]GeneratedImage, error)

	// DeleteImage removes one image. Unknown ids yield NotFoundError.
	DeleteImage(ctx context.Context, id string) error

	// ClearImages empties the image log.
	ClearImages(ctx context.Context) error

	// PruneImages evicts the oldest images so that at most keep remain.
	PruneImages(ctx context.Context, keep int) (int, error)

	// Close releases the driver's resources.
	Close() error
}
