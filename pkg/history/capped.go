package history

import (
	"context"
	"fmt"
)

// Capped wraps a Driver and evicts the oldest entries after every write so
// that neither log grows past its limit. A limit of zero disables the cap.
type Capped struct {
	Driver

	maxMessages int
	maxImages   int
}

// NewCapped returns d bounded to maxMessages chat messages and maxImages
// images.
func NewCapped(d Driver, maxMessages, maxImages int) *Capped {
	return &Capped{
		Driver:      d,
		maxMessages: maxMessages,
		maxImages:   maxImages,
	}
}

// AppendMessage appends m and prunes the chat log.
func (c *Capped) AppendMessage(ctx context.Context, m ChatMessage) error {
	if err := c.Driver.AppendMessage(ctx, m); err != nil {
		return err
	}
	if c.maxMessages <= 0 {
		return nil
	}
	if _, err := c.Driver.PruneMessages(ctx, c.maxMessages); err != nil {
		return fmt.Errorf("pruning chat history: %w", err)
	}
	return nil
}

// AddImage adds img and prunes the image log.
func (c *Capped) AddImage(ctx context.Context, img GeneratedImage) error {
	if err := c.Driver.AddImage(ctx, img); err != nil {
		return err
	}
	if c.maxImages <= 0 {
		return nil
	}
	if _, err := c.Driver.PruneImages(ctx, c.maxImages); err != nil {
		return fmt.Errorf("pruning image history: %w", err)
	}
	return nil
}
