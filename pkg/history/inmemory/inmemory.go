// Package inmemory provides a slice-backed history driver for tests and
// single-process use.
package inmemory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/papercomputeco/studio/pkg/history"
)

// Driver implements history.Driver in memory.
type Driver struct {
	// mu guards both logs
	mu sync.RWMutex

	// messages in append order
	messages []history.ChatMessage

	// images in insertion order; reads reverse them
	images []history.GeneratedImage
}

// NewDriver creates an empty in-memory driver.
func NewDriver() *Driver {
	return &Driver{}
}

func (d *Driver) AppendMessage(_ context.Context, m history.ChatMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if slices.ContainsFunc(d.messages, func(x history.ChatMessage) bool { return x.ID == m.ID }) {
		return fmt.Errorf("%w: %s", history.ErrDuplicate, m.ID)
	}
	d.messages = append(d.messages, m)
	return nil
}

func (d *Driver) Messages(_ context.Context, limit int) ([]history.ChatMessage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	msgs := d.messages
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return slices.Clone(msgs), nil
}

func (d *Driver) ClearMessages(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.messages = nil
	return nil
}

func (d *Driver) PruneMessages(_ context.Context, keep int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	evict := len(d.messages) - max(keep, 0)
	if evict <= 0 {
		return 0, nil
	}
	d.messages = slices.Clone(d.messages[evict:])
	return evict, nil
}

func (d *Driver) AddImage(_ context.Context, img history.GeneratedImage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if slices.ContainsFunc(d.images, func(x history.GeneratedImage) bool { return x.ID == img.ID }) {
		return fmt.Errorf("%w: %s", history.ErrDuplicate, img.ID)
	}
	d.images = append(d.images, img)
	return nil
}

func (d *Driver) Images(_ context.Context, limit int) ([]history.GeneratedImage, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := len(d.images)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]history.GeneratedImage, 0, n)
	for i := len(d.images) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, d.images[i])
	}
	return out, nil
}

func (d *Driver) DeleteImage(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	i := slices.IndexFunc(d.images, func(x history.GeneratedImage) bool { return x.ID == id })
	if i < 0 {
		return history.NotFoundError{ID: id}
	}
	d.images = slices.Delete(d.images, i, i+1)
	return nil
}

func (d *Driver) ClearImages(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.images = nil
	return nil
}

func (d *Driver) PruneImages(_ context.Context, keep int) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	evict := len(d.images) - max(keep, 0)
	if evict <= 0 {
		return 0, nil
	}
	d.images = slices.Clone(d.images[evict:])
	return evict, nil
}

// Close is a no-op.
func (d *Driver) Close() error {
	return nil
}
