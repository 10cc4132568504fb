// Package nop provides the publisher used when no event backend is
// configured.
package nop

import (
	"context"
	"sync/atomic"

	"github.com/papercomputeco/studio/pkg/eventstream"
)

// Publisher discards events. It still validates them and counts how many it
// dropped so serve can report the number on shutdown.
type Publisher struct {
	discarded atomic.Int64
	closed    atomic.Bool
}

// NewPublisher returns a ready Publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Publish drops event.
func (p *Publisher) Publish(_ context.Context, event *eventstream.Event) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	if p.closed.Load() {
		return eventstream.ErrClosed
	}
	p.discarded.Add(1)
	return nil
}

// Discarded reports how many events Publish has dropped.
func (p *Publisher) Discarded() int64 {
	return p.discarded.Load()
}

// Close marks the publisher closed. It is safe to call more than once.
func (p *Publisher) Close() error {
	p.closed.Store(true)
	return nil
}
