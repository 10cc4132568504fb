package eventstream

import "context"

// Publisher delivers chat and image events to a backend. The server worker
// pool is the only caller; Publish may block on network I/O.
type Publisher interface {
	// Publish sends one event. A nil event returns ErrNilEvent.
	Publish(ctx context.Context, event *Event) error

	// Close flushes anything buffered and releases the backend.
	Close() error
}
