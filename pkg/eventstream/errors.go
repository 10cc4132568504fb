package eventstream

import "errors"

var (
	// ErrNilEvent is returned by Publish when given a nil event.
	ErrNilEvent = errors.New("nil event")

	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("publisher closed")
)
