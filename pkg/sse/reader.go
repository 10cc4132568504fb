package sse

import (
	"errors"
	"io"
)

const defaultChunkSize = 32 * 1024

// Reader pulls chunks from a source io.Reader and yields decoded Events one at
// a time.
//
// ┌──────────────────┐   chunk   ┌─────────┐  events  ┌─────────────┐
// │ source io.Reader │──────────▶│ Decoder │─────────▶│ Reader.Next │
// └──────────────────┘           └─────────┘          └─────────────┘
//
// Each Read on the source is a suspension point: cancelling the request that
// owns the source makes the next Read fail and Next returns that error.
type Reader struct {
	src     io.Reader
	buf     []byte
	dec     Decoder
	pending []Event
	err     error
	done    bool
}

// NewReader returns a Reader with the default chunk size.
func NewReader(src io.Reader) *Reader {
	return NewReaderSize(src, defaultChunkSize)
}

// NewReaderSize returns a Reader that reads at most size bytes per chunk.
func NewReaderSize(src io.Reader, size int) *Reader {
	if size <= 0 {
		size = defaultChunkSize
	}
	return &Reader{
		src: src,
		buf: make([]byte, size),
	}
}

// Next returns the next event. It returns nil, nil once the source is
// exhausted. Events decoded before a read error are returned before the error.
func (r *Reader) Next() (*Event, error) {
	for {
		if len(r.pending) > 0 {
			ev := r.pending[0]
			r.pending = r.pending[1:]
			return &ev, nil
		}

		if r.done {
			return nil, r.err
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending = append(r.pending, r.dec.Feed(r.buf[:n])...)
		}

		switch {
		case errors.Is(err, io.EOF):
			r.pending = append(r.pending, r.dec.Flush()...)
			r.done = true
		case err != nil:
			r.err = err
			r.done = true
		}
	}
}
