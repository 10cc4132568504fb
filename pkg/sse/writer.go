package sse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

type flusher interface {
	Flush() error
}

type httpFlusher interface {
	Flush()
}

// Writer re-emits normalized frames with the same framing Decoder consumes.
// Each call writes one complete record and flushes it.
type Writer struct {
	dst io.Writer
	buf bytes.Buffer
}

// NewWriter returns a Writer over dst. If dst can be flushed (bufio.Writer,
// http.Flusher) every record is flushed after it is written.
func NewWriter(dst io.Writer) *Writer {
	return &Writer{dst: dst}
}

// Content writes a {"content": s} record.
func (w *Writer) Content(s string) error {
	return w.frame(Frame{Content: s})
}

// Error writes an {"error": msg} record.
func (w *Writer) Error(msg string) error {
	return w.frame(Frame{Error: msg})
}

// Done writes the terminal record.
func (w *Writer) Done() error {
	return w.write([]byte(DoneSentinel))
}

func (w *Writer) frame(f Frame) error {
	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	return w.write(bytes.TrimSuffix(payload.Bytes(), []byte("\n")))
}

func (w *Writer) write(payload []byte) error {
	w.buf.Reset()
	w.buf.WriteString(Marker)
	w.buf.WriteByte(' ')
	w.buf.Write(payload)
	w.buf.WriteString("\n\n")

	if _, err := w.dst.Write(w.buf.Bytes()); err != nil {
		return err
	}

	switch f := w.dst.(type) {
	case flusher:
		return f.Flush()
	case httpFlusher:
		f.Flush()
	}
	return nil
}
