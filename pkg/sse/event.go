// Package sse implements the marker-prefixed, newline-delimited record framing
// shared by the upstream chat API, the studio relay and its clients:
//
//	record  := "data:" SP? payload "\n\n"
//	payload := "[DONE]" | JSON-object
//
// Decoding is incremental. Upstream bytes arrive in arbitrarily sized chunks and
// a record may be split anywhere, including inside the "data:" marker or inside
// its JSON payload, so the Decoder carries the unterminated tail of every chunk
// over to the next one.
package sse

import (
	"encoding/json"
)

const (
	// Marker prefixes every significant line. Other lines are ignored.
	Marker = "data:"

	// DoneSentinel is the payload of the terminal record.
	DoneSentinel = "[DONE]"
)

// Event is one marker-prefixed record with the marker and surrounding
// whitespace removed from its payload.
type Event struct {
	Data string
}

// IsDone reports whether the event is the terminal sentinel.
func (e *Event) IsDone() bool {
	return e.Data == DoneSentinel
}

// Frame is the normalized payload the relay emits. Exactly one of Content or
// Error is set on frames produced by Writer.
type Frame struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ParseFrame decodes a relay payload. Callers treat a decode error as a
// malformed record and skip it.
func ParseFrame(data string) (Frame, error) {
	var f Frame
	err := json.Unmarshal([]byte(data), &f)
	return f, err
}
