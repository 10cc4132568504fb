package sse

import (
	"bytes"
	"strings"
)

// Decoder splits a chunked byte stream into Events. It keeps the bytes after
// the last newline of each chunk and prepends them to the next one, so records
// that straddle chunk boundaries are reassembled intact.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	carry []byte
}

// Feed consumes one chunk and returns the events for every line completed by
// it, in stream order.
func (d *Decoder) Feed(chunk []byte) []Event {
	if len(chunk) == 0 {
		return nil
	}

	d.carry = append(d.carry, chunk...)

	var events []Event
	for {
		i := bytes.IndexByte(d.carry, '\n')
		if i < 0 {
			break
		}
		if ev, ok := parseLine(d.carry[:i]); ok {
			events = append(events, ev)
		}
		d.carry = d.carry[i+1:]
	}

	// Compact so a long stream does not pin every chunk ever read.
	if len(d.carry) == 0 {
		d.carry = nil
	} else if cap(d.carry) > 4*len(d.carry) && cap(d.carry) > 4096 {
		d.carry = append([]byte(nil), d.carry...)
	}

	return events
}

// Flush treats any carried bytes as a final line. Call it once the source is
// exhausted.
func (d *Decoder) Flush() []Event {
	if len(d.carry) == 0 {
		return nil
	}
	line := d.carry
	d.carry = nil

	if ev, ok := parseLine(line); ok {
		return []Event{ev}
	}
	return nil
}

// Buffered returns the number of carried bytes awaiting a newline.
func (d *Decoder) Buffered() int {
	return len(d.carry)
}

func parseLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(Marker)) {
		return Event{}, false
	}

	data := strings.TrimSpace(string(line[len(Marker):]))
	if data == "" {
		return Event{}, false
	}

	return Event{Data: data}, true
}
