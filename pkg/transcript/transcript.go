// Package transcript reassembles relayed chat streams into a client-side
// conversation. A Transcript holds the ordered messages of one conversation,
// allows a single reply to stream at a time and persists each finished message
// to history.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/llm"
	"github.com/papercomputeco/studio/pkg/sse"
)

var (
	// ErrSendInProgress is returned by Send while another reply is streaming.
	ErrSendInProgress = errors.New("a reply is already streaming")

	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrModelLocked is returned by SetModel once the conversation has
	// messages.
	ErrModelLocked = errors.New("model cannot change once the conversation has messages")
)

// Streamer opens a relayed chat stream.
type Streamer interface {
	StreamChat(ctx context.Context, req *llm.ChatRequest) (io.ReadCloser, error)
}

// Store persists finished messages.
type Store interface {
	AppendChat(ctx context.Context, m history.ChatMessage) error
}

// Config configures a Transcript.
type Config struct {
	Model    string
	Streamer Streamer

	// Store is optional. Without one nothing is persisted.
	Store Store

	// Diagnostics receives the message of every error record. Error records
	// never end the open message.
	Diagnostics func(msg string)

	Logger *slog.Logger
}

// Reply summarizes one Send.
type Reply struct {
	// Message is the finished assistant message. When the stream could not
	// be opened or broke while reading it is the synthetic error message.
	Message history.ChatMessage

	Deltas  int
	Dropped int
	Errors  []string
	Done    bool

	// Persisted reports whether Message was written to the Store.
	Persisted bool

	// Err is the failure behind a synthetic error message.
	Err error
}

// Transcript is one conversation. It is safe for concurrent use; concurrent
// sends are rejected rather than queued.
type Transcript struct {
	mu       sync.Mutex
	messages []history.ChatMessage
	model    string
	inFlight bool

	streamer    Streamer
	store       Store
	diagnostics func(string)
	logger      *slog.Logger
}

// New returns a Transcript resuming from messages, oldest first.
func New(cfg Config, messages []history.ChatMessage) *Transcript {
	t := &Transcript{
		messages:    append([]history.ChatMessage(nil), messages...),
		model:       cfg.Model,
		streamer:    cfg.Streamer,
		store:       cfg.Store,
		diagnostics: cfg.Diagnostics,
		logger:      cfg.Logger,
	}
	if t.diagnostics == nil {
		t.diagnostics = func(string) {}
	}
	if t.logger == nil {
		t.logger = slog.New(slog.DiscardHandler)
	}
	return t
}

// Messages returns a copy of the conversation in send/receive order.
func (t *Transcript) Messages() []history.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]history.ChatMessage(nil), t.messages...)
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// Model returns the model new requests are sent with.
func (t *Transcript) Model() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.model
}

// SetModel switches the model. It fails once the conversation has started.
func (t *Transcript) SetModel(model string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.messages) > 0 || t.inFlight {
		return ErrModelLocked
	}
	t.model = model
	return nil
}

// InFlight reports whether a reply is streaming.
func (t *Transcript) InFlight() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}

// Reset drops every local message. It fails while a reply is streaming.
func (t *Transcript) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.inFlight {
		return ErrSendInProgress
	}
	t.messages = nil
	return nil
}

// Title names the conversation after its first message.
func (t *Transcript) Title() string {
	return Title(t.Messages())
}

// Send appends content as a user message, streams the assistant reply into a
// new open message and persists both. onDelta, if set, receives every content
// delta in order.
//
// Failing to open or read the stream is not returned as an error: it becomes a
// synthetic "Error: ..." assistant message, reported in Reply.Err.
func (t *Transcript) Send(ctx context.Context, content string, onDelta func(string)) (Reply, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Reply{}, ErrEmptyMessage
	}

	user := history.NewMessage(llm.RoleUser, content)

	t.mu.Lock()
	if t.inFlight {
		t.mu.Unlock()
		return Reply{}, ErrSendInProgress
	}
	t.inFlight = true
	t.messages = append(t.messages, user)
	req := &llm.ChatRequest{
		Model:    t.model,
		Messages: toRequestMessages(t.messages),
	}
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.inFlight = false
		t.mu.Unlock()
	}()

	t.persist(ctx, user)

	t.logger.Debug("sending chat request",
		"model", req.Model,
		"message_count", len(req.Messages),
	)

	body, err := t.streamer.StreamChat(ctx, req)
	if err != nil {
		return t.fail(err), nil
	}
	defer body.Close()

	open := history.NewMessage(llm.RoleAssistant, "")
	t.mu.Lock()
	t.messages = append(t.messages, open)
	t.mu.Unlock()

	reply := t.read(body, open.ID, onDelta)

	if reply.Err != nil {
		// The partial reply stays on screen but is never persisted.
		if partial, ok := t.lookup(open.ID); !ok || partial.Content == "" {
			t.remove(open.ID)
		}
		failed := t.fail(reply.Err)
		failed.Deltas, failed.Dropped, failed.Errors = reply.Deltas, reply.Dropped, reply.Errors
		return failed, nil
	}

	snapshot, ok := t.lookup(open.ID)
	if !ok || snapshot.Content == "" {
		t.remove(open.ID)
		reply.Message = open
		return reply, nil
	}

	reply.Message = snapshot
	reply.Persisted = t.persist(ctx, snapshot)

	t.logger.Debug("chat reply completed",
		"deltas", reply.Deltas,
		"dropped_records", reply.Dropped,
		"errors", len(reply.Errors),
		"done", reply.Done,
	)

	return reply, nil
}

// read consumes the relay stream into the open message. After the terminal
// record no further records are processed, but the stream is still drained.
func (t *Transcript) read(body io.Reader, openID string, onDelta func(string)) Reply {
	var reply Reply
	reader := sse.NewReader(body)

	for {
		ev, err := reader.Next()
		if err != nil {
			reply.Err = fmt.Errorf("reading reply: %w", err)
			return reply
		}
		if ev == nil {
			return reply
		}
		if reply.Done {
			continue
		}
		if ev.IsDone() {
			reply.Done = true
			continue
		}

		frame, err := sse.ParseFrame(ev.Data)
		if err != nil {
			reply.Dropped++
			t.logger.Debug("dropping malformed record", "error", err)
			continue
		}

		switch {
		case frame.Error != "":
			reply.Errors = append(reply.Errors, frame.Error)
			t.diagnostics(frame.Error)
		case frame.Content != "":
			if t.appendTo(openID, frame.Content) {
				reply.Deltas++
				if onDelta != nil {
					onDelta(frame.Content)
				}
			}
		}
	}
}

// fail records err as a synthetic assistant message. It is not persisted.
func (t *Transcript) fail(err error) Reply {
	msg := history.NewMessage(llm.RoleAssistant, "Error: "+err.Error())

	t.mu.Lock()
	t.messages = append(t.messages, msg)
	t.mu.Unlock()

	t.logger.Warn("chat request failed", "error", err)
	return Reply{Message: msg, Err: err}
}

func (t *Transcript) persist(ctx context.Context, m history.ChatMessage) bool {
	if t.store == nil {
		return false
	}
	if err := t.store.AppendChat(ctx, m); err != nil {
		t.logger.Warn("could not save message to history",
			"id", m.ID,
			"role", m.Role,
			"error", err,
		)
		return false
	}
	return true
}

// appendTo extends the message with id. Messages are located by id, never by
// position.
func (t *Transcript) appendTo(id, delta string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].ID == id {
			t.messages[i].Content += delta
			return true
		}
	}
	return false
}

func (t *Transcript) lookup(id string) (history.ChatMessage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range t.messages {
		if m.ID == id {
			return m, true
		}
	}
	return history.ChatMessage{}, false
}

func (t *Transcript) remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, m := range t.messages {
		if m.ID == id {
			t.messages = append(t.messages[:i], t.messages[i+1:]...)
			return
		}
	}
}

func toRequestMessages(messages []history.ChatMessage) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.NewTextMessage(m.Role, m.Content))
	}
	return out
}
