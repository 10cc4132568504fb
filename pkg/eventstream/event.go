package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeChatCompleted is emitted after a relayed chat stream ends,
	// whatever its outcome.
	EventTypeChatCompleted = "studio.chat.completed"

	// EventTypeImageGenerated is emitted after an image batch succeeds.
	EventTypeImageGenerated = "studio.image.generated"

	// sourceService names the emitting service.
	sourceService = "studio"
)

// Event is a transport-neutral event envelope. Exactly one of Chat or Image is
// set, matching EventType.
type Event struct {
	SchemaVersion int             `json:"schema_version"`
	EventType     string          `json:"event_type"`
	EventID       string          `json:"event_id"`
	EmittedAt     time.Time       `json:"emitted_at"`
	Source        EventSource     `json:"source"`
	Chat          *ChatCompleted  `json:"chat,omitempty"`
	Image         *ImageGenerated `json:"image,omitempty"`
}

// EventSource identifies where the event originated.
type EventSource struct {
	Service string `json:"service"`
	Route   string `json:"route"`
}

// ChatCompleted describes one relayed chat stream.
type ChatCompleted struct {
	Model         string    `json:"model"`
	MessageCount  int       `json:"message_count"`
	Deltas        int       `json:"deltas"`
	Dropped       int       `json:"dropped_records"`
	ContentLength int       `json:"content_length"`
	Done          bool      `json:"done"`
	Error         string    `json:"error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	DurationMs    int64     `json:"duration_ms"`
}

// ImageGenerated describes one successful image batch.
type ImageGenerated struct {
	Model      string    `json:"model"`
	Prompt     string    `json:"prompt"`
	Count      int       `json:"count"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
}

// NewChatCompletedEvent wraps chat in a fresh envelope.
func NewChatCompletedEvent(route string, chat ChatCompleted) *Event {
	return newEvent(EventTypeChatCompleted, route, func(e *Event) { e.Chat = &chat })
}

// NewImageGeneratedEvent wraps img in a fresh envelope.
func NewImageGeneratedEvent(route string, img ImageGenerated) *Event {
	return newEvent(EventTypeImageGenerated, route, func(e *Event) { e.Image = &img })
}

func newEvent(eventType, route string, set func(*Event)) *Event {
	e := &Event{
		SchemaVersion: SchemaVersionV1,
		EventType:     eventType,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source: EventSource{
			Service: sourceService,
			Route:   route,
		},
	}
	set(e)
	return e
}
