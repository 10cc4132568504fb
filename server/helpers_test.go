package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studio/pkg/eventstream"
	"github.com/papercomputeco/studio/pkg/history/inmemory"
	"github.com/papercomputeco/studio/pkg/image"
	"github.com/papercomputeco/studio/pkg/logger"
	"github.com/papercomputeco/studio/pkg/relay"
	"github.com/papercomputeco/studio/pkg/sse"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*eventstream.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e *eventstream.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) Events() []*eventstream.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*eventstream.Event(nil), r.events...)
}

type testEnv struct {
	server    *Server
	driver    *inmemory.Driver
	publisher *recordingPublisher
}

// newTestServer wires a Server to the given chat and image upstreams.
func newTestServer(chatURL, apiKey, imageURL string) *testEnv {
	env := &testEnv{
		driver:    inmemory.NewDriver(),
		publisher: &recordingPublisher{},
	}

	var err error
	env.server, err = New(Config{
		ListenAddr: ":0",
		Relay: relay.New(relay.Config{
			UpstreamURL: chatURL,
			APIKey:      apiKey,
			Logger:      logger.Nop(),
		}),
		Images: image.New(image.Config{
			UpstreamURL: imageURL,
			Logger:      logger.Nop(),
		}),
		History:   env.driver,
		Publisher: env.publisher,
		Logger:    logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())
	return env
}

// do runs req against the fiber app and returns the status and full body.
func (e *testEnv) do(method, target, body string) (*http.Response, string) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.server.app.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, string(raw)
}

// chatUpstream serves the given records as an OpenAI-compatible stream.
func chatUpstream(records ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		for _, r := range records {
			fmt.Fprintf(w, "data: %s\n\n", r)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
}

func deltaRecord(content string) string {
	raw, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": content}}},
	})
	return string(raw)
}

// decodeRelay parses a relay response body into its frames and reports
// whether the terminal record was present.
func decodeRelay(body string) ([]sse.Frame, bool) {
	var dec sse.Decoder
	events := append(dec.Feed([]byte(body)), dec.Flush()...)

	var frames []sse.Frame
	done := false
	for _, ev := range events {
		if ev.IsDone() {
			done = true
			continue
		}
		f, err := sse.ParseFrame(ev.Data)
		Expect(err).NotTo(HaveOccurred())
		frames = append(frames, f)
	}
	return frames, done
}
