// Package servertest runs a real studio server on a loopback port against fake
// chat and image upstreams, for tests of the server's clients.
package servertest

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"

	"github.com/papercomputeco/studio/pkg/history/inmemory"
	"github.com/papercomputeco/studio/pkg/image"
	"github.com/papercomputeco/studio/pkg/logger"
	"github.com/papercomputeco/studio/pkg/relay"
	"github.com/papercomputeco/studio/server"
)

// PNG is a minimal image body served by the fake image upstream.
var PNG = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// Options shape the fake upstreams.
type Options struct {
	// ChatReply is streamed as one delta per element for every chat request.
	ChatReply []string

	// ImageStatus is returned by the image upstream. Defaults to 200.
	ImageStatus int

	// MaxImages caps a batch. Defaults to the generator default.
	MaxImages int
}

// Studio is a running server.
type Studio struct {
	URL     string
	History *inmemory.Driver

	server  *server.Server
	chatUp  *httptest.Server
	imageUp *httptest.Server
}

// Start launches a studio server. Callers must Close it.
func Start(opts Options) (*Studio, error) {
	s := &Studio{History: inmemory.NewDriver()}

	s.chatUp = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range opts.ChatReply {
			fmt.Fprintf(w, "data: %s\n\n", deltaRecord(delta))
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))

	status := opts.ImageStatus
	if status == 0 {
		status = http.StatusOK
	}
	s.imageUp = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(status)
		_, _ = w.Write(PNG)
	}))

	srv, err := server.New(server.Config{
		Relay: relay.New(relay.Config{
			UpstreamURL: s.chatUp.URL,
			APIKey:      "test-key",
		}),
		Images: image.New(image.Config{
			UpstreamURL: s.imageUp.URL,
			MaxCount:    opts.MaxImages,
		}),
		History: s.History,
		Logger:  logger.Nop(),
	})
	if err != nil {
		s.closeUpstreams()
		return nil, err
	}
	s.server = srv

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		_ = srv.Close()
		s.closeUpstreams()
		return nil, err
	}
	s.URL = "http://" + ln.Addr().String()

	go func() { _ = srv.RunWithListener(ln) }()

	return s, nil
}

// Close stops the server and both upstreams.
func (s *Studio) Close() {
	_ = s.server.Close()
	s.closeUpstreams()
}

func (s *Studio) closeUpstreams() {
	s.chatUp.Close()
	s.imageUp.Close()
}

func deltaRecord(content string) string {
	raw, _ := json.Marshal(map[string]any{
		"object":  "chat.completion.chunk",
		"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": content}}},
	})
	return string(raw)
}
