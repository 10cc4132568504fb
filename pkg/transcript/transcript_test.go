package transcript_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/llm"
	"github.com/papercomputeco/studio/pkg/transcript"
)

// chunkReader returns each part from a separate Read call.
type chunkReader struct {
	parts [][]byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	for len(r.parts) > 0 && len(r.parts[0]) == 0 {
		r.parts = r.parts[1:]
	}
	if len(r.parts) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.parts[0])
	r.parts[0] = r.parts[0][n:]
	return n, nil
}

type trackingBody struct {
	io.Reader
	mu     sync.Mutex
	eof    bool
	closed bool
}

func (b *trackingBody) Read(p []byte) (int, error) {
	n, err := b.Reader.Read(p)
	if errors.Is(err, io.EOF) {
		b.mu.Lock()
		b.eof = true
		b.mu.Unlock()
	}
	return n, err
}

func (b *trackingBody) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type fakeStreamer struct {
	mu       sync.Mutex
	bodies   []io.Reader
	err      error
	gate     chan struct{}
	requests []*llm.ChatRequest
	last     *trackingBody
}

func (s *fakeStreamer) StreamChat(_ context.Context, req *llm.ChatRequest) (io.ReadCloser, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if s.err != nil {
		return nil, s.err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	body := &trackingBody{Reader: s.bodies[0]}
	s.bodies = s.bodies[1:]
	s.last = body
	return body, nil
}

type fakeStore struct {
	mu    sync.Mutex
	saved []history.ChatMessage
	err   error
}

func (s *fakeStore) AppendChat(_ context.Context, m history.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, m)
	return nil
}

func (s *fakeStore) Saved() []history.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]history.ChatMessage(nil), s.saved...)
}

func relayBody(records ...string) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString("data: ")
		b.WriteString(r)
		b.WriteString("\n\n")
	}
	return b.String()
}

var _ = Describe("Transcript", func() {
	var (
		streamer    *fakeStreamer
		store       *fakeStore
		diagnostics []string
		t           *transcript.Transcript
		ctx         context.Context
	)

	newTranscript := func(resumed ...history.ChatMessage) *transcript.Transcript {
		return transcript.New(transcript.Config{
			Model:       "llama-3.1-8b-instant",
			Streamer:    streamer,
			Store:       store,
			Diagnostics: func(msg string) { diagnostics = append(diagnostics, msg) },
		}, resumed)
	}

	BeforeEach(func() {
		ctx = context.Background()
		streamer = &fakeStreamer{}
		store = &fakeStore{}
		diagnostics = nil
		t = newTranscript()
	})

	It("rejects blank input", func() {
		_, err := t.Send(ctx, "  \n", nil)
		Expect(err).To(MatchError(transcript.ErrEmptyMessage))
		Expect(t.Len()).To(BeZero())
	})

	It("reassembles deltas in order and persists one snapshot", func() {
		streamer.bodies = []io.Reader{strings.NewReader(relayBody(`{"content":"Hel"}`, `{"content":"lo"}`, "[DONE]"))}

		var deltas []string
		reply, err := t.Send(ctx, "hi", func(d string) { deltas = append(deltas, d) })
		Expect(err).NotTo(HaveOccurred())

		Expect(deltas).To(Equal([]string{"Hel", "lo"}))
		Expect(reply.Message.Role).To(Equal(llm.RoleAssistant))
		Expect(reply.Message.Content).To(Equal("Hello"))
		Expect(reply.Deltas).To(Equal(2))
		Expect(reply.Done).To(BeTrue())
		Expect(reply.Persisted).To(BeTrue())
		Expect(reply.Err).NotTo(HaveOccurred())

		msgs := t.Messages()
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[0].Role).To(Equal(llm.RoleUser))
		Expect(msgs[0].Content).To(Equal("hi"))
		Expect(msgs[1]).To(Equal(reply.Message))

		saved := store.Saved()
		Expect(saved).To(HaveLen(2))
		Expect(saved[0]).To(Equal(msgs[0]))
		Expect(saved[1]).To(Equal(reply.Message))
		Expect(streamer.last.closed).To(BeTrue())
	})

	It("sends the whole conversation with the configured model", func() {
		resumed := history.ChatMessage{ID: "m0", Role: llm.RoleSystem, Content: "be brief", Timestamp: 1}
		t = newTranscript(resumed)
		streamer.bodies = []io.Reader{strings.NewReader(relayBody(`{"content":"ok"}`))}

		_, err := t.Send(ctx, "hi", nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(streamer.requests).To(HaveLen(1))
		req := streamer.requests[0]
		Expect(req.Model).To(Equal("llama-3.1-8b-instant"))
		Expect(req.Messages).To(Equal([]llm.Message{
			{Role: llm.RoleSystem, Content: "be brief"},
			{Role: llm.RoleUser, Content: "hi"},
		}))
	})

	It("recovers every delta regardless of chunk boundaries", func() {
		body := relayBody(`{"content":"x"}`, `{"content":"yz"}`, `{"content":" w"}`, "[DONE]")
		for split := 0; split <= len(body); split++ {
			streamer.bodies = []io.Reader{&chunkReader{parts: [][]byte{[]byte(body[:split]), []byte(body[split:])}}}
			t = newTranscript()

			reply, err := t.Send(ctx, "go", nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Message.Content).To(Equal("xyz w"), fmt.Sprintf("split at %d", split))
		}
	})

	It("survives one-byte reads", func() {
		body := relayBody(`{"content":"a"}`, `{"content":"b"}`, "[DONE]")
		streamer.bodies = []io.Reader{iotest.OneByteReader(strings.NewReader(body))}

		reply, err := t.Send(ctx, "go", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Message.Content).To(Equal("ab"))
	})

	It("stops processing after the terminal record but drains the stream", func() {
		streamer.bodies = []io.Reader{strings.NewReader(relayBody(`{"content":"a"}`, "[DONE]", `{"content":"late"}`))}

		reply, err := t.Send(ctx, "go", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Message.Content).To(Equal("a"))
		Expect(reply.Deltas).To(Equal(1))
		Expect(streamer.last.eof).To(BeTrue())
	})

	It("drops malformed records silently", func() {
		streamer.bodies = []io.Reader{strings.NewReader(relayBody(`{"content":`, `{"content":"ok"}`))}

		reply, err := t.Send(ctx, "go", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Message.Content).To(Equal("ok"))
		Expect(reply.Dropped).To(Equal(1))
		Expect(diagnostics).To(BeEmpty())
	})

	It("reports error records without closing the open message", func() {
		streamer.bodies = []io.Reader{strings.NewReader(relayBody(`{"content":"part"}`, `{"error":"rate limited"}`, `{"content":"ial"}`))}

		reply, err := t.Send(ctx, "go", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Message.Content).To(Equal("partial"))
		Expect(reply.Errors).To(Equal([]string{"rate limited"}))
		Expect(diagnostics).To(Equal([]string{"rate limited"}))
		Expect(reply.Persisted).To(BeTrue())
	})

	It("does not keep or persist an empty reply", func() {
		streamer.bodies = []io.Reader{strings.NewReader(relayBody(`{"error":"upstream request failed"}`))}

		reply, err := t.Send(ctx, "go", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Persisted).To(BeFalse())
		Expect(reply.Message.Content).To(BeEmpty())
		Expect(t.Messages()).To(HaveLen(1))
		Expect(store.Saved()).To(HaveLen(1))
	})

	It("turns a failed request into a synthetic error message", func() {
		streamer.err = errors.New("connection refused")

		reply, err := t.Send(ctx, "go", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Err).To(MatchError("connection refused"))
		Expect(reply.Message.Role).To(Equal(llm.RoleAssistant))
		Expect(reply.Message.Content).To(Equal("Error: connection refused"))
		Expect(reply.Persisted).To(BeFalse())

		msgs := t.Messages()
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[1]).To(Equal(reply.Message))
		Expect(store.Saved()).To(HaveLen(1))
	})

	It("turns a broken stream into a synthetic error message", func() {
		streamer.bodies = []io.Reader{io.MultiReader(
			strings.NewReader(relayBody(`{"content":"a"}`)),
			iotest.ErrReader(errors.New("connection reset")),
		)}

		reply, err := t.Send(ctx, "go", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Deltas).To(Equal(1))
		Expect(reply.Message.Content).To(Equal("Error: reading reply: connection reset"))
		Expect(reply.Persisted).To(BeFalse())

		msgs := t.Messages()
		Expect(msgs).To(HaveLen(3))
		Expect(msgs[1].Role).To(Equal(llm.RoleAssistant))
		Expect(msgs[1].Content).To(Equal("a"))
		Expect(msgs[2]).To(Equal(reply.Message))
		Expect(store.Saved()).To(HaveLen(1))
	})

	It("drops the open message when the stream breaks before any content", func() {
		streamer.bodies = []io.Reader{iotest.ErrReader(errors.New("connection reset"))}

		reply, err := t.Send(ctx, "go", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Err).To(HaveOccurred())

		msgs := t.Messages()
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[1].Content).To(Equal("Error: reading reply: connection reset"))
	})

	It("keeps the reply when the store fails", func() {
		store.err = errors.New("disk full")
		streamer.bodies = []io.Reader{strings.NewReader(relayBody(`{"content":"ok"}`))}

		reply, err := t.Send(ctx, "go", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(reply.Persisted).To(BeFalse())
		Expect(t.Messages()).To(HaveLen(2))
	})

	It("rejects a concurrent send", func() {
		streamer.gate = make(chan struct{})
		streamer.bodies = []io.Reader{strings.NewReader(relayBody(`{"content":"first"}`))}

		done := make(chan transcript.Reply)
		go func() {
			defer GinkgoRecover()
			reply, err := t.Send(ctx, "one", nil)
			Expect(err).NotTo(HaveOccurred())
			done <- reply
		}()

		Eventually(t.InFlight).Should(BeTrue())

		_, err := t.Send(ctx, "two", nil)
		Expect(err).To(MatchError(transcript.ErrSendInProgress))
		Expect(t.Reset()).To(MatchError(transcript.ErrSendInProgress))

		close(streamer.gate)
		Eventually(done).Should(Receive(WithTransform(func(r transcript.Reply) string {
			return r.Message.Content
		}, Equal("first"))))
		Expect(t.InFlight()).To(BeFalse())

		contents := []string{}
		for _, m := range t.Messages() {
			contents = append(contents, m.Content)
		}
		Expect(contents).To(Equal([]string{"one", "first"}))
	})

	Describe("model lock", func() {
		It("allows changes before the first message", func() {
			Expect(t.SetModel("mixtral-8x7b-32768")).To(Succeed())
			Expect(t.Model()).To(Equal("mixtral-8x7b-32768"))
		})

		It("refuses changes once messages exist", func() {
			t = newTranscript(history.NewMessage(llm.RoleUser, "hi"))
			Expect(t.SetModel("mixtral-8x7b-32768")).To(MatchError(transcript.ErrModelLocked))
			Expect(t.Model()).To(Equal("llama-3.1-8b-instant"))
		})

		It("unlocks after a reset", func() {
			t = newTranscript(history.NewMessage(llm.RoleUser, "hi"))
			Expect(t.Reset()).To(Succeed())
			Expect(t.SetModel("mixtral-8x7b-32768")).To(Succeed())
		})
	})
})

var _ = Describe("Title", func() {
	It("names an empty conversation", func() {
		Expect(transcript.Title(nil)).To(Equal(transcript.UntitledConversation))
	})

	It("truncates the first message", func() {
		long := strings.Repeat("é", 60)
		title := transcript.Title([]history.ChatMessage{{Content: long}, {Content: "second"}})
		Expect(title).To(Equal(strings.Repeat("é", 50) + "..."))
	})

	It("keeps short first messages", func() {
		Expect(transcript.Title([]history.ChatMessage{{Content: "hello"}})).To(Equal("hello"))
	})
})

var _ = Describe("CodeBlocks", func() {
	It("extracts blocks in order with their language", func() {
		text := "intro\n```go\nfmt.Println(1)\n```\nmiddle\n```\n  plain  \n```"
		Expect(transcript.CodeBlocks(text)).To(Equal([]transcript.CodeBlock{
			{Lang: "go", Code: "fmt.Println(1)"},
			{Lang: "text", Code: "plain"},
		}))
	})

	It("returns nothing for prose", func() {
		Expect(transcript.CodeBlocks("no code here")).To(BeEmpty())
	})
})
