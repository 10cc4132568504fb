package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studio/pkg/client"
	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/llm"
)

var _ = Describe("Client", func() {
	var (
		server   *httptest.Server
		handler  http.HandlerFunc
		lastReq  *http.Request
		lastBody []byte
		c        *client.Client
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		handler = nil
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastReq = r
			lastBody, _ = io.ReadAll(r.Body)
			handler(w, r)
		}))
		c = client.New(server.URL+"/", nil)
	})

	AfterEach(func() {
		server.Close()
	})

	It("trims the trailing slash from the target", func() {
		Expect(c.Target()).To(Equal(server.URL))
	})

	Describe("Ping", func() {
		It("accepts pong", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `"pong"`)
			}
			Expect(c.Ping(ctx)).To(Succeed())
			Expect(lastReq.URL.Path).To(Equal("/ping"))
		})

		It("rejects anything else", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `"ping"`)
			}
			Expect(c.Ping(ctx)).To(MatchError(ContainSubstring("unexpected ping reply")))
		})
	})

	Describe("StreamChat", func() {
		It("returns the raw event stream", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = io.WriteString(w, "data: {\"content\":\"hi\"}\n\ndata: [DONE]\n\n")
			}

			body, err := c.StreamChat(ctx, &llm.ChatRequest{Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hello")}})
			Expect(err).NotTo(HaveOccurred())
			defer body.Close()

			raw, err := io.ReadAll(body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring(`{"content":"hi"}`))

			Expect(lastReq.Method).To(Equal(http.MethodPost))
			Expect(lastReq.URL.Path).To(Equal("/api/chat"))
			Expect(lastReq.Header.Get("Content-Type")).To(Equal("application/json"))

			var sent llm.ChatRequest
			Expect(json.Unmarshal(lastBody, &sent)).To(Succeed())
			Expect(sent.Messages).To(HaveLen(1))
		})

		It("surfaces the server error message", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = io.WriteString(w, `{"error":"GROQ_API_KEY not configured"}`)
			}

			_, err := c.StreamChat(ctx, &llm.ChatRequest{})
			var statusErr *client.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.Status).To(Equal(http.StatusInternalServerError))
			Expect(statusErr.Message).To(Equal("GROQ_API_KEY not configured"))
		})
	})

	Describe("GenerateImages", func() {
		It("sends the count as a query parameter", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(llm.ImageResponse{Success: true, Images: []string{"data:a", "data:b"}, Count: 2})
			}

			images, err := c.GenerateImages(ctx, "a cat", 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(images).To(Equal([]string{"data:a", "data:b"}))
			Expect(lastReq.URL.Query().Get("n")).To(Equal("2"))
			Expect(string(lastBody)).To(MatchJSON(`{"prompt":"a cat"}`))
		})

		It("falls back to the raw body for non-JSON errors", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = io.WriteString(w, "bad gateway\n")
			}

			_, err := c.GenerateImages(ctx, "a cat", 1)
			Expect(err).To(MatchError("server returned status 502: bad gateway"))
		})
	})

	Describe("history", func() {
		It("reads the chat log with a limit", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"count":1,"messages":[{"id":"m1","role":"user","content":"hi","timestamp":5}]}`)
			}

			msgs, err := c.ChatHistory(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(Equal([]history.ChatMessage{{ID: "m1", Role: "user", Content: "hi", Timestamp: 5}}))
			Expect(lastReq.URL.Query().Get("limit")).To(Equal("10"))
		})

		It("omits the limit when not positive", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, `{"count":0,"images":[]}`)
			}

			_, err := c.ImageHistory(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(lastReq.URL.RawQuery).To(BeEmpty())
		})

		It("expects 201 when appending", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusCreated)
			}

			Expect(c.AppendChat(ctx, history.ChatMessage{ID: "m1", Role: "user"})).To(Succeed())
			Expect(c.AddImage(ctx, history.GeneratedImage{ID: "i1", URL: "data:x"})).To(Succeed())
		})

		It("escapes image ids in the delete path", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}

			Expect(c.DeleteImage(ctx, "a/b")).To(Succeed())
			Expect(lastReq.Method).To(Equal(http.MethodDelete))
			Expect(lastReq.URL.EscapedPath()).To(Equal("/api/history/images/a%2Fb"))
		})

		It("reports a missing image", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `{"error":"image not found: x"}`)
			}

			err := c.DeleteImage(ctx, "x")
			var statusErr *client.StatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.Status).To(Equal(http.StatusNotFound))
		})

		It("clears both logs", func() {
			handler = func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}

			Expect(c.ClearChat(ctx)).To(Succeed())
			Expect(lastReq.URL.Path).To(Equal("/api/history/chat"))
			Expect(c.ClearImages(ctx)).To(Succeed())
			Expect(lastReq.URL.Path).To(Equal("/api/history/images"))
		})
	})

	It("lists models", func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"models": llm.ChatModels})
		}

		models, err := c.Models(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(models).To(Equal(llm.ChatModels))
	})

	It("wraps transport failures", func() {
		server.Close()
		_, err := c.Models(ctx)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("sending request"))
	})
})
