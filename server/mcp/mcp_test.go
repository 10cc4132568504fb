package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/history/inmemory"
	"github.com/papercomputeco/studio/pkg/llm"
	"github.com/papercomputeco/studio/pkg/logger"
	"github.com/papercomputeco/studio/server/mcp"
)

type fakeImages struct {
	err   error
	calls []int
}

func (f *fakeImages) Generate(_ context.Context, prompt string, n int) ([]string, error) {
	f.calls = append(f.calls, n)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("data:image/png;base64,%s-%d", prompt, i)
	}
	return out, nil
}

func (f *fakeImages) MaxCount() int { return 4 }

// failingHistory fails reads of the chat log once err is set.
type failingHistory struct {
	*inmemory.Driver
	err error
}

func (f *failingHistory) Messages(ctx context.Context, limit int) ([]history.ChatMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.Driver.Messages(ctx, limit)
}

var _ = Describe("MCP Server", func() {
	var (
		images  *fakeImages
		driver  *inmemory.Driver
		store   *failingHistory
		server  *mcp.Server
		session *sdk.ClientSession
		ctx     context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		images = &fakeImages{}
		driver = inmemory.NewDriver()
		store = &failingHistory{Driver: driver}

		var err error
		server, err = mcp.NewServer(mcp.Config{
			Images:  images,
			History: store,
			Logger:  logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())

		serverTransport, clientTransport := sdk.NewInMemoryTransports()
		_, err = server.MCPServer().Connect(ctx, serverTransport, nil)
		Expect(err).NotTo(HaveOccurred())

		client := sdk.NewClient(&sdk.Implementation{Name: "test", Version: "v0"}, nil)
		session, err = client.Connect(ctx, clientTransport, nil)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(session.Close()).To(Succeed())
	})

	call := func(name string, args map[string]any) *sdk.CallToolResult {
		res, err := session.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
		Expect(err).NotTo(HaveOccurred())
		return res
	}

	text := func(res *sdk.CallToolResult) string {
		Expect(res.Content).NotTo(BeEmpty())
		tc, ok := res.Content[0].(*sdk.TextContent)
		Expect(ok).To(BeTrue())
		return tc.Text
	}

	Describe("NewServer", func() {
		It("requires an image generator", func() {
			_, err := mcp.NewServer(mcp.Config{History: driver, Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("image generator is required")))
		})

		It("requires a history driver", func() {
			_, err := mcp.NewServer(mcp.Config{Images: images, Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("history driver is required")))
		})

		It("requires a logger", func() {
			_, err := mcp.NewServer(mcp.Config{Images: images, History: driver})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("builds an empty server in noop mode", func() {
			s, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Handler()).NotTo(BeNil())
		})
	})

	It("lists both tools", func() {
		res, err := session.ListTools(ctx, &sdk.ListToolsParams{})
		Expect(err).NotTo(HaveOccurred())

		var names []string
		for _, tool := range res.Tools {
			names = append(names, tool.Name)
		}
		Expect(names).To(ConsistOf("generate_images", "chat_history"))
	})

	Describe("generate_images", func() {
		It("generates, clamps the count and records the images", func() {
			res := call("generate_images", map[string]any{"prompt": "cat", "count": 9})
			Expect(res.IsError).To(BeFalse())

			var out mcp.GenerateImagesOutput
			Expect(json.Unmarshal([]byte(text(res)), &out)).To(Succeed())
			Expect(out.Count).To(Equal(4))
			Expect(out.Images).To(HaveLen(4))
			Expect(images.calls).To(Equal([]int{4}))

			stored, err := driver.Images(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored).To(HaveLen(4))
			Expect(stored[0].Prompt).To(Equal("cat"))
		})

		It("defaults to one image", func() {
			res := call("generate_images", map[string]any{"prompt": "cat"})
			Expect(res.IsError).To(BeFalse())
			Expect(images.calls).To(Equal([]int{1}))
		})

		It("reports generation failures as tool errors", func() {
			images.err = errors.New("upstream down")
			res := call("generate_images", map[string]any{"prompt": "cat"})
			Expect(res.IsError).To(BeTrue())
			Expect(text(res)).To(ContainSubstring("upstream down"))
		})
	})

	It("reports history read failures as tool errors", func() {
		store.err = errors.New("database is locked")
		res := call("chat_history", map[string]any{"limit": 2})
		Expect(res.IsError).To(BeTrue())
		Expect(text(res)).To(ContainSubstring("database is locked"))
	})

	Describe("chat_history", func() {
		It("returns the most recent messages oldest first", func() {
			for i := range 3 {
				m := history.ChatMessage{ID: fmt.Sprintf("m%d", i), Role: llm.RoleUser, Content: fmt.Sprintf("msg %d", i), Timestamp: int64(i)}
				Expect(driver.AppendMessage(ctx, m)).To(Succeed())
			}

			res := call("chat_history", map[string]any{"limit": 2})
			Expect(res.IsError).To(BeFalse())

			var out mcp.ChatHistoryOutput
			Expect(json.Unmarshal([]byte(text(res)), &out)).To(Succeed())
			Expect(out.Count).To(Equal(2))
			Expect(out.Messages[0].ID).To(Equal("m1"))
			Expect(out.Messages[1].ID).To(Equal("m2"))
		})

		It("returns an empty list for an empty log", func() {
			res := call("chat_history", map[string]any{})
			Expect(res.IsError).To(BeFalse())
			Expect(text(res)).To(MatchJSON(`{"messages":[],"count":0}`))
		})
	})
})
