// Package historytest holds the ginkgo specs every history.Driver must pass.
package historytest

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studio/pkg/history"
)

// Message returns a chat message with a deterministic id and timestamp.
func Message(i int, role, content string) history.ChatMessage {
	return history.ChatMessage{
		ID:        fmt.Sprintf("msg-%03d", i),
		Role:      role,
		Content:   content,
		Timestamp: 1_700_000_000_000 + int64(i),
	}
}

// Image returns an image entry with a deterministic id and timestamp.
func Image(i int, prompt string) history.GeneratedImage {
	return history.GeneratedImage{
		ID:        fmt.Sprintf("img-%03d", i),
		Prompt:    prompt,
		URL:       "data:image/png;base64,AAAA",
		Timestamp: 1_700_000_000_000 + int64(i),
	}
}

// DriverBehaviors registers the shared driver specs in the enclosing
// container. newDriver is called before each test and the driver is closed
// after it.
func DriverBehaviors(newDriver func() history.Driver) {
	var (
		d   history.Driver
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		d = newDriver()
	})

	AfterEach(func() {
		if d != nil {
			Expect(d.Close()).To(Succeed())
		}
	})

	Describe("chat log", func() {
		It("returns nothing when empty", func() {
			msgs, err := d.Messages(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(BeEmpty())
		})

		It("round-trips messages exactly, oldest first", func() {
			in := []history.ChatMessage{
				Message(1, "user", "hello"),
				Message(2, "assistant", "```go\nfmt.Println(\"hi\")\n```\nünïcödé"),
				Message(3, "user", ""),
			}
			for _, m := range in {
				Expect(d.AppendMessage(ctx, m)).To(Succeed())
			}

			msgs, err := d.Messages(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(Equal(in))
		})

		It("returns only the most recent messages when limited", func() {
			for i := 1; i <= 5; i++ {
				Expect(d.AppendMessage(ctx, Message(i, "user", "m"))).To(Succeed())
			}

			msgs, err := d.Messages(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(2))
			Expect(msgs[0].ID).To(Equal("msg-004"))
			Expect(msgs[1].ID).To(Equal("msg-005"))
		})

		It("rejects duplicate ids", func() {
			Expect(d.AppendMessage(ctx, Message(1, "user", "a"))).To(Succeed())
			err := d.AppendMessage(ctx, Message(1, "user", "b"))
			Expect(errors.Is(err, history.ErrDuplicate)).To(BeTrue())
		})

		It("prunes the oldest messages", func() {
			for i := 1; i <= 5; i++ {
				Expect(d.AppendMessage(ctx, Message(i, "user", "m"))).To(Succeed())
			}

			n, err := d.PruneMessages(ctx, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))

			msgs, err := d.Messages(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(3))
			Expect(msgs[0].ID).To(Equal("msg-003"))

			n, err = d.PruneMessages(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})

		It("clears the log", func() {
			Expect(d.AppendMessage(ctx, Message(1, "user", "a"))).To(Succeed())
			Expect(d.ClearMessages(ctx)).To(Succeed())

			msgs, err := d.Messages(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(BeEmpty())
		})
	})

	Describe("image log", func() {
		It("returns images newest first", func() {
			for i := 1; i <= 3; i++ {
				Expect(d.AddImage(ctx, Image(i, "p"))).To(Succeed())
			}

			imgs, err := d.Images(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(imgs).To(Equal([]history.GeneratedImage{Image(3, "p"), Image(2, "p"), Image(1, "p")}))

			imgs, err = d.Images(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(imgs).To(HaveLen(2))
			Expect(imgs[0].ID).To(Equal("img-003"))
		})

		It("deletes a single image", func() {
			Expect(d.AddImage(ctx, Image(1, "a"))).To(Succeed())
			Expect(d.AddImage(ctx, Image(2, "b"))).To(Succeed())

			Expect(d.DeleteImage(ctx, "img-001")).To(Succeed())

			imgs, err := d.Images(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(imgs).To(Equal([]history.GeneratedImage{Image(2, "b")}))
		})

		It("returns NotFoundError for unknown ids", func() {
			err := d.DeleteImage(ctx, "nope")
			var nf history.NotFoundError
			Expect(errors.As(err, &nf)).To(BeTrue())
			Expect(nf.ID).To(Equal("nope"))
		})

		It("rejects duplicate ids", func() {
			Expect(d.AddImage(ctx, Image(1, "a"))).To(Succeed())
			Expect(errors.Is(d.AddImage(ctx, Image(1, "a")), history.ErrDuplicate)).To(BeTrue())
		})

		It("prunes the oldest images", func() {
			for i := 1; i <= 4; i++ {
				Expect(d.AddImage(ctx, Image(i, "p"))).To(Succeed())
			}

			n, err := d.PruneImages(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))

			imgs, err := d.Images(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(imgs).To(Equal([]history.GeneratedImage{Image(4, "p"), Image(3, "p")}))
		})

		It("clears the log", func() {
			Expect(d.AddImage(ctx, Image(1, "a"))).To(Succeed())
			Expect(d.ClearImages(ctx)).To(Succeed())

			imgs, err := d.Images(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(imgs).To(BeEmpty())
		})
	})
}
