package sqlite_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/history/historytest"
	"github.com/papercomputeco/studio/pkg/history/sqlite"
)

var _ = Describe("Driver", func() {
	historytest.DriverBehaviors(func() history.Driver {
		d, err := sqlite.NewDriver(context.Background(), ":memory:")
		Expect(err).NotTo(HaveOccurred())
		return d
	})

	Describe("NewDriver", func() {
		It("creates a driver with file database", func() {
			dbPath := filepath.Join(GinkgoT().TempDir(), "history.db")

			d, err := sqlite.NewDriver(context.Background(), dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer d.Close()

			_, err = os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps history across reopen", func() {
			ctx := context.Background()
			dbPath := filepath.Join(GinkgoT().TempDir(), "history.db")

			d, err := sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.AppendMessage(ctx, historytest.Message(1, "user", "persisted"))).To(Succeed())
			Expect(d.AddImage(ctx, historytest.Image(1, "cat"))).To(Succeed())
			Expect(d.Close()).To(Succeed())

			d, err = sqlite.NewDriver(ctx, dbPath)
			Expect(err).NotTo(HaveOccurred())
			defer d.Close()

			msgs, err := d.Messages(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(Equal([]history.ChatMessage{historytest.Message(1, "user", "persisted")}))

			imgs, err := d.Images(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(imgs).To(HaveLen(1))
		})
	})
})
