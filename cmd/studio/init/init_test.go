package initcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/studio/cmd/studio/init"
	"github.com/papercomputeco/studio/pkg/config"
)

var _ = Describe("Init command", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(os.Chdir, origDir)

		out = &bytes.Buffer{}
	})

	run := func() error {
		cmd := initcmder.NewInitCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{})
		return cmd.Execute()
	}

	It("creates .studio with a default config", func() {
		Expect(run()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Initialized .studio directory"))

		data, err := os.ReadFile(filepath.Join(tmpDir, ".studio", "config.toml"))
		Expect(err).NotTo(HaveOccurred())

		cfg, err := config.ParseConfigTOML(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(config.NewDefaultConfig()))
	})

	It("leaves an existing directory alone", func() {
		Expect(os.Mkdir(filepath.Join(tmpDir, ".studio"), 0o755)).To(Succeed())

		Expect(run()).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Already initialized"))

		_, err := os.Stat(filepath.Join(tmpDir, ".studio", "config.toml"))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("rejects arguments", func() {
		cmd := initcmder.NewInitCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs([]string{"extra"})
		Expect(cmd.Execute()).NotTo(Succeed())
	})
})
