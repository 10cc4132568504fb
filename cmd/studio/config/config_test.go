package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/studio/cmd/studio/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
		out     *bytes.Buffer
	)

	run := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "studio-config-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// Create a local .studio dir so the manager picks it up
		err = os.MkdirAll(filepath.Join(tmpDir, ".studio"), 0o755)
		Expect(err).NotTo(HaveOccurred())

		err = os.Chdir(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		err := os.Chdir(origDir)
		Expect(err).NotTo(HaveOccurred())
		os.RemoveAll(tmpDir)
	})

	Describe("set subcommand", func() {
		It("sets a config value successfully", func() {
			Expect(run("set", "chat.model", "llama-3.1-8b-instant")).To(Succeed())

			data, err := os.ReadFile(filepath.Join(tmpDir, ".studio", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("llama-3.1-8b-instant"))
		})

		It("rejects unknown keys", func() {
			err := run("set", "invalid_key", "value")
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unknown config key"))
		})

		It("requires exactly two arguments", func() {
			Expect(run("set", "chat.model")).NotTo(Succeed())
		})

		It("rejects zero arguments", func() {
			Expect(run("set")).NotTo(Succeed())
		})

		It("rejects invalid int values", func() {
			Expect(run("set", "image.max_count", "not-a-number")).NotTo(Succeed())
		})

		It("rejects invalid float values", func() {
			Expect(run("set", "chat.temperature", "warm")).NotTo(Succeed())
		})
	})

	Describe("get subcommand", func() {
		It("gets a previously set value", func() {
			Expect(run("set", "chat.model", "llama-3.1-8b-instant")).To(Succeed())

			out.Reset()
			Expect(run("get", "chat.model")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("llama-3.1-8b-instant"))
		})

		It("runs without error for a key left at its default", func() {
			Expect(run("get", "events.kafka_brokers")).To(Succeed())
		})

		It("prints several keys and bare values with --raw", func() {
			Expect(run("set", "chat.max_tokens", "512")).To(Succeed())

			out.Reset()
			Expect(run("get", "--raw", "chat.max_tokens", "image.model")).To(Succeed())
			Expect(out.String()).To(Equal("512\nflux\n"))
		})

		It("rejects unknown keys", func() {
			Expect(run("get", "invalid_key")).NotTo(Succeed())
			Expect(run("get", "chat.model", "invalid_key")).NotTo(Succeed())
		})

		It("requires a key", func() {
			Expect(run("get")).NotTo(Succeed())
		})
	})

	Describe("list subcommand", func() {
		It("runs without error when no config exists", func() {
			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("chat.model"))
		})

		It("lists every key once config has values", func() {
			Expect(run("set", "image.max_count", "2")).To(Succeed())

			out.Reset()
			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("Using config file"))
			Expect(out.String()).To(MatchRegexp(`image\.max_count\s+= "2"`))
			Expect(out.String()).To(ContainSubstring("ui.theme"))
		})

		It("groups keys by section and marks defaults", func() {
			Expect(run("list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("[chat]"))
			Expect(out.String()).To(MatchRegexp(`chat\.model\s+= "llama-3\.3-70b-versatile"\s+.*\(default\)`))
		})

		It("shows only changed keys with --changed", func() {
			Expect(run("set", "chat.max_tokens", "256")).To(Succeed())

			out.Reset()
			Expect(run("list", "--changed")).To(Succeed())
			Expect(out.String()).To(MatchRegexp(`chat\.max_tokens\s+= "256"`))
			Expect(out.String()).NotTo(ContainSubstring("chat.model"))
			Expect(out.String()).NotTo(ContainSubstring("[image]"))
		})

		It("rejects any arguments", func() {
			Expect(run("list", "extra")).NotTo(Succeed())
		})
	})
})
