package studiocmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	studiocmder "github.com/papercomputeco/studio/cmd/studio"
)

var _ = Describe("NewStudioCmd", func() {
	It("wires every subcommand", func() {
		cmd := studiocmder.NewStudioCmd()
		names := []string{}
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("serve", "chat", "image", "history", "config", "auth", "status", "init", "version"))
	})

	It("declares the global flags", func() {
		cmd := studiocmder.NewStudioCmd()
		Expect(cmd.PersistentFlags().Lookup("debug").Shorthand).To(Equal("d"))
		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})
})
