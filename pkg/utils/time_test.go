package utils

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("millisecond timestamps", func() {
	It("round-trips through FromMillis", func() {
		now := NowMillis()
		Expect(FromMillis(now).UnixMilli()).To(Equal(now))
		Expect(time.Since(FromMillis(now))).To(BeNumerically("<", time.Minute))
	})
})
