package image_test

import (
	"context"
	"encoding/base64"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/studio/pkg/image"
	"github.com/papercomputeco/studio/pkg/logger"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

var _ = Describe("ParseCount", func() {
	DescribeTable("parses the leading integer and clamps it",
		func(raw string, want int) {
			Expect(image.ParseCount(raw, 4)).To(Equal(want))
		},
		Entry("absent", "", 1),
		Entry("one", "1", 1),
		Entry("three", "3", 3),
		Entry("max", "4", 4),
		Entry("above max", "10", 4),
		Entry("huge", "99999999999999999999999", 4),
		Entry("zero", "0", 1),
		Entry("negative", "-2", 1),
		Entry("non-numeric", "abc", 1),
		Entry("trailing garbage", "2abc", 2),
		Entry("leading spaces", "  3", 3),
		Entry("decimal", "2.9", 2),
	)

	It("saturates instead of overflowing under a very large limit", func() {
		Expect(image.ParseCount("99999999999999999999999", math.MaxInt)).To(Equal(math.MaxInt))
		Expect(image.ParseCount("9223372036854775806", math.MaxInt)).To(Equal(math.MaxInt - 1))
	})
})

var _ = Describe("DataURI", func() {
	It("uses the given content type", func() {
		Expect(image.DataURI("image/jpeg", []byte("abc"))).To(Equal("data:image/jpeg;base64,YWJj"))
	})

	It("sniffs a missing content type", func() {
		Expect(image.DataURI("", pngHeader)).To(HavePrefix("data:image/png;base64,"))
	})
})

var _ = Describe("ParseDataURI", func() {
	It("reverses DataURI", func() {
		contentType, data, err := image.ParseDataURI(image.DataURI("image/jpeg", []byte("abc")))
		Expect(err).NotTo(HaveOccurred())
		Expect(contentType).To(Equal("image/jpeg"))
		Expect(data).To(Equal([]byte("abc")))
	})

	It("sniffs an empty media type", func() {
		contentType, _, err := image.ParseDataURI("data:;base64,YWJj")
		Expect(err).NotTo(HaveOccurred())
		Expect(contentType).To(HavePrefix("text/plain"))
	})

	DescribeTable("rejects malformed URIs",
		func(uri string) {
			_, _, err := image.ParseDataURI(uri)
			Expect(err).To(HaveOccurred())
		},
		Entry("plain URL", "https://example.com/a.png"),
		Entry("missing payload", "data:image/png;base64"),
		Entry("not base64", "data:image/png,abc"),
		Entry("bad base64", "data:image/png;base64,!!!"),
	)
})

var _ = Describe("Generator", func() {
	var (
		upstream *httptest.Server
		handler  http.HandlerFunc
		gen      *image.Generator
		now      time.Time
	)

	BeforeEach(func() {
		handler = func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("jpegdata"))
		}
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
		now = time.UnixMilli(1_700_000_000_000)
		gen = image.New(image.Config{
			UpstreamURL: upstream.URL,
			Logger:      logger.Nop(),
			Now:         func() time.Time { return now },
		})
	})

	AfterEach(func() {
		upstream.Close()
	})

	It("builds the upstream address with an escaped prompt", func() {
		u := gen.URL("a cat & a dog?", 42)
		Expect(u).To(HavePrefix(upstream.URL + "/prompt/a%20cat%20&%20a%20dog%3F?"))
		Expect(u).To(ContainSubstring("width=1024"))
		Expect(u).To(ContainSubstring("height=1024"))
		Expect(u).To(ContainSubstring("seed=42"))
		Expect(u).To(ContainSubstring("model=flux"))
		Expect(u).To(ContainSubstring("nologo=true"))
	})

	It("fills in defaults", func() {
		g := image.New(image.Config{})
		Expect(g.Model()).To(Equal(image.DefaultModel))
		w, h := g.Size()
		Expect(w).To(Equal(image.DefaultSize))
		Expect(h).To(Equal(image.DefaultSize))
		Expect(g.MaxCount()).To(Equal(image.DefaultMaxCount))
	})

	It("rejects a blank prompt", func() {
		_, err := gen.Generate(context.Background(), "   ", 2)
		Expect(err).To(MatchError(image.ErrInvalidPrompt))
	})

	It("returns one data URI per requested image with distinct seeds", func() {
		var mu sync.Mutex
		seeds := map[string]bool{}
		handler = func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/prompt/sunset over the sea"))
			mu.Lock()
			seeds[r.URL.Query().Get("seed")] = true
			mu.Unlock()
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte("jpegdata"))
		}

		images, err := gen.Generate(context.Background(), "sunset over the sea", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(images).To(HaveLen(3))
		for _, img := range images {
			Expect(img).To(Equal("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpegdata"))))
		}
		Expect(seeds).To(HaveKey("1700000000000"))
		Expect(seeds).To(HaveKey("1700000000001"))
		Expect(seeds).To(HaveKey("1700000000002"))
	})

	It("clamps the batch size", func() {
		var calls atomic.Int32
		handler = func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			_, _ = w.Write(pngHeader)
		}

		images, err := gen.Generate(context.Background(), "x", 9)
		Expect(err).NotTo(HaveOccurred())
		Expect(images).To(HaveLen(4))
		Expect(calls.Load()).To(BeEquivalentTo(4))

		images, err = gen.Generate(context.Background(), "x", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(images).To(HaveLen(1))
	})

	It("issues the batch concurrently", func() {
		var inFlight, peak atomic.Int32
		handler = func(w http.ResponseWriter, _ *http.Request) {
			cur := inFlight.Add(1)
			for {
				p := peak.Load()
				if cur <= p || peak.CompareAndSwap(p, cur) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			inFlight.Add(-1)
			_, _ = w.Write(pngHeader)
		}

		_, err := gen.Generate(context.Background(), "x", 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(peak.Load()).To(BeNumerically(">", 1))
	})

	It("fails the whole batch when one image fails", func() {
		var calls atomic.Int32
		handler = func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) == 2 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			_, _ = w.Write(pngHeader)
		}

		images, err := gen.Generate(context.Background(), "x", 3)
		Expect(errors.Is(err, image.ErrGenerationFailed)).To(BeTrue())
		Expect(images).To(BeNil())
	})

	It("reports transport failures as generation failures", func() {
		upstream.Close()
		_, err := gen.Generate(context.Background(), "x", 1)
		Expect(errors.Is(err, image.ErrGenerationFailed)).To(BeTrue())
	})

	It("paces requests when a rate is configured", func() {
		gen = image.New(image.Config{
			UpstreamURL:       upstream.URL,
			RequestsPerSecond: 20,
			Logger:            logger.Nop(),
		})

		start := time.Now()
		images, err := gen.Generate(context.Background(), "x", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(images).To(HaveLen(3))
		Expect(time.Since(start)).To(BeNumerically(">=", 90*time.Millisecond))
	})

	It("stops waiting when the context is cancelled", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, err := gen.Generate(ctx, "x", 2)
		Expect(err).To(HaveOccurred())
		Expect(strings.Contains(err.Error(), "context deadline exceeded")).To(BeTrue())
	})
})
