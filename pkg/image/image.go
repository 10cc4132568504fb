// Package image generates batches of images from a text prompt through the
// Pollinations image endpoint and returns them as data URIs.
package image

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/papercomputeco/studio/pkg/utils"
)

const (
	DefaultUpstreamURL = "https://image.pollinations.ai"
	DefaultModel       = "flux"
	DefaultSize        = 1024
	DefaultMaxCount    = 4

	// maxImageBytes bounds a single downloaded image.
	maxImageBytes = 32 << 20
)

var (
	ErrInvalidPrompt    = errors.New("Prompt must be a non-empty string")
	ErrGenerationFailed = errors.New("Failed to generate image with Pollinations.ai")
	ErrNoImage          = errors.New("No image generated")
)

// Config configures a Generator.
type Config struct {
	UpstreamURL string
	Model       string
	Width       int
	Height      int

	// MaxCount is the upper bound of a batch.
	MaxCount int

	// RequestsPerSecond paces upstream requests. Zero disables pacing.
	RequestsPerSecond float64

	HTTPClient *http.Client
	Logger     *slog.Logger

	// Now supplies the seed base. Defaults to time.Now.
	Now func() time.Time
}

// Generator fans a batch out to concurrent upstream requests.
type Generator struct {
	cfg     Config
	limiter *rate.Limiter
}

// New creates a Generator from cfg, filling in defaults.
func New(cfg Config) *Generator {
	if cfg.UpstreamURL == "" {
		cfg.UpstreamURL = DefaultUpstreamURL
	}
	cfg.UpstreamURL = strings.TrimRight(cfg.UpstreamURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultSize
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultSize
	}
	if cfg.MaxCount <= 0 {
		cfg.MaxCount = DefaultMaxCount
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	g := &Generator{cfg: cfg}
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return g
}

// MaxCount returns the largest batch the generator produces.
func (g *Generator) MaxCount() int {
	return g.cfg.MaxCount
}

// Model returns the upstream image model.
func (g *Generator) Model() string {
	return g.cfg.Model
}

// Size returns the requested image width and height.
func (g *Generator) Size() (width, height int) {
	return g.cfg.Width, g.cfg.Height
}

// Generate produces n images for prompt, n clamped to [1, MaxCount]. Requests
// run concurrently; if any of them fails the whole batch fails and the
// remaining requests are cancelled.
func (g *Generator) Generate(ctx context.Context, prompt string, n int) ([]string, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, ErrInvalidPrompt
	}
	n = clamp(n, g.cfg.MaxCount)

	start := time.Now()
	base := g.cfg.Now().UnixMilli()
	images := make([]string, n)

	eg, egCtx := errgroup.WithContext(ctx)
	for i := range n {
		eg.Go(func() error {
			if g.limiter != nil {
				if err := g.limiter.Wait(egCtx); err != nil {
					return err
				}
			}
			img, err := g.fetch(egCtx, g.URL(prompt, base+int64(i)))
			if err != nil {
				return err
			}
			images[i] = img
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		g.cfg.Logger.Error("image batch failed", "count", n, "error", err)
		return nil, err
	}

	g.cfg.Logger.Info("image batch generated",
		"count", n,
		"model", g.cfg.Model,
		"duration", time.Since(start),
	)
	return images, nil
}

// URL returns the upstream address for one image of prompt with seed.
func (g *Generator) URL(prompt string, seed int64) string {
	q := url.Values{}
	q.Set("width", strconv.Itoa(g.cfg.Width))
	q.Set("height", strconv.Itoa(g.cfg.Height))
	q.Set("seed", strconv.FormatInt(seed, 10))
	q.Set("model", g.cfg.Model)
	q.Set("nologo", "true")
	return g.cfg.UpstreamURL + "/prompt/" + url.PathEscape(prompt) + "?" + q.Encode()
}

func (g *Generator) fetch(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", fmt.Errorf("creating image request: %w", err)
	}
	req.Header.Set("User-Agent", utils.UserAgent())

	resp, err := g.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		g.cfg.Logger.Warn("image upstream rejected request", "status", resp.StatusCode)
		return "", ErrGenerationFailed
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationFailed, err)
	}

	return DataURI(resp.Header.Get("Content-Type"), data), nil
}

// DataURI encodes data as a base64 data URI. An empty content type is sniffed
// from the data.
func DataURI(contentType string, data []byte) string {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURI decodes a base64 data URI produced by DataURI.
func ParseDataURI(uri string) (contentType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, errors.New("not a data URI")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, errors.New("data URI has no payload")
	}
	contentType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, errors.New("data URI is not base64 encoded")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decoding data URI: %w", err)
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	return contentType, data, nil
}

// ParseCount parses the batch size query value. The leading integer of raw is
// used; an absent, non-numeric or zero value means 1. The result is clamped
// to [1, max].
func ParseCount(raw string, max int) int {
	s := strings.TrimLeft(raw, " \t\n\r")
	neg := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		neg = s[0] == '-'
		s = s[1:]
	}

	n, digits := 0, 0
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		digits++
		d := int(c - '0')
		if n > (math.MaxInt-d)/10 {
			n = math.MaxInt
			continue
		}
		n = n*10 + d
	}
	if digits == 0 || n == 0 || neg {
		return 1
	}
	return clamp(n, max)
}

func clamp(n, max int) int {
	if max < 1 {
		max = 1
	}
	switch {
	case n < 1:
		return 1
	case n > max:
		return max
	}
	return n
}
