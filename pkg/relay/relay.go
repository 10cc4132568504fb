// Package relay forwards a chat conversation to the upstream completion API
// as a streaming request and re-emits the text deltas as normalized sse
// records.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/papercomputeco/studio/pkg/llm"
	"github.com/papercomputeco/studio/pkg/sse"
	"github.com/papercomputeco/studio/pkg/utils"
)

const (
	// DefaultUpstreamURL is the OpenAI-compatible Groq endpoint.
	DefaultUpstreamURL = "https://api.groq.com/openai/v1"

	// DefaultModel is used when neither the request nor the config names one.
	DefaultModel = "llama-3.3-70b-versatile"

	// DefaultTimeout bounds a single upstream exchange.
	DefaultTimeout = 300 * time.Second

	completionsPath = "/chat/completions"
)

// Params are the generation parameters sent with every upstream request.
type Params struct {
	Model       string
	Temperature float32
	MaxTokens   int
	TopP        float32
}

// DefaultParams returns the stock generation parameters.
func DefaultParams() Params {
	return Params{
		Model:       DefaultModel,
		Temperature: 0.7,
		MaxTokens:   1024,
		TopP:        1,
	}
}

// Config configures a Relay.
type Config struct {
	// UpstreamURL is the API base, without the /chat/completions suffix.
	UpstreamURL string

	// APIKey is the bearer credential. Empty means every request fails with
	// ErrConfigurationMissing.
	APIKey string

	// Timeout is the upstream deadline. Zero means DefaultTimeout.
	Timeout time.Duration

	Params     Params
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Relay runs one upstream stream per inbound chat request.
type Relay struct {
	upstreamURL string
	apiKey      string
	timeout     time.Duration
	client      *http.Client
	logger      *slog.Logger
	params      atomic.Pointer[Params]
}

// New creates a Relay from cfg, filling in defaults.
func New(cfg Config) *Relay {
	if cfg.UpstreamURL == "" {
		cfg.UpstreamURL = DefaultUpstreamURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		// The deadline is applied per request through the context so that
		// it covers reading the streamed body as well.
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Params.Model == "" {
		cfg.Params.Model = DefaultModel
	}

	r := &Relay{
		upstreamURL: strings.TrimRight(cfg.UpstreamURL, "/"),
		apiKey:      cfg.APIKey,
		timeout:     cfg.Timeout,
		client:      cfg.HTTPClient,
		logger:      cfg.Logger,
	}
	params := cfg.Params
	r.params.Store(&params)
	return r
}

// Params returns the generation parameters currently in effect.
func (r *Relay) Params() Params {
	return *r.params.Load()
}

// UpdateParams swaps the generation parameters. Streams already running keep
// the parameters they started with.
func (r *Relay) UpdateParams(p Params) {
	if p.Model == "" {
		p.Model = DefaultModel
	}
	r.params.Store(&p)
	r.logger.Info("chat parameters updated",
		"model", p.Model,
		"temperature", p.Temperature,
		"max_tokens", p.MaxTokens,
		"top_p", p.TopP,
	)
}

// Validate checks that the relay is configured and that req is well formed.
// The credential is checked first so that a misconfigured server reports
// ErrConfigurationMissing regardless of the request.
func (r *Relay) Validate(req *llm.ChatRequest) error {
	if r.apiKey == "" {
		return ErrConfigurationMissing
	}
	if req == nil || len(req.Messages) == 0 {
		return fmt.Errorf("%w: messages must be a non-empty array", ErrInvalidRequest)
	}
	for i, m := range req.Messages {
		if !llm.ValidRole(m.Role) {
			return fmt.Errorf("%w: message %d has unsupported role %q", ErrInvalidRequest, i, m.Role)
		}
	}
	return nil
}

// Result summarizes one relayed stream.
type Result struct {
	Model    string
	Content  string
	Deltas   int
	Dropped  int
	Done     bool
	Duration time.Duration
	Err      error
}

// Stream sends req upstream and writes every extracted delta to w, in order,
// one record per delta. Failures after this point are written to w as a
// single error record. Stream returns once the upstream is exhausted, the
// [DONE] sentinel is seen, ctx is cancelled, or w stops accepting writes.
//
// Callers must run Validate first.
func (r *Relay) Stream(ctx context.Context, req *llm.ChatRequest, w *sse.Writer) Result {
	start := time.Now()
	params := r.Params()
	if req.Model != "" {
		params.Model = req.Model
	}

	res := r.stream(ctx, params, req.Messages, w)
	res.Model = params.Model
	res.Duration = time.Since(start)

	attrs := []any{
		"model", res.Model,
		"deltas", res.Deltas,
		"dropped", res.Dropped,
		"done", res.Done,
		"duration", res.Duration,
	}
	if res.Err != nil {
		r.logger.Error("chat stream failed", append(attrs, "error", res.Err)...)
	} else {
		r.logger.Info("chat stream completed", attrs...)
	}
	return res
}

func (r *Relay) stream(ctx context.Context, params Params, messages []llm.Message, w *sse.Writer) (res Result) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.logger.Debug("forwarding chat to upstream",
		"model", params.Model,
		"message_count", len(messages),
	)

	httpResp, err := r.send(ctx, params, messages)
	if err != nil {
		res.Err = fmt.Errorf("%w: %w", ErrTransportFailure, err)
		_ = w.Error(err.Error())
		return res
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		upErr := &UpstreamError{
			Status:  httpResp.StatusCode,
			Message: upstreamMessage(httpResp.Body),
		}
		res.Err = upErr
		_ = w.Error(upErr.Message)
		return res
	}

	if httpResp.Body == nil || httpResp.Body == http.NoBody {
		res.Err = ErrUpstreamUnreadable
		_ = w.Error(ErrUpstreamUnreadable.Error())
		return res
	}

	var content strings.Builder
	defer func() { res.Content = content.String() }()

	reader := sse.NewReader(httpResp.Body)
	for {
		ev, err := reader.Next()
		if err != nil {
			res.Err = fmt.Errorf("%w: %w", ErrTransportFailure, err)
			_ = w.Error(err.Error())
			return res
		}
		if ev == nil {
			return res
		}

		if ev.IsDone() {
			res.Done = true
			if err := w.Done(); err != nil {
				res.Err = fmt.Errorf("writing done record: %w", err)
			}
			return res
		}

		delta, err := extractDelta(ev.Data)
		if err != nil {
			res.Dropped++
			r.logger.Debug("dropping upstream record", "error", err)
			continue
		}
		if delta == "" {
			continue
		}

		// A failed write means the client went away. Nothing more can be
		// delivered, so stop pulling from the upstream.
		if err := w.Content(delta); err != nil {
			res.Err = fmt.Errorf("writing content record: %w", err)
			return res
		}
		res.Deltas++
		content.WriteString(delta)
	}
}

func (r *Relay) send(ctx context.Context, params Params, messages []llm.Message) (*http.Response, error) {
	body, err := json.Marshal(upstreamRequest(params, messages))
	if err != nil {
		return nil, fmt.Errorf("encoding upstream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.upstreamURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating upstream request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("User-Agent", utils.UserAgent())

	return r.client.Do(httpReq)
}

func upstreamRequest(params Params, messages []llm.Message) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return openai.ChatCompletionRequest{
		Model:       params.Model,
		Messages:    msgs,
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
		TopP:        params.TopP,
		Stream:      true,
	}
}

// extractDelta returns choices[0].delta.content of a streamed chunk. A chunk
// without choices yields an empty delta.
func extractDelta(data string) (string, error) {
	var chunk openai.ChatCompletionStreamResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	return chunk.Choices[0].Delta.Content, nil
}

// upstreamMessage extracts error.message from a rejection body, falling back
// to a generic message.
func upstreamMessage(body io.Reader) string {
	if body == nil {
		return genericUpstreamMessage
	}
	raw, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil {
		return genericUpstreamMessage
	}

	var errResp openai.ErrorResponse
	if err := json.Unmarshal(raw, &errResp); err != nil || errResp.Error == nil || errResp.Error.Message == "" {
		return genericUpstreamMessage
	}
	return errResp.Error.Message
}

// IsClientError reports whether err should be answered with 400.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidRequest)
}
