// Package client talks to a running studio server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/llm"
	"github.com/papercomputeco/studio/pkg/utils"
)

// DefaultTimeout bounds non-streaming calls. Streaming chat requests are
// bounded by their context only, since replies can take minutes.
const DefaultTimeout = 5 * time.Minute

// StatusError is a non-success response from the server.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Status)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

// Client is a studio server client.
type Client struct {
	target string
	http   *http.Client
}

// New returns a Client for the server at target. A nil httpClient uses one
// without a timeout; per-call deadlines come from the context.
func New(target string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		target: strings.TrimRight(target, "/"),
		http:   httpClient,
	}
}

// Target returns the server base URL.
func (c *Client) Target() string {
	return c.target
}

// Ping checks that the server is up.
func (c *Client) Ping(ctx context.Context) error {
	var out string
	if err := c.call(ctx, http.MethodGet, "/ping", nil, nil, http.StatusOK, &out); err != nil {
		return err
	}
	if out != "pong" {
		return fmt.Errorf("unexpected ping reply %q", out)
	}
	return nil
}

// StreamChat posts req to /api/chat and returns the open event stream.
// The caller closes it.
func (c *Client) StreamChat(ctx context.Context, req *llm.ChatRequest) (io.ReadCloser, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/chat", nil, req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp.Body, nil
}

// GenerateImages asks the server for n images of prompt and returns their
// data URIs.
func (c *Client) GenerateImages(ctx context.Context, prompt string, n int) ([]string, error) {
	query := url.Values{}
	if n > 0 {
		query.Set("n", strconv.Itoa(n))
	}

	var out llm.ImageResponse
	if err := c.call(ctx, http.MethodPost, "/api/image", query, llm.ImageRequest{Prompt: prompt}, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Images, nil
}

// Models lists the chat models the server offers.
func (c *Client) Models(ctx context.Context) ([]llm.Model, error) {
	var out struct {
		Models []llm.Model `json:"models"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/models", nil, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// ChatHistory returns the stored transcript oldest first. A positive limit
// returns only the most recent messages.
func (c *Client) ChatHistory(ctx context.Context, limit int) ([]history.ChatMessage, error) {
	var out struct {
		Messages []history.ChatMessage `json:"messages"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/history/chat", limitQuery(limit), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// AppendChat stores one message at the end of the chat log.
func (c *Client) AppendChat(ctx context.Context, m history.ChatMessage) error {
	return c.call(ctx, http.MethodPost, "/api/history/chat", nil, m, http.StatusCreated, nil)
}

// ClearChat empties the chat log.
func (c *Client) ClearChat(ctx context.Context) error {
	return c.call(ctx, http.MethodDelete, "/api/history/chat", nil, nil, http.StatusNoContent, nil)
}

// ImageHistory returns stored images newest first.
func (c *Client) ImageHistory(ctx context.Context, limit int) ([]history.GeneratedImage, error) {
	var out struct {
		Images []history.GeneratedImage `json:"images"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/history/images", limitQuery(limit), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Images, nil
}

// AddImage records img as the newest image.
func (c *Client) AddImage(ctx context.Context, img history.GeneratedImage) error {
	return c.call(ctx, http.MethodPost, "/api/history/images", nil, img, http.StatusCreated, nil)
}

// DeleteImage removes one image by id.
func (c *Client) DeleteImage(ctx context.Context, id string) error {
	return c.call(ctx, http.MethodDelete, "/api/history/images/"+url.PathEscape(id), nil, nil, http.StatusNoContent, nil)
}

// ClearImages empties the image log.
func (c *Client) ClearImages(ctx context.Context) error {
	return c.call(ctx, http.MethodDelete, "/api/history/images", nil, nil, http.StatusNoContent, nil)
}

func (c *Client) call(ctx context.Context, method, path string, query url.Values, body any, want int, out any) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	resp, err := c.do(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, error) {
	target := c.target + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", utils.UserAgent())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request to %s: %w", c.target, err)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var body llm.ErrorResponse
	if err := json.Unmarshal(raw, &body); err == nil && body.Error != "" {
		return &StatusError{Status: resp.StatusCode, Message: body.Error}
	}
	return &StatusError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}

func limitQuery(limit int) url.Values {
	if limit <= 0 {
		return nil
	}
	return url.Values{"limit": []string{strconv.Itoa(limit)}}
}
