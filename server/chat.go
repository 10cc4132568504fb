package server

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/studio/pkg/eventstream"
	"github.com/papercomputeco/studio/pkg/llm"
	"github.com/papercomputeco/studio/pkg/relay"
	"github.com/papercomputeco/studio/pkg/sse"
	"github.com/papercomputeco/studio/server/worker"
)

// handleChat validates the conversation and relays the upstream completion as
// a stream of normalized records. Configuration and validation failures are
// answered with a JSON error; once the stream has started every failure is
// delivered in-band.
func (s *Server) handleChat(c *fiber.Ctx) error {
	var req llm.ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		s.logger.Debug("rejecting chat request", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "request body must be a JSON object with a messages array"})
	}

	if err := s.config.Relay.Validate(&req); err != nil {
		status := fiber.StatusInternalServerError
		if relay.IsClientError(err) {
			status = fiber.StatusBadRequest
		}
		s.logger.Warn("rejecting chat request", "status", status, "error", err)
		return c.Status(status).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	// pw.Write blocks until fasthttp has consumed the previous record, so each
	// record reaches the socket before the next upstream read. When the client
	// goes away the pipe is closed and the relay stops at its next write.
	pr, pw := io.Pipe()
	go s.relayToPipeWriter(&req, pw)

	c.Context().Response.SetBodyStream(pr, -1)
	return nil
}

func (s *Server) relayToPipeWriter(req *llm.ChatRequest, pw *io.PipeWriter) {
	defer pw.Close()

	// fasthttp recycles the request context once the handler returns, so the
	// upstream exchange runs on its own context. The relay applies the
	// upstream deadline.
	startedAt := time.Now()
	res := s.config.Relay.Stream(context.Background(), req, sse.NewWriter(pw))

	chat := eventstream.ChatCompleted{
		Model:         res.Model,
		MessageCount:  len(req.Messages),
		Deltas:        res.Deltas,
		Dropped:       res.Dropped,
		ContentLength: len(res.Content),
		Done:          res.Done,
		StartedAt:     startedAt.UTC(),
		DurationMs:    res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		chat.Error = res.Err.Error()
	}

	s.enqueue(worker.Job{Event: eventstream.NewChatCompletedEvent(chatRoute, chat)})
}
