package server

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/studio/pkg/eventstream"
	"github.com/papercomputeco/studio/pkg/image"
	"github.com/papercomputeco/studio/pkg/llm"
	"github.com/papercomputeco/studio/pkg/utils"
	"github.com/papercomputeco/studio/server/worker"
)

// maxEventPromptLength bounds the prompt copied into image events.
const maxEventPromptLength = 200

// handleImage generates a batch of ?n= images for the prompt. The batch is
// all-or-nothing: one failed image fails the request.
func (s *Server) handleImage(c *fiber.Ctx) error {
	var req llm.ImageRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: image.ErrInvalidPrompt.Error()})
	}

	gen := s.config.Images
	n := image.ParseCount(c.Query("n"), gen.MaxCount())

	startedAt := time.Now()
	images, err := gen.Generate(c.Context(), req.Prompt, n)
	switch {
	case errors.Is(err, image.ErrInvalidPrompt):
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	case errors.Is(err, image.ErrGenerationFailed):
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: image.ErrGenerationFailed.Error()})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: err.Error()})
	case len(images) == 0:
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: image.ErrNoImage.Error()})
	}

	width, height := gen.Size()
	s.enqueue(worker.Job{Event: eventstream.NewImageGeneratedEvent(imageRoute, eventstream.ImageGenerated{
		Model:      gen.Model(),
		Prompt:     utils.Truncate(req.Prompt, maxEventPromptLength),
		Count:      len(images),
		Width:      width,
		Height:     height,
		StartedAt:  startedAt.UTC(),
		DurationMs: time.Since(startedAt).Milliseconds(),
	})})

	return c.JSON(llm.ImageResponse{
		Success: true,
		Images:  images,
		Count:   len(images),
	})
}
