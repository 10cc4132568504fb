package server

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/llm"
)

// MessagesResponse is the body of GET /api/history/chat.
type MessagesResponse struct {
	Count    int                   `json:"count"`
	Messages []history.ChatMessage `json:"messages"`
}

// ImagesResponse is the body of GET /api/history/images.
type ImagesResponse struct {
	Count  int                      `json:"count"`
	Images []history.GeneratedImage `json:"images"`
}

// handleListMessages returns the chat log oldest first.
func (s *Server) handleListMessages(c *fiber.Ctx) error {
	messages, err := s.config.History.Messages(c.Context(), queryLimit(c))
	if err != nil {
		s.logger.Error("failed to list chat history", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to list chat history"})
	}
	if messages == nil {
		messages = []history.ChatMessage{}
	}
	return c.JSON(MessagesResponse{Count: len(messages), Messages: messages})
}

// handleAppendMessage appends one message to the chat log.
func (s *Server) handleAppendMessage(c *fiber.Ctx) error {
	var m history.ChatMessage
	if err := json.Unmarshal(c.Body(), &m); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid message"})
	}
	if err := m.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	if err := s.config.History.AppendMessage(c.Context(), m); err != nil {
		return s.writeError(c, "failed to append chat message", err)
	}
	return c.Status(fiber.StatusCreated).JSON(m)
}

// handleClearMessages empties the chat log.
func (s *Server) handleClearMessages(c *fiber.Ctx) error {
	if err := s.config.History.ClearMessages(c.Context()); err != nil {
		return s.writeError(c, "failed to clear chat history", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleListImages returns the image log newest first.
func (s *Server) handleListImages(c *fiber.Ctx) error {
	images, err := s.config.History.Images(c.Context(), queryLimit(c))
	if err != nil {
		s.logger.Error("failed to list image history", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: "failed to list image history"})
	}
	if images == nil {
		images = []history.GeneratedImage{}
	}
	return c.JSON(ImagesResponse{Count: len(images), Images: images})
}

// handleAddImage records one generated image.
func (s *Server) handleAddImage(c *fiber.Ctx) error {
	var img history.GeneratedImage
	if err := json.Unmarshal(c.Body(), &img); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "invalid image"})
	}
	if err := img.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	if err := s.config.History.AddImage(c.Context(), img); err != nil {
		return s.writeError(c, "failed to add image", err)
	}
	return c.Status(fiber.StatusCreated).JSON(img)
}

// handleDeleteImage removes one image by id.
func (s *Server) handleDeleteImage(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: "id parameter required"})
	}

	if err := s.config.History.DeleteImage(c.Context(), id); err != nil {
		return s.writeError(c, "failed to delete image", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleClearImages empties the image log.
func (s *Server) handleClearImages(c *fiber.Ctx) error {
	if err := s.config.History.ClearImages(c.Context()); err != nil {
		return s.writeError(c, "failed to clear image history", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// writeError maps history errors to a status. Unexpected errors are logged
// and answered with msg.
func (s *Server) writeError(c *fiber.Ctx, msg string, err error) error {
	var notFound history.NotFoundError
	switch {
	case errors.As(err, &notFound):
		return c.Status(fiber.StatusNotFound).JSON(llm.ErrorResponse{Error: notFound.Error()})
	case errors.Is(err, history.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(llm.ErrorResponse{Error: err.Error()})
	}

	s.logger.Error(msg, "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(llm.ErrorResponse{Error: msg})
}

func queryLimit(c *fiber.Ctx) int {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return 0
	}
	return limit
}
