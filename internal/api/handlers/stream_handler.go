package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/civic-agent/backend/internal/pipeline"
	"github.com/civic-agent/backend/pkg/logger"
)

type StreamHandler struct {
	orchestrator *pipeline.Orchestrator
}

func NewStreamHandler(orchestrator *pipeline.Orchestrator) *StreamHandler {
	return &StreamHandler{orchestrator: orchestrator}
}

// HandleConnection serves one websocket session. Each "ask" message runs
// the pipeline with stage events forwarded as they happen, followed by a
// final "complete" message carrying the assembled response.
func (h *StreamHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type     string `json:"type"`
			Question string `json:"question"`
		}

		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "ask" {
			continue
		}

		if err := h.streamExchange(c, msg.Question); err != nil {
			logger.Error("Failed to stream exchange", zap.Error(err))
			h.sendError(c, "Failed to process question")
		}
	}
}

func (h *StreamHandler) streamExchange(c *websocket.Conn, question string) error {
	ctx := context.Background()

	events := make(chan pipeline.Event, pipeline.EventBufferSize)
	done := make(chan struct{})

	// Forward stage events while the pipeline runs.
	go func() {
		defer close(done)
		for event := range events {
			err := c.WriteJSON(map[string]interface{}{
				"type":    "stage",
				"stage":   event.Stage,
				"message": event.Message,
			})
			if err != nil {
				logger.Debug("Failed to forward stage event", zap.Error(err))
				return
			}
		}
	}()

	response, err := h.orchestrator.ProcessStreaming(ctx, question, events)
	close(events)
	<-done

	if err != nil {
		return err
	}

	return c.WriteJSON(map[string]interface{}{
		"type":     "complete",
		"response": response,
	})
}

func (h *StreamHandler) sendError(c *websocket.Conn, errorMsg string) {
	err := c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
	if err != nil {
		logger.Debug("Failed to send error message", zap.Error(err))
	}
}
