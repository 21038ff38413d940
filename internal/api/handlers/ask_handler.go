package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/civic-agent/backend/internal/escalation"
	"github.com/civic-agent/backend/internal/llm"
	"github.com/civic-agent/backend/internal/metrics"
	"github.com/civic-agent/backend/internal/pipeline"
	"github.com/civic-agent/backend/internal/regression"
	"github.com/civic-agent/backend/pkg/logger"
)

type AskHandler struct {
	orchestrator *pipeline.Orchestrator
	queue        *escalation.Queue
	goldens      *regression.Goldens
	harness      *regression.Harness
}

func NewAskHandler(orchestrator *pipeline.Orchestrator, queue *escalation.Queue, goldens *regression.Goldens, harness *regression.Harness) *AskHandler {
	return &AskHandler{
		orchestrator: orchestrator,
		queue:        queue,
		goldens:      goldens,
		harness:      harness,
	}
}

func (h *AskHandler) HandleAsk(c *fiber.Ctx) error {
	question, _ := c.Locals("question").(string)
	if question == "" {
		var req struct {
			Question string `json:"question"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		question = req.Question
	}

	start := time.Now()
	response, err := h.orchestrator.Process(c.Context(), question)
	if err != nil {
		return h.handleProcessError(c, err)
	}

	recordExchangeMetrics(response, time.Since(start))

	return c.JSON(response)
}

func (h *AskHandler) handleProcessError(c *fiber.Ctx, err error) error {
	metrics.ExchangeTotal.WithLabelValues("error").Inc()

	if errors.Is(err, pipeline.ErrEmptyQuestion) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Question is required",
		})
	}

	if errors.Is(err, llm.ErrGenerationUnavailable) {
		logger.Error("Generation unavailable", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "The answering service is temporarily unavailable",
		})
	}

	logger.Error("Failed to process question", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to process question",
	})
}

// GetStats aggregates pipeline tallies with queue and golden set state.
func (h *AskHandler) GetStats(c *fiber.Ctx) error {
	stats := h.orchestrator.Stats()

	reviewCounts, err := h.queue.CountByStatus()
	if err != nil {
		logger.Warn("Failed to count review items", zap.Error(err))
	}

	goldenCounts, err := h.goldens.CountBySource()
	if err != nil {
		logger.Warn("Failed to count golden answers", zap.Error(err))
	}

	return c.JSON(fiber.Map{
		"exchanges":       stats,
		"review_queue":    reviewCounts,
		"golden_answers":  goldenCounts,
		"last_regression": h.harness.LastResult(),
	})
}

func recordExchangeMetrics(response *pipeline.Response, elapsed time.Duration) {
	metrics.ExchangeDuration.WithLabelValues(string(response.Profile)).Observe(elapsed.Seconds())

	status := "failed"
	if response.QualityPassed {
		status = "passed"
	}
	metrics.ExchangeTotal.WithLabelValues(status).Inc()

	for dimension, score := range response.Scores {
		metrics.VerdictScore.WithLabelValues(dimension).Observe(score)
	}

	metrics.ImprovementRounds.Observe(float64(response.ImprovementRounds))
	metrics.RetrievalResultsCount.Observe(float64(len(response.Sources)))

	if response.Escalated {
		metrics.EscalationsTotal.WithLabelValues(string(response.EscalationReason)).Inc()
	}
}
