package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/civic-agent/backend/internal/metrics"
	"github.com/civic-agent/backend/internal/regression"
	"github.com/civic-agent/backend/pkg/logger"
)

type RegressionHandler struct {
	harness *regression.Harness
	goldens *regression.Goldens
}

func NewRegressionHandler(harness *regression.Harness, goldens *regression.Goldens) *RegressionHandler {
	return &RegressionHandler{harness: harness, goldens: goldens}
}

// RunRegression replays the active golden set synchronously. This is an
// operator action, not a citizen-facing endpoint, so blocking is fine.
func (h *RegressionHandler) RunRegression(c *fiber.Ctx) error {
	result, err := h.harness.Run(c.Context())
	if err != nil {
		logger.Error("Regression run failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Regression run failed",
		})
	}

	metrics.RegressionPassRate.Set(result.PassRate)

	return c.JSON(result)
}

func (h *RegressionHandler) LastResult(c *fiber.Ctx) error {
	result := h.harness.LastResult()
	if result == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No regression run has completed yet",
		})
	}
	return c.JSON(result)
}

func (h *RegressionHandler) ListGoldens(c *fiber.Ctx) error {
	activeOnly := c.Query("active", "true") != "false"

	goldens, err := h.goldens.List(activeOnly)
	if err != nil {
		logger.Error("Failed to list golden answers", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list golden answers",
		})
	}

	return c.JSON(fiber.Map{
		"goldens": goldens,
	})
}

func (h *RegressionHandler) AddGolden(c *fiber.Ctx) error {
	var req struct {
		Question        string `json:"question"`
		ReferenceAnswer string `json:"reference_answer"`
		Category        string `json:"category"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	golden, err := h.goldens.AddManual(req.Question, req.ReferenceAnswer, req.Category)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(golden)
}

func (h *RegressionHandler) DeactivateGolden(c *fiber.Ctx) error {
	err := h.goldens.Deactivate(c.Params("id"))
	if err != nil {
		if errors.Is(err, regression.ErrGoldenNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Golden answer not found",
			})
		}
		logger.Error("Failed to deactivate golden answer", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to deactivate golden answer",
		})
	}

	return c.SendStatus(fiber.StatusNoContent)
}
