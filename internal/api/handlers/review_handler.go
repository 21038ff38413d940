package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/civic-agent/backend/internal/escalation"
	"github.com/civic-agent/backend/internal/metrics"
	"github.com/civic-agent/backend/internal/regression"
	"github.com/civic-agent/backend/internal/storage/models"
	"github.com/civic-agent/backend/pkg/logger"
)

type ReviewHandler struct {
	queue   *escalation.Queue
	goldens *regression.Goldens
}

func NewReviewHandler(queue *escalation.Queue, goldens *regression.Goldens) *ReviewHandler {
	return &ReviewHandler{queue: queue, goldens: goldens}
}

func (h *ReviewHandler) ListPending(c *fiber.Ctx) error {
	items, err := h.queue.ListPending()
	if err != nil {
		logger.Error("Failed to list pending reviews", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list pending reviews",
		})
	}

	metrics.ReviewQueueDepth.Set(float64(len(items)))

	return c.JSON(fiber.Map{
		"items": items,
	})
}

func (h *ReviewHandler) GetReview(c *fiber.Ctx) error {
	item, err := h.queue.Get(c.Params("id"))
	if err != nil {
		return h.handleReviewError(c, err)
	}
	return c.JSON(item)
}

type reviewActionRequest struct {
	Reviewer        string `json:"reviewer"`
	Notes           string `json:"notes"`
	CorrectedAnswer string `json:"corrected_answer"`
}

func (h *ReviewHandler) Approve(c *fiber.Ctx) error {
	return h.resolve(c, models.ReviewStatusApproved)
}

func (h *ReviewHandler) Reject(c *fiber.Ctx) error {
	return h.resolve(c, models.ReviewStatusRejected)
}

func (h *ReviewHandler) Correct(c *fiber.Ctx) error {
	return h.resolve(c, models.ReviewStatusCorrected)
}

func (h *ReviewHandler) resolve(c *fiber.Ctx, status models.ReviewStatus) error {
	var req reviewActionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Reviewer == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Reviewer is required",
		})
	}

	id := c.Params("id")

	var item *models.ReviewItem
	var err error
	switch status {
	case models.ReviewStatusApproved:
		item, err = h.queue.Approve(id, req.Reviewer, req.Notes)
	case models.ReviewStatusRejected:
		item, err = h.queue.Reject(id, req.Reviewer, req.Notes)
	case models.ReviewStatusCorrected:
		item, err = h.queue.Correct(id, req.Reviewer, req.Notes, req.CorrectedAnswer)
	}
	if err != nil {
		return h.handleReviewError(c, err)
	}

	logger.Info("Review item resolved",
		zap.String("review_id", id),
		zap.String("status", string(status)),
		zap.String("reviewer", req.Reviewer),
	)

	return c.JSON(item)
}

// Promote turns a resolved review item into a golden answer for the
// regression suite.
func (h *ReviewHandler) Promote(c *fiber.Ctx) error {
	item, err := h.queue.Get(c.Params("id"))
	if err != nil {
		return h.handleReviewError(c, err)
	}

	golden, err := h.goldens.PromoteFromReview(item)
	if err != nil {
		if errors.Is(err, regression.ErrNotPromotable) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		logger.Error("Failed to promote review item", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to promote review item",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(golden)
}

func (h *ReviewHandler) handleReviewError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, escalation.ErrReviewNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Review item not found",
		})
	case errors.Is(err, escalation.ErrAlreadyReviewed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Review item is already resolved",
		})
	case errors.Is(err, escalation.ErrEmptyCorrection):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Corrected answer must not be empty",
		})
	}

	logger.Error("Review operation failed", zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Review operation failed",
	})
}
