package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/civic-agent/backend/internal/configstore"
	"github.com/civic-agent/backend/pkg/logger"
)

type ConfigHandler struct {
	store *configstore.Store
}

func NewConfigHandler(store *configstore.Store) *ConfigHandler {
	return &ConfigHandler{store: store}
}

// GetConfig returns every key with its currently resolved value.
func (h *ConfigHandler) GetConfig(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"config": h.store.Snapshot(),
	})
}

func (h *ConfigHandler) UpdateConfig(c *fiber.Ctx) error {
	key := c.Params("key")

	var req struct {
		Value *float64 `json:"value"`
	}
	if err := c.BodyParser(&req); err != nil || req.Value == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A numeric value is required",
		})
	}

	if err := h.store.Set(key, *req.Value); err != nil {
		return h.handleConfigError(c, key, err)
	}

	logger.Info("Config key updated",
		zap.String("key", key),
		zap.Float64("value", *req.Value),
	)

	value, _ := h.store.Get(key)
	return c.JSON(fiber.Map{
		"key":   key,
		"value": value,
	})
}

func (h *ConfigHandler) ResetConfig(c *fiber.Ctx) error {
	key := c.Params("key")

	if err := h.store.Reset(key); err != nil {
		return h.handleConfigError(c, key, err)
	}

	value, _ := h.store.Get(key)
	return c.JSON(fiber.Map{
		"key":   key,
		"value": value,
	})
}

func (h *ConfigHandler) ResetAllConfig(c *fiber.Ctx) error {
	h.store.ResetAll()
	return c.JSON(fiber.Map{
		"config": h.store.Snapshot(),
	})
}

// GetAudit returns the in-memory audit trail, newest last.
func (h *ConfigHandler) GetAudit(c *fiber.Ctx) error {
	entries := h.store.AuditLog()

	if limitParam := c.Query("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be a non-negative integer",
			})
		}
		if limit < len(entries) {
			entries = entries[len(entries)-limit:]
		}
	}

	return c.JSON(fiber.Map{
		"audit": entries,
	})
}

func (h *ConfigHandler) handleConfigError(c *fiber.Ctx, key string, err error) error {
	if errors.Is(err, configstore.ErrUnknownKey) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Unknown config key: " + key,
		})
	}
	if errors.Is(err, configstore.ErrInvalidConfigValue) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	logger.Error("Config operation failed", zap.String("key", key), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Config operation failed",
	})
}
