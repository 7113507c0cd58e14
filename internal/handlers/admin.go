package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/vendibot/vendibot-backend/internal/storage"
)

// AdminHandler handles admin operations
type AdminHandler struct {
	store storage.Store
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(store storage.Store) *AdminHandler {
	return &AdminHandler{
		store: store,
	}
}

// GetPlatformOverview gets platform statistics
func (h *AdminHandler) GetPlatformOverview(c *fiber.Ctx) error {
	merchants, err := h.store.GetActiveMerchants()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch platform overview",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"overview": fiber.Map{
			"active_merchants": len(merchants),
			"platform_status":  "operational",
			"last_updated":     time.Now(),
		},
	})
}

// PurgeSession hard-deletes one conversation session. Conversation flow only
// ever resets sessions in place; this is the administrative escape hatch.
func (h *AdminHandler) PurgeSession(c *fiber.Ctx) error {
	address := c.Params("address")

	if err := h.store.DeleteSession(address); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Session not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to purge session",
		})
	}

	logrus.Infof("Session %s purged by admin", address)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Session purged successfully",
	})
}

// PurgeAllSessions hard-deletes every conversation session
func (h *AdminHandler) PurgeAllSessions(c *fiber.Ctx) error {
	if err := h.store.DeleteAllSessions(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to purge sessions",
		})
	}

	logrus.Warn("All sessions purged by admin")

	return c.JSON(fiber.Map{
		"success": true,
		"message": "All sessions purged successfully",
	})
}
