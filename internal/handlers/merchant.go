package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/vendibot/vendibot-backend/internal/models"
	"github.com/vendibot/vendibot-backend/internal/storage"
)

// MerchantHandler handles merchant onboarding and management
type MerchantHandler struct {
	store storage.Store
}

// NewMerchantHandler creates a new merchant handler
func NewMerchantHandler(store storage.Store) *MerchantHandler {
	return &MerchantHandler{
		store: store,
	}
}

// Register onboards a new merchant
func (h *MerchantHandler) Register(c *fiber.Ctx) error {
	var req models.MerchantRegistration

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Code == "" || req.Name == "" || req.WhatsApp == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Code, name and whatsapp are required",
		})
	}

	merchant, err := h.store.CreateMerchant(&req)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to register merchant",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Merchant registered successfully",
		"merchant": merchant,
	})
}

// List returns all active merchants
func (h *MerchantHandler) List(c *fiber.Ctx) error {
	merchants, err := h.store.GetActiveMerchants()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list merchants",
		})
	}

	return c.JSON(fiber.Map{
		"merchants": merchants,
		"count":     len(merchants),
	})
}

// Get retrieves a merchant by its public ID
func (h *MerchantHandler) Get(c *fiber.Ctx) error {
	merchant, err := h.store.GetMerchant(c.Params("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Merchant not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get merchant",
		})
	}

	return c.JSON(fiber.Map{
		"merchant": merchant,
	})
}

// Update changes a merchant's configurable fields
func (h *MerchantHandler) Update(c *fiber.Ctx) error {
	merchant, err := h.store.GetMerchant(c.Params("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Merchant not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get merchant",
		})
	}

	var req struct {
		Name     *string `json:"name"`
		WhatsApp *string `json:"whatsapp"`
		Greeting *string `json:"greeting"`
		Closing  *string `json:"closing"`
		Active   *bool   `json:"active"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Name != nil {
		merchant.Name = *req.Name
	}
	if req.WhatsApp != nil {
		merchant.WhatsApp = *req.WhatsApp
	}
	if req.Greeting != nil {
		merchant.Greeting = *req.Greeting
	}
	if req.Closing != nil {
		merchant.Closing = *req.Closing
	}
	if req.Active != nil {
		merchant.Active = *req.Active
	}

	if err := h.store.UpdateMerchant(merchant); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update merchant",
		})
	}

	return c.JSON(fiber.Map{
		"message":  "Merchant updated successfully",
		"merchant": merchant,
	})
}
