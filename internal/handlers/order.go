package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/vendibot/vendibot-backend/internal/models"
	"github.com/vendibot/vendibot-backend/internal/storage"
)

// OrderHandler exposes orders to merchant tooling
type OrderHandler struct {
	store storage.Store
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(store storage.Store) *OrderHandler {
	return &OrderHandler{
		store: store,
	}
}

// Get retrieves one order by its public ID
func (h *OrderHandler) Get(c *fiber.Ctx) error {
	order, err := h.store.GetOrder(c.Params("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Order not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get order",
		})
	}

	return c.JSON(fiber.Map{
		"order": order,
	})
}

// ListByMerchant returns a merchant's orders, newest first
func (h *OrderHandler) ListByMerchant(c *fiber.Ctx) error {
	orders, err := h.store.GetOrdersByMerchant(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list orders",
		})
	}

	return c.JSON(fiber.Map{
		"orders": orders,
		"count":  len(orders),
	})
}

var validOrderStatuses = map[string]bool{
	models.OrderStatusReceived:  true,
	models.OrderStatusConfirmed: true,
	models.OrderStatusDelivered: true,
	models.OrderStatusCancelled: true,
}

// UpdateStatus moves an order through its lifecycle
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if !validOrderStatuses[req.Status] {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid status",
		})
	}

	if err := h.store.UpdateOrderStatus(c.Params("id"), req.Status); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Order not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update order",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Order status updated",
	})
}
