package handlers

import (
	"errors"
	"sort"

	"github.com/gofiber/fiber/v2"

	"github.com/vendibot/vendibot-backend/internal/models"
	"github.com/vendibot/vendibot-backend/internal/storage"
)

// AnalyticsHandler aggregates sales figures for merchant tooling
type AnalyticsHandler struct {
	store storage.Store
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(store storage.Store) *AnalyticsHandler {
	return &AnalyticsHandler{
		store: store,
	}
}

// GetMerchantStats computes a merchant's sales summary from its orders
func (h *AnalyticsHandler) GetMerchantStats(c *fiber.Ctx) error {
	merchantID := c.Params("id")

	if _, err := h.store.GetMerchant(merchantID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Merchant not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get merchant",
		})
	}

	orders, err := h.store.GetOrdersByMerchant(merchantID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute stats",
		})
	}

	return c.JSON(fiber.Map{
		"stats": buildMerchantStats(merchantID, orders),
	})
}

// buildMerchantStats folds orders into totals and a per-product ranking.
// Cancelled orders count toward the order total but not toward revenue.
func buildMerchantStats(merchantID string, orders []*models.Order) *models.MerchantStats {
	stats := &models.MerchantStats{
		MerchantID:     merchantID,
		TotalOrders:    len(orders),
		OrdersByStatus: make(map[string]int),
	}

	sales := make(map[string]*models.ProductSales)
	for _, order := range orders {
		stats.OrdersByStatus[order.Status]++
		if order.Status == models.OrderStatusCancelled {
			continue
		}
		stats.Revenue += order.Total

		for _, item := range order.Items {
			line, ok := sales[item.SKU]
			if !ok {
				line = &models.ProductSales{SKU: item.SKU, ShortName: item.ShortName}
				sales[item.SKU] = line
			}
			line.Units += item.Quantity
			line.Amount += item.LineTotal
		}
	}

	for _, line := range sales {
		stats.TopProducts = append(stats.TopProducts, *line)
	}
	sort.Slice(stats.TopProducts, func(i, j int) bool {
		if stats.TopProducts[i].Units != stats.TopProducts[j].Units {
			return stats.TopProducts[i].Units > stats.TopProducts[j].Units
		}
		return stats.TopProducts[i].SKU < stats.TopProducts[j].SKU
	})
	if len(stats.TopProducts) > 5 {
		stats.TopProducts = stats.TopProducts[:5]
	}

	return stats
}
