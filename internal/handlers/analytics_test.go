package handlers

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendibot/vendibot-backend/internal/models"
	"github.com/vendibot/vendibot-backend/internal/storage"
)

func analyticsApp(t *testing.T) (*fiber.App, *storage.MemoryStore, *models.Merchant) {
	t.Helper()

	store := storage.NewMemoryStore()
	app := fiber.New()
	h := NewAnalyticsHandler(store)
	app.Get("/api/merchants/:id/stats", h.GetMerchantStats)
	return app, store, seedMerchant(t, store)
}

func TestAnalyticsHandler_MerchantNotFound(t *testing.T) {
	app, _, _ := analyticsApp(t)

	status, body := request(t, app, http.MethodGet, "/api/merchants/MCH-NOPE/stats", nil)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Merchant not found", body["error"])
}

func TestAnalyticsHandler_EmptyMerchant(t *testing.T) {
	app, _, merchant := analyticsApp(t)

	status, body := request(t, app, http.MethodGet, "/api/merchants/"+merchant.MerchantID+"/stats", nil)

	require.Equal(t, http.StatusOK, status)
	stats, ok := body["stats"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 0, stats["total_orders"])
	assert.EqualValues(t, 0, stats["revenue"])
}

func TestAnalyticsHandler_AggregatesOrders(t *testing.T) {
	app, store, merchant := analyticsApp(t)

	for _, order := range []*models.Order{
		{
			MerchantID: merchant.MerchantID, CustomerID: "CUS1", Total: 100,
			Items: []models.OrderItem{{SKU: "CAF1", ShortName: "Café", Quantity: 2, UnitPrice: 50, LineTotal: 100}},
		},
		{
			MerchantID: merchant.MerchantID, CustomerID: "CUS2", Total: 90,
			Status:     models.OrderStatusDelivered,
			Items:      []models.OrderItem{{SKU: "TOR1", ShortName: "Tortillas", Quantity: 1, UnitPrice: 90, LineTotal: 90}},
		},
		{
			MerchantID: merchant.MerchantID, CustomerID: "CUS3", Total: 999,
			Status:     models.OrderStatusCancelled,
			Items:      []models.OrderItem{{SKU: "CAF1", ShortName: "Café", Quantity: 20, UnitPrice: 50, LineTotal: 999}},
		},
	} {
		_, err := store.CreateOrder(order)
		require.NoError(t, err)
	}

	status, body := request(t, app, http.MethodGet, "/api/merchants/"+merchant.MerchantID+"/stats", nil)

	require.Equal(t, http.StatusOK, status)
	stats, ok := body["stats"].(map[string]any)
	require.True(t, ok)

	assert.EqualValues(t, 3, stats["total_orders"])
	assert.EqualValues(t, 190, stats["revenue"], "cancelled orders carry no revenue")

	byStatus, ok := stats["orders_by_status"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, byStatus[models.OrderStatusReceived])
	assert.EqualValues(t, 1, byStatus[models.OrderStatusDelivered])
	assert.EqualValues(t, 1, byStatus[models.OrderStatusCancelled])

	top, ok := stats["top_products"].([]any)
	require.True(t, ok)
	require.Len(t, top, 2)
	first, ok := top[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "CAF1", first["sku"], "cancelled units do not count toward the ranking")
	assert.EqualValues(t, 2, first["units"])
}

func TestBuildMerchantStats_RankingAndCap(t *testing.T) {
	var orders []*models.Order
	for _, line := range []struct {
		sku   string
		units int
	}{
		{"SKU1", 1}, {"SKU2", 1}, {"SKU3", 9},
		{"SKU4", 2}, {"SKU5", 4}, {"SKU6", 3},
	} {
		orders = append(orders, &models.Order{
			Status: models.OrderStatusDelivered,
			Items: []models.OrderItem{
				{SKU: line.sku, ShortName: line.sku, Quantity: line.units, LineTotal: float64(line.units)},
			},
		})
	}

	stats := buildMerchantStats("MCH1", orders)

	require.Len(t, stats.TopProducts, 5)
	assert.Equal(t, "SKU3", stats.TopProducts[0].SKU)
	assert.Equal(t, "SKU5", stats.TopProducts[1].SKU)
	assert.Equal(t, "SKU4", stats.TopProducts[3].SKU)
	// The SKU1/SKU2 tie breaks on SKU order, so the cap cuts SKU2
	assert.Equal(t, "SKU1", stats.TopProducts[4].SKU)
}
