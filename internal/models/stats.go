package models

// MerchantStats summarizes a merchant's sales. Figures are aggregated from
// orders on demand, nothing here is persisted.
type MerchantStats struct {
	MerchantID     string         `json:"merchant_id"`
	TotalOrders    int            `json:"total_orders"`
	OrdersByStatus map[string]int `json:"orders_by_status"`
	Revenue        float64        `json:"revenue"`
	TopProducts    []ProductSales `json:"top_products"`
}

// ProductSales is one line of a merchant's sales ranking.
type ProductSales struct {
	SKU       string  `json:"sku"`
	ShortName string  `json:"short_name"`
	Units     int     `json:"units"`
	Amount    float64 `json:"amount"`
}
