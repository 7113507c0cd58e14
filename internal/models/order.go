package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order represents a confirmed purchase created at checkout. Item prices are
// snapshots taken when the item entered the cart; the total is never
// recomputed from live catalog prices.
type Order struct {
	gorm.Model

	OrderID    string `json:"order_id" gorm:"uniqueIndex"`
	MerchantID string `json:"merchant_id" gorm:"index"`
	CustomerID string `json:"customer_id" gorm:"index"`

	Items []OrderItem `json:"items" gorm:"constraint:OnDelete:CASCADE"`
	Total float64     `json:"total"`

	Status string `json:"status"` // "received", "confirmed", "delivered", "cancelled"

	// Delivery snapshot captured from the customer-data step
	CustomerName    string `json:"customer_name"`
	CustomerAddress string `json:"customer_address"`
	CustomerPhone   string `json:"customer_phone"`
	ChatAddress     string `json:"chat_address"` // where to reach the buyer on WhatsApp
}

// OrderItem is one cart line frozen into the order.
type OrderItem struct {
	gorm.Model

	OrderID      uint    `json:"order_id" gorm:"index"`
	SKU          string  `json:"sku"`
	ShortName    string  `json:"short_name"`
	Presentation string  `json:"presentation"` // empty for flat products
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"` // add-time price snapshot
	LineTotal    float64 `json:"line_total"`
}

// OrderStatus constants
const (
	OrderStatusReceived  = "received"
	OrderStatusConfirmed = "confirmed"
	OrderStatusDelivered = "delivered"
	OrderStatusCancelled = "cancelled"
)

// BeforeCreate generates the public OrderID
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.OrderID == "" {
		o.OrderID = fmt.Sprintf("ORD-%s", strings.ToUpper(uuid.NewString()[:8]))
	}
	if o.Status == "" {
		o.Status = OrderStatusReceived
	}
	return nil
}
