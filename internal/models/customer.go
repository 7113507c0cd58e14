package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Customer is an end user identified by their chat address. Records are
// created lazily on first checkout and enriched as the user supplies
// delivery details.
type Customer struct {
	gorm.Model

	CustomerID      string `json:"customer_id" gorm:"uniqueIndex"`
	Address         string `json:"address" gorm:"uniqueIndex"` // chat address (phone-derived)
	Name            string `json:"name"`
	DeliveryAddress string `json:"delivery_address"`
	Phone           string `json:"phone"`
}

// BeforeCreate hook to auto-generate CustomerID and normalize the address
func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.CustomerID == "" {
		c.CustomerID = fmt.Sprintf("CUS%d%03d", time.Now().Unix(), time.Now().Nanosecond()%1000)
	}

	c.Address = strings.TrimPrefix(c.Address, "whatsapp:")

	return nil
}
