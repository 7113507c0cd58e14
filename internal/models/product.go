package models

import (
	"strings"

	"gorm.io/gorm"
)

// Product represents a catalog item belonging to one merchant. A product
// either has a flat price/stock, or one-or-more named presentations each
// with independent price and stock, never both.
type Product struct {
	gorm.Model

	MerchantID string   `json:"merchant_id" gorm:"uniqueIndex:idx_products_merchant_sku"`
	SKU        string   `json:"sku" gorm:"uniqueIndex:idx_products_merchant_sku"`
	ShortName  string   `json:"short_name"`
	LongName   string   `json:"long_name"`
	Price      float64  `json:"price"`
	Stock      int      `json:"stock"`
	Category   string   `json:"category"`
	Photos     []string `json:"photos" gorm:"serializer:json"`

	Presentations []Presentation `json:"presentations" gorm:"constraint:OnDelete:CASCADE"`
}

// Presentation is a named product variant (e.g. a size) with its own price
// and stock. Rows are kept in insertion order (ascending ID).
type Presentation struct {
	gorm.Model

	ProductID uint    `json:"product_id" gorm:"uniqueIndex:idx_presentations_product_name"`
	Name      string  `json:"name" gorm:"uniqueIndex:idx_presentations_product_name"`
	Price     float64 `json:"price"`
	Stock     int     `json:"stock"`
}

// BeforeCreate normalizes the SKU so lookups can always compare upper-case.
func (p *Product) BeforeCreate(tx *gorm.DB) error {
	p.SKU = strings.ToUpper(strings.TrimSpace(p.SKU))
	return nil
}

// HasPresentations reports whether the product is sold in named variants.
// Flat price/stock are meaningless when this is true.
func (p *Product) HasPresentations() bool {
	return len(p.Presentations) > 0
}

// FindPresentation resolves a presentation by case-insensitive exact name.
func (p *Product) FindPresentation(name string) *Presentation {
	name = strings.TrimSpace(name)
	for i := range p.Presentations {
		if strings.EqualFold(p.Presentations[i].Name, name) {
			return &p.Presentations[i]
		}
	}
	return nil
}

// InStock reports whether anything can currently be ordered: flat stock for
// plain products, any presentation with stock for variant products.
func (p *Product) InStock() bool {
	if p.HasPresentations() {
		for i := range p.Presentations {
			if p.Presentations[i].Stock > 0 {
				return true
			}
		}
		return false
	}
	return p.Stock > 0
}

// DisplayName returns the name shown in menus.
func (p *Product) DisplayName() string {
	if p.ShortName != "" {
		return p.ShortName
	}
	return p.LongName
}
