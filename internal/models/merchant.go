package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Merchant represents a company selling through the bot. Each merchant has
// its own catalog, greetings and a WhatsApp contact number that receives
// order notifications and vendor-chat messages.
type Merchant struct {
	gorm.Model

	MerchantID string `json:"merchant_id" gorm:"uniqueIndex"`
	Code       string `json:"code" gorm:"uniqueIndex"` // short mnemonic code, e.g. "ACME"
	Name       string `json:"name" gorm:"uniqueIndex"`
	WhatsApp   string `json:"whatsapp" gorm:"index"` // merchant's own WhatsApp number
	Greeting   string `json:"greeting"`              // optional configured welcome text
	Closing    string `json:"closing"`               // optional configured checkout text
	Active     bool   `json:"active" gorm:"default:true"`
}

// BeforeCreate hook to auto-generate MerchantID and normalize data
func (m *Merchant) BeforeCreate(tx *gorm.DB) error {
	if m.MerchantID == "" {
		m.MerchantID = fmt.Sprintf("MCH%d%03d", time.Now().Unix(), time.Now().Nanosecond()%1000)
	}

	// Normalize code (remove spaces, convert to uppercase)
	m.Code = strings.ToUpper(strings.ReplaceAll(m.Code, " ", ""))

	// Normalize WhatsApp number (strip transport prefix, keep the + form)
	m.WhatsApp = strings.TrimPrefix(m.WhatsApp, "whatsapp:")

	return nil
}

// MerchantRegistration is used when onboarding a merchant through the admin API
type MerchantRegistration struct {
	Code     string `json:"code" validate:"required"`
	Name     string `json:"name" validate:"required"`
	WhatsApp string `json:"whatsapp" validate:"required"`
	Greeting string `json:"greeting"`
	Closing  string `json:"closing"`
}

// MatchesName reports whether the given free-text input identifies this
// merchant (case-insensitive exact match on name or code).
func (m *Merchant) MatchesName(input string) bool {
	input = strings.TrimSpace(input)
	return strings.EqualFold(m.Name, input) || strings.EqualFold(m.Code, input)
}
