package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Conversation states. A session is always in exactly one of these; unknown
// persisted values are treated as corruption and force a reset rather than a
// crash.
const (
	StateSelectingCompany      = "SELECTING_COMPANY"
	StateSelectingCategory     = "SELECTING_CATEGORY"
	StateBrowsingProducts      = "BROWSING_PRODUCTS"
	StateAwaitingProductAction = "AWAITING_PRODUCT_ACTION"
	StateAwaitingQuantity      = "AWAITING_QUANTITY_FOR_PRODUCT"
	StateAwaitingCustomerData  = "AWAITING_CUSTOMER_DATA"
	StateChatting              = "CHATTING"
)

// CompanyContext identifies the merchant a session is currently shopping at.
type CompanyContext struct {
	MerchantID string `json:"merchant_id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
}

// CartItem is one line of the session cart. UnitPrice is captured when the
// item is added and deliberately not refreshed afterwards; only stock is
// re-validated on later mutations.
type CartItem struct {
	SKU          string  `json:"sku"`
	ShortName    string  `json:"short_name"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	Presentation string  `json:"presentation,omitempty"`
}

// PresentationOption is the snapshot of one product variant shown in a
// detail view.
type PresentationOption struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
}

// PendingProduct is the product snapshot captured when showing a detail
// view, consumed by the following action/quantity turns.
type PendingProduct struct {
	SKU           string               `json:"sku"`
	ShortName     string               `json:"short_name"`
	Price         float64              `json:"price"`
	Stock         int                  `json:"stock"`
	Presentations []PresentationOption `json:"presentations,omitempty"`
}

// HasPresentations reports whether the snapshot carries named variants.
func (p *PendingProduct) HasPresentations() bool {
	return len(p.Presentations) > 0
}

// FindPresentation resolves a snapshot variant by case-insensitive name.
func (p *PendingProduct) FindPresentation(name string) *PresentationOption {
	name = strings.TrimSpace(name)
	for i := range p.Presentations {
		if strings.EqualFold(p.Presentations[i].Name, name) {
			return &p.Presentations[i]
		}
	}
	return nil
}

// PendingOrder carries the sku/quantity pair while a presentation choice is
// outstanding.
type PendingOrder struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

// Session stores the durable per-user conversation state. One row per chat
// address, created lazily on first contact, mutated once per turn by the
// conversation engine and saved at turn end.
type Session struct {
	gorm.Model

	UserAddress string `json:"user_address" gorm:"uniqueIndex"` // chat address, never changes
	ChannelID   string `json:"channel_id"`                      // bot number serving this user

	State string `json:"state"`

	Company             *CompanyContext   `json:"company" gorm:"serializer:json"`
	AvailableCategories []string          `json:"available_categories" gorm:"serializer:json"`
	NumberedOptions     map[string]string `json:"numbered_options" gorm:"serializer:json"`
	PendingProduct      *PendingProduct   `json:"pending_product" gorm:"serializer:json"`
	PendingOrder        *PendingOrder     `json:"pending_order" gorm:"serializer:json"`
	Cart                []CartItem        `json:"cart" gorm:"serializer:json"`

	PreviousState string    `json:"previous_state"` // restored when vendor chat ends
	LastActivity  time.Time `json:"last_activity"`
}

// BeforeCreate defaults a fresh session to the initial state.
func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.State == "" {
		s.State = StateSelectingCompany
	}
	if s.LastActivity.IsZero() {
		s.LastActivity = time.Now()
	}
	return nil
}

// ValidState reports whether the persisted state value is one of the
// declared conversation states.
func (s *Session) ValidState() bool {
	switch s.State {
	case StateSelectingCompany, StateSelectingCategory, StateBrowsingProducts,
		StateAwaitingProductAction, StateAwaitingQuantity,
		StateAwaitingCustomerData, StateChatting:
		return true
	}
	return false
}

// Reset returns the session to the initial state: company context, cart,
// categories, numbered options and pending fields are all cleared. The row
// itself survives (reset-in-place, never deletion).
func (s *Session) Reset() {
	s.State = StateSelectingCompany
	s.Company = nil
	s.AvailableCategories = nil
	s.NumberedOptions = nil
	s.PendingProduct = nil
	s.PendingOrder = nil
	s.Cart = nil
	s.PreviousState = ""
}

// ClearPending drops the product/order snapshots without touching the cart.
func (s *Session) ClearPending() {
	s.PendingProduct = nil
	s.PendingOrder = nil
}

// BindOptions replaces the numbered-option map with the given bindings.
// Every menu render goes through here so stale entries from a previous menu
// can never leak semantics into the next one.
func (s *Session) BindOptions(opts map[string]string) {
	s.NumberedOptions = opts
}

// UpsertCartLine merges the item into the cart: an existing line with the
// same (SKU, presentation) pair has its quantity incremented, otherwise the
// item is appended. Returns the resulting line quantity.
func (s *Session) UpsertCartLine(item CartItem) int {
	for i := range s.Cart {
		if s.Cart[i].SKU == item.SKU && s.Cart[i].Presentation == item.Presentation {
			s.Cart[i].Quantity += item.Quantity
			return s.Cart[i].Quantity
		}
	}
	s.Cart = append(s.Cart, item)
	return item.Quantity
}

// CartQuantity returns the quantity already in the cart for the given
// (SKU, presentation) pair, zero when absent.
func (s *Session) CartQuantity(sku, presentation string) int {
	for i := range s.Cart {
		if s.Cart[i].SKU == sku && s.Cart[i].Presentation == presentation {
			return s.Cart[i].Quantity
		}
	}
	return 0
}

// CartTotal sums quantity × add-time unit price over all lines.
func (s *Session) CartTotal() float64 {
	total := 0.0
	for i := range s.Cart {
		total += float64(s.Cart[i].Quantity) * s.Cart[i].UnitPrice
	}
	return total
}

// HasCompany reports whether a merchant context is active.
func (s *Session) HasCompany() bool {
	return s.Company != nil
}

// Pristine reports whether the session holds nothing worth preserving: the
// initial state with no company and an empty cart. Inactivity handling
// skips pristine sessions instead of nagging them.
func (s *Session) Pristine() bool {
	return s.State == StateSelectingCompany && s.Company == nil && len(s.Cart) == 0
}
