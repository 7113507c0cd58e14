package storage

import (
	"errors"
	"time"

	"github.com/vendibot/vendibot-backend/internal/models"
)

// ErrNotFound is returned by lookups that matched nothing. Callers that
// need to tell "no such row" apart from a real storage failure test with
// errors.Is.
var ErrNotFound = errors.New("not found")

var storeInstance Store

// SetStore sets the global store instance (call from main.go)
func SetStore(s Store) {
	storeInstance = s
}

// GetStore returns the global store instance
func GetStore() Store {
	return storeInstance
}

// Store defines the interface for storage operations
type Store interface {
	// Merchant operations
	CreateMerchant(reg *models.MerchantRegistration) (*models.Merchant, error)
	GetMerchant(merchantID string) (*models.Merchant, error)
	GetMerchantByName(name string) (*models.Merchant, error)
	GetMerchantByWhatsApp(address string) (*models.Merchant, error)
	GetActiveMerchants() ([]*models.Merchant, error)
	UpdateMerchant(merchant *models.Merchant) error

	// Product operations
	CreateProduct(product *models.Product) (*models.Product, error)
	GetProduct(merchantID, sku string) (*models.Product, error)
	GetProductsByMerchant(merchantID string) ([]*models.Product, error)
	GetProductsByCategory(merchantID, category string) ([]*models.Product, error)
	GetCategories(merchantID string) ([]string, error)
	UpdateProduct(product *models.Product) error

	// DecreaseStock atomically reads, decrements and clamps stock for a
	// product or one of its presentations. It returns the stock remaining
	// after the decrement and whether the requested quantity exceeded what
	// was available (the clamp case).
	DecreaseStock(merchantID, sku, presentation string, qty int) (remaining int, clamped bool, err error)

	// Customer operations
	GetCustomerByAddress(address string) (*models.Customer, error)
	FindOrCreateCustomer(address string) (*models.Customer, error)
	SaveCustomer(customer *models.Customer) (*models.Customer, error)

	// Order operations
	CreateOrder(order *models.Order) (*models.Order, error)
	GetOrder(orderID string) (*models.Order, error)
	GetOrdersByMerchant(merchantID string) ([]*models.Order, error)
	GetOrdersByCustomer(customerID string) ([]*models.Order, error)
	GetStaleOrders(status string, olderThan time.Duration) ([]*models.Order, error)
	UpdateOrderStatus(orderID, status string) error

	// Session operations
	FindOrCreateSession(userAddress, channelID string) (*models.Session, error)
	GetSession(userAddress string) (*models.Session, error)
	SaveSession(session *models.Session) error
	GetIdleSessions(idleFor time.Duration) ([]*models.Session, error)

	// Hard deletes, for administrative purges only. Conversation flow always
	// resets sessions in place.
	DeleteSession(userAddress string) error
	DeleteAllSessions() error
}
