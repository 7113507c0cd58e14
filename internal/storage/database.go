package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vendibot/vendibot-backend/internal/models"
)

// DatabaseStore persists everything through GORM/PostgreSQL
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a store backed by the given GORM handle
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return err
}

// Merchant operations

func (s *DatabaseStore) CreateMerchant(reg *models.MerchantRegistration) (*models.Merchant, error) {
	merchant := &models.Merchant{
		Code:     reg.Code,
		Name:     reg.Name,
		WhatsApp: reg.WhatsApp,
		Greeting: reg.Greeting,
		Closing:  reg.Closing,
		Active:   true,
	}
	if err := s.db.Create(merchant).Error; err != nil {
		return nil, err
	}
	return merchant, nil
}

func (s *DatabaseStore) GetMerchant(merchantID string) (*models.Merchant, error) {
	var merchant models.Merchant
	if err := s.db.Where("merchant_id = ?", merchantID).First(&merchant).Error; err != nil {
		return nil, notFound(err, "merchant")
	}
	return &merchant, nil
}

func (s *DatabaseStore) GetMerchantByName(name string) (*models.Merchant, error) {
	name = strings.TrimSpace(name)
	var merchant models.Merchant
	err := s.db.Where("LOWER(name) = LOWER(?) OR LOWER(code) = LOWER(?)", name, name).
		First(&merchant).Error
	if err != nil {
		return nil, notFound(err, "merchant")
	}
	return &merchant, nil
}

func (s *DatabaseStore) GetMerchantByWhatsApp(address string) (*models.Merchant, error) {
	address = strings.TrimPrefix(address, "whatsapp:")
	var merchant models.Merchant
	if err := s.db.Where("whats_app = ?", address).First(&merchant).Error; err != nil {
		return nil, notFound(err, "merchant")
	}
	return &merchant, nil
}

func (s *DatabaseStore) GetActiveMerchants() ([]*models.Merchant, error) {
	var merchants []*models.Merchant
	if err := s.db.Where("active = ?", true).Order("name").Find(&merchants).Error; err != nil {
		return nil, err
	}
	return merchants, nil
}

func (s *DatabaseStore) UpdateMerchant(merchant *models.Merchant) error {
	return s.db.Save(merchant).Error
}

// Product operations

func (s *DatabaseStore) CreateProduct(product *models.Product) (*models.Product, error) {
	if err := s.db.Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

func (s *DatabaseStore) GetProduct(merchantID, sku string) (*models.Product, error) {
	var product models.Product
	err := s.db.Preload("Presentations", func(db *gorm.DB) *gorm.DB {
		return db.Order("presentations.id")
	}).Where("merchant_id = ? AND sku = ?", merchantID, strings.ToUpper(strings.TrimSpace(sku))).
		First(&product).Error
	if err != nil {
		return nil, notFound(err, "product")
	}
	return &product, nil
}

func (s *DatabaseStore) GetProductsByMerchant(merchantID string) ([]*models.Product, error) {
	var products []*models.Product
	err := s.db.Preload("Presentations", func(db *gorm.DB) *gorm.DB {
		return db.Order("presentations.id")
	}).Where("merchant_id = ?", merchantID).Order("sku").Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *DatabaseStore) GetProductsByCategory(merchantID, category string) ([]*models.Product, error) {
	var products []*models.Product
	err := s.db.Preload("Presentations", func(db *gorm.DB) *gorm.DB {
		return db.Order("presentations.id")
	}).Where("merchant_id = ? AND LOWER(category) = LOWER(?)", merchantID, category).
		Order("sku").Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (s *DatabaseStore) GetCategories(merchantID string) ([]string, error) {
	var categories []string
	err := s.db.Model(&models.Product{}).
		Where("merchant_id = ? AND category <> ''", merchantID).
		Distinct("category").Order("category").
		Pluck("category", &categories).Error
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *DatabaseStore) UpdateProduct(product *models.Product) error {
	return s.db.Save(product).Error
}

// DecreaseStock locks the affected row, decrements and clamps inside one
// transaction so concurrent checkouts serialize on the row.
func (s *DatabaseStore) DecreaseStock(merchantID, sku, presentation string, qty int) (int, bool, error) {
	var remaining int
	var clamped bool

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var product models.Product
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("merchant_id = ? AND sku = ?", merchantID, strings.ToUpper(strings.TrimSpace(sku))).
			First(&product).Error
		if err != nil {
			return notFound(err, "product")
		}

		if presentation != "" {
			var pres models.Presentation
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("product_id = ? AND LOWER(name) = LOWER(?)", product.ID, presentation).
				First(&pres).Error
			if err != nil {
				return notFound(err, "presentation")
			}
			clamped = qty > pres.Stock
			pres.Stock -= qty
			if pres.Stock < 0 {
				pres.Stock = 0
			}
			remaining = pres.Stock
			return tx.Model(&models.Presentation{}).Where("id = ?", pres.ID).
				Update("stock", pres.Stock).Error
		}

		clamped = qty > product.Stock
		product.Stock -= qty
		if product.Stock < 0 {
			product.Stock = 0
		}
		remaining = product.Stock
		return tx.Model(&models.Product{}).Where("id = ?", product.ID).
			Update("stock", product.Stock).Error
	})

	return remaining, clamped, err
}

// Customer operations

func (s *DatabaseStore) GetCustomerByAddress(address string) (*models.Customer, error) {
	address = strings.TrimPrefix(address, "whatsapp:")
	var customer models.Customer
	if err := s.db.Where("address = ?", address).First(&customer).Error; err != nil {
		return nil, notFound(err, "customer")
	}
	return &customer, nil
}

func (s *DatabaseStore) FindOrCreateCustomer(address string) (*models.Customer, error) {
	address = strings.TrimPrefix(address, "whatsapp:")
	var customer models.Customer
	err := s.db.Where(models.Customer{Address: address}).FirstOrCreate(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *DatabaseStore) SaveCustomer(customer *models.Customer) (*models.Customer, error) {
	customer.Address = strings.TrimPrefix(customer.Address, "whatsapp:")

	var existing models.Customer
	err := s.db.Where("address = ?", customer.Address).First(&existing).Error
	if err == nil {
		existing.Name = customer.Name
		existing.DeliveryAddress = customer.DeliveryAddress
		existing.Phone = customer.Phone
		if err := s.db.Save(&existing).Error; err != nil {
			return nil, err
		}
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if err := s.db.Create(customer).Error; err != nil {
		return nil, err
	}
	return customer, nil
}

// Order operations

func (s *DatabaseStore) CreateOrder(order *models.Order) (*models.Order, error) {
	if err := s.db.Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (s *DatabaseStore) GetOrder(orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.Preload("Items").Where("order_id = ?", orderID).First(&order).Error
	if err != nil {
		return nil, notFound(err, "order")
	}
	return &order, nil
}

func (s *DatabaseStore) GetOrdersByMerchant(merchantID string) ([]*models.Order, error) {
	var orders []*models.Order
	err := s.db.Preload("Items").Where("merchant_id = ?", merchantID).
		Order("created_at DESC").Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *DatabaseStore) GetOrdersByCustomer(customerID string) ([]*models.Order, error) {
	var orders []*models.Order
	err := s.db.Preload("Items").Where("customer_id = ?", customerID).
		Order("created_at DESC").Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *DatabaseStore) GetStaleOrders(status string, olderThan time.Duration) ([]*models.Order, error) {
	cutoff := time.Now().Add(-olderThan)
	var orders []*models.Order
	err := s.db.Where("status = ? AND created_at < ?", status, cutoff).
		Order("created_at").Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *DatabaseStore) UpdateOrderStatus(orderID, status string) error {
	result := s.db.Model(&models.Order{}).Where("order_id = ?", orderID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("order: %w", ErrNotFound)
	}
	return nil
}

// Session operations

func (s *DatabaseStore) FindOrCreateSession(userAddress, channelID string) (*models.Session, error) {
	var session models.Session
	err := s.db.Where(models.Session{UserAddress: userAddress}).
		Attrs(models.Session{ChannelID: channelID, LastActivity: time.Now()}).
		FirstOrCreate(&session).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *DatabaseStore) GetSession(userAddress string) (*models.Session, error) {
	var session models.Session
	if err := s.db.Where("user_address = ?", userAddress).First(&session).Error; err != nil {
		return nil, notFound(err, "session")
	}
	return &session, nil
}

func (s *DatabaseStore) SaveSession(session *models.Session) error {
	return s.db.Save(session).Error
}

func (s *DatabaseStore) GetIdleSessions(idleFor time.Duration) ([]*models.Session, error) {
	cutoff := time.Now().Add(-idleFor)
	var sessions []*models.Session
	if err := s.db.Where("last_activity < ?", cutoff).Find(&sessions).Error; err != nil {
		return nil, err
	}
	return sessions, nil
}

// Session deletes are unscoped. A soft-deleted row would still hold the
// unique user_address index and block the next FindOrCreateSession.
func (s *DatabaseStore) DeleteSession(userAddress string) error {
	result := s.db.Unscoped().Where("user_address = ?", userAddress).Delete(&models.Session{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("session: %w", ErrNotFound)
	}
	return nil
}

func (s *DatabaseStore) DeleteAllSessions() error {
	return s.db.Unscoped().Where("1 = 1").Delete(&models.Session{}).Error
}
