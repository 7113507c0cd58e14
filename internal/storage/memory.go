package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vendibot/vendibot-backend/internal/models"
)

// MemoryStore holds all data in memory for local development and tests
type MemoryStore struct {
	merchants map[string]*models.Merchant // keyed by MerchantID
	products  map[string]*models.Product  // keyed by MerchantID + "/" + SKU
	customers map[string]*models.Customer // keyed by chat address
	orders    map[string]*models.Order    // keyed by OrderID
	sessions  map[string]*models.Session  // keyed by user chat address

	// Mutexes for thread safety
	merchantMu sync.RWMutex
	productMu  sync.RWMutex
	customerMu sync.RWMutex
	orderMu    sync.RWMutex
	sessionMu  sync.RWMutex

	// Counters for ID generation
	merchantCounter int
	customerCounter int
	sessionCounter  uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		merchants: make(map[string]*models.Merchant),
		products:  make(map[string]*models.Product),
		customers: make(map[string]*models.Customer),
		orders:    make(map[string]*models.Order),
		sessions:  make(map[string]*models.Session),
	}
}

func productKey(merchantID, sku string) string {
	return merchantID + "/" + strings.ToUpper(strings.TrimSpace(sku))
}

// Merchant operations

func (m *MemoryStore) CreateMerchant(reg *models.MerchantRegistration) (*models.Merchant, error) {
	m.merchantMu.Lock()
	defer m.merchantMu.Unlock()

	m.merchantCounter++
	merchant := &models.Merchant{
		MerchantID: fmt.Sprintf("MCH%05d", m.merchantCounter),
		Code:       strings.ToUpper(strings.ReplaceAll(reg.Code, " ", "")),
		Name:       reg.Name,
		WhatsApp:   strings.TrimPrefix(reg.WhatsApp, "whatsapp:"),
		Greeting:   reg.Greeting,
		Closing:    reg.Closing,
		Active:     true,
	}
	merchant.CreatedAt = time.Now()
	merchant.UpdatedAt = time.Now()

	m.merchants[merchant.MerchantID] = merchant
	return merchant, nil
}

func (m *MemoryStore) GetMerchant(merchantID string) (*models.Merchant, error) {
	m.merchantMu.RLock()
	defer m.merchantMu.RUnlock()

	merchant, exists := m.merchants[merchantID]
	if !exists {
		return nil, fmt.Errorf("merchant: %w", ErrNotFound)
	}
	return merchant, nil
}

func (m *MemoryStore) GetMerchantByName(name string) (*models.Merchant, error) {
	m.merchantMu.RLock()
	defer m.merchantMu.RUnlock()

	for _, merchant := range m.merchants {
		if merchant.MatchesName(name) {
			return merchant, nil
		}
	}
	return nil, fmt.Errorf("merchant: %w", ErrNotFound)
}

func (m *MemoryStore) GetMerchantByWhatsApp(address string) (*models.Merchant, error) {
	m.merchantMu.RLock()
	defer m.merchantMu.RUnlock()

	address = strings.TrimPrefix(address, "whatsapp:")
	for _, merchant := range m.merchants {
		if merchant.WhatsApp == address {
			return merchant, nil
		}
	}
	return nil, fmt.Errorf("merchant: %w", ErrNotFound)
}

func (m *MemoryStore) GetActiveMerchants() ([]*models.Merchant, error) {
	m.merchantMu.RLock()
	defer m.merchantMu.RUnlock()

	var merchants []*models.Merchant
	for _, merchant := range m.merchants {
		if merchant.Active {
			merchants = append(merchants, merchant)
		}
	}
	// Stable order so numbered menus stay consistent between renders
	sort.Slice(merchants, func(i, j int) bool {
		return merchants[i].Name < merchants[j].Name
	})
	return merchants, nil
}

func (m *MemoryStore) UpdateMerchant(merchant *models.Merchant) error {
	m.merchantMu.Lock()
	defer m.merchantMu.Unlock()

	if _, exists := m.merchants[merchant.MerchantID]; !exists {
		return fmt.Errorf("merchant: %w", ErrNotFound)
	}
	merchant.UpdatedAt = time.Now()
	m.merchants[merchant.MerchantID] = merchant
	return nil
}

// Product operations

func (m *MemoryStore) CreateProduct(product *models.Product) (*models.Product, error) {
	m.productMu.Lock()
	defer m.productMu.Unlock()

	product.SKU = strings.ToUpper(strings.TrimSpace(product.SKU))
	key := productKey(product.MerchantID, product.SKU)
	if _, exists := m.products[key]; exists {
		return nil, fmt.Errorf("product already exists")
	}
	product.CreatedAt = time.Now()
	product.UpdatedAt = time.Now()

	m.products[key] = product
	return product, nil
}

func (m *MemoryStore) GetProduct(merchantID, sku string) (*models.Product, error) {
	m.productMu.RLock()
	defer m.productMu.RUnlock()

	product, exists := m.products[productKey(merchantID, sku)]
	if !exists {
		return nil, fmt.Errorf("product: %w", ErrNotFound)
	}
	return product, nil
}

func (m *MemoryStore) GetProductsByMerchant(merchantID string) ([]*models.Product, error) {
	m.productMu.RLock()
	defer m.productMu.RUnlock()

	var products []*models.Product
	for _, product := range m.products {
		if product.MerchantID == merchantID {
			products = append(products, product)
		}
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].SKU < products[j].SKU
	})
	return products, nil
}

func (m *MemoryStore) GetProductsByCategory(merchantID, category string) ([]*models.Product, error) {
	m.productMu.RLock()
	defer m.productMu.RUnlock()

	var products []*models.Product
	for _, product := range m.products {
		if product.MerchantID == merchantID && strings.EqualFold(product.Category, category) {
			products = append(products, product)
		}
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].SKU < products[j].SKU
	})
	return products, nil
}

func (m *MemoryStore) GetCategories(merchantID string) ([]string, error) {
	m.productMu.RLock()
	defer m.productMu.RUnlock()

	seen := make(map[string]bool)
	var categories []string
	for _, product := range m.products {
		if product.MerchantID != merchantID || product.Category == "" {
			continue
		}
		if !seen[product.Category] {
			seen[product.Category] = true
			categories = append(categories, product.Category)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

func (m *MemoryStore) UpdateProduct(product *models.Product) error {
	m.productMu.Lock()
	defer m.productMu.Unlock()

	key := productKey(product.MerchantID, product.SKU)
	if _, exists := m.products[key]; !exists {
		return fmt.Errorf("product: %w", ErrNotFound)
	}
	product.UpdatedAt = time.Now()
	m.products[key] = product
	return nil
}

// DecreaseStock reads, decrements and clamps in one critical section so two
// concurrent checkouts can never drive stock negative.
func (m *MemoryStore) DecreaseStock(merchantID, sku, presentation string, qty int) (int, bool, error) {
	m.productMu.Lock()
	defer m.productMu.Unlock()

	product, exists := m.products[productKey(merchantID, sku)]
	if !exists {
		return 0, false, fmt.Errorf("product: %w", ErrNotFound)
	}

	if presentation != "" {
		pres := product.FindPresentation(presentation)
		if pres == nil {
			return 0, false, fmt.Errorf("presentation: %w", ErrNotFound)
		}
		clamped := qty > pres.Stock
		pres.Stock -= qty
		if pres.Stock < 0 {
			pres.Stock = 0
		}
		product.UpdatedAt = time.Now()
		return pres.Stock, clamped, nil
	}

	clamped := qty > product.Stock
	product.Stock -= qty
	if product.Stock < 0 {
		product.Stock = 0
	}
	product.UpdatedAt = time.Now()
	return product.Stock, clamped, nil
}

// Customer operations

func (m *MemoryStore) GetCustomerByAddress(address string) (*models.Customer, error) {
	m.customerMu.RLock()
	defer m.customerMu.RUnlock()

	customer, exists := m.customers[strings.TrimPrefix(address, "whatsapp:")]
	if !exists {
		return nil, fmt.Errorf("customer: %w", ErrNotFound)
	}
	return customer, nil
}

func (m *MemoryStore) FindOrCreateCustomer(address string) (*models.Customer, error) {
	address = strings.TrimPrefix(address, "whatsapp:")

	m.customerMu.Lock()
	defer m.customerMu.Unlock()

	if customer, exists := m.customers[address]; exists {
		return customer, nil
	}

	m.customerCounter++
	customer := &models.Customer{
		CustomerID: fmt.Sprintf("CUS%05d", m.customerCounter),
		Address:    address,
	}
	customer.CreatedAt = time.Now()
	customer.UpdatedAt = time.Now()

	m.customers[address] = customer
	return customer, nil
}

func (m *MemoryStore) SaveCustomer(customer *models.Customer) (*models.Customer, error) {
	m.customerMu.Lock()
	defer m.customerMu.Unlock()

	customer.Address = strings.TrimPrefix(customer.Address, "whatsapp:")
	if existing, exists := m.customers[customer.Address]; exists {
		existing.Name = customer.Name
		existing.DeliveryAddress = customer.DeliveryAddress
		existing.Phone = customer.Phone
		existing.UpdatedAt = time.Now()
		return existing, nil
	}

	m.customerCounter++
	if customer.CustomerID == "" {
		customer.CustomerID = fmt.Sprintf("CUS%05d", m.customerCounter)
	}
	customer.CreatedAt = time.Now()
	customer.UpdatedAt = time.Now()

	m.customers[customer.Address] = customer
	return customer, nil
}

// Order operations

func (m *MemoryStore) CreateOrder(order *models.Order) (*models.Order, error) {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	if order.OrderID == "" {
		order.OrderID = fmt.Sprintf("ORD-%s", strings.ToUpper(uuid.NewString()[:8]))
	}
	if order.Status == "" {
		order.Status = models.OrderStatusReceived
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = time.Now()

	m.orders[order.OrderID] = order
	return order, nil
}

func (m *MemoryStore) GetOrder(orderID string) (*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	order, exists := m.orders[orderID]
	if !exists {
		return nil, fmt.Errorf("order: %w", ErrNotFound)
	}
	return order, nil
}

func (m *MemoryStore) GetOrdersByMerchant(merchantID string) ([]*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	var orders []*models.Order
	for _, order := range m.orders {
		if order.MerchantID == merchantID {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (m *MemoryStore) GetOrdersByCustomer(customerID string) ([]*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	var orders []*models.Order
	for _, order := range m.orders {
		if order.CustomerID == customerID {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func (m *MemoryStore) GetStaleOrders(status string, olderThan time.Duration) ([]*models.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	cutoff := time.Now().Add(-olderThan)
	var orders []*models.Order
	for _, order := range m.orders {
		if order.Status == status && order.CreatedAt.Before(cutoff) {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders, nil
}

func (m *MemoryStore) UpdateOrderStatus(orderID, status string) error {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	order, exists := m.orders[orderID]
	if !exists {
		return fmt.Errorf("order: %w", ErrNotFound)
	}
	order.Status = status
	order.UpdatedAt = time.Now()
	return nil
}

// Session operations

func (m *MemoryStore) FindOrCreateSession(userAddress, channelID string) (*models.Session, error) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if session, exists := m.sessions[userAddress]; exists {
		return session, nil
	}

	m.sessionCounter++
	session := &models.Session{
		UserAddress:  userAddress,
		ChannelID:    channelID,
		State:        models.StateSelectingCompany,
		LastActivity: time.Now(),
	}
	session.ID = m.sessionCounter
	session.CreatedAt = time.Now()
	session.UpdatedAt = time.Now()

	m.sessions[userAddress] = session
	return session, nil
}

func (m *MemoryStore) GetSession(userAddress string) (*models.Session, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	session, exists := m.sessions[userAddress]
	if !exists {
		return nil, fmt.Errorf("session: %w", ErrNotFound)
	}
	return session, nil
}

func (m *MemoryStore) SaveSession(session *models.Session) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	session.UpdatedAt = time.Now()
	m.sessions[session.UserAddress] = session
	return nil
}

func (m *MemoryStore) GetIdleSessions(idleFor time.Duration) ([]*models.Session, error) {
	m.sessionMu.RLock()
	defer m.sessionMu.RUnlock()

	cutoff := time.Now().Add(-idleFor)
	var idle []*models.Session
	for _, session := range m.sessions {
		if session.LastActivity.Before(cutoff) {
			idle = append(idle, session)
		}
	}
	return idle, nil
}

func (m *MemoryStore) DeleteSession(userAddress string) error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	if _, exists := m.sessions[userAddress]; !exists {
		return fmt.Errorf("session: %w", ErrNotFound)
	}
	delete(m.sessions, userAddress)
	return nil
}

func (m *MemoryStore) DeleteAllSessions() error {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	m.sessions = make(map[string]*models.Session)
	return nil
}
