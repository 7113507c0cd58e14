package services

import (
	"github.com/sirupsen/logrus"

	"github.com/vendibot/vendibot-backend/internal/models"
	"github.com/vendibot/vendibot-backend/internal/storage"
)

// OrderService turns a session cart into a persisted order. Steps after
// persistence (stock decrement, merchant notification) are best-effort: an
// order that exists is never rolled back.
type OrderService struct {
	store     storage.Store
	messenger Messenger
}

// NewOrderService creates the order service
func NewOrderService(store storage.Store, messenger Messenger) *OrderService {
	return &OrderService{store: store, messenger: messenger}
}

// Place persists the order, decrements stock per line and notifies the
// merchant. Only the persistence step can fail the call; everything after
// it is logged, never propagated.
func (o *OrderService) Place(session *models.Session, merchant *models.Merchant, customer *models.Customer) (*models.Order, error) {
	order := &models.Order{
		MerchantID:      merchant.MerchantID,
		CustomerID:      customer.CustomerID,
		Total:           session.CartTotal(),
		Status:          models.OrderStatusReceived,
		CustomerName:    customer.Name,
		CustomerAddress: customer.DeliveryAddress,
		CustomerPhone:   customer.Phone,
		ChatAddress:     session.UserAddress,
	}
	for _, line := range session.Cart {
		order.Items = append(order.Items, models.OrderItem{
			SKU:          line.SKU,
			ShortName:    line.ShortName,
			Presentation: line.Presentation,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice,
			LineTotal:    float64(line.Quantity) * line.UnitPrice,
		})
	}

	created, err := o.store.CreateOrder(order)
	if err != nil {
		logrus.Errorf("❌ Order persist for %s failed: %v", session.UserAddress, err)
		return nil, err
	}

	logrus.Infof("🧾 Order %s created for merchant %s, total $%.2f",
		created.OrderID, merchant.MerchantID, created.Total)

	o.decrementStock(created, merchant.MerchantID)
	o.notifyMerchant(created, merchant, session.ChannelID)

	return created, nil
}

// decrementStock applies every cart line to inventory. Requests beyond
// current stock clamp to zero; that discrepancy is a stock-integrity
// warning, not an order failure.
func (o *OrderService) decrementStock(order *models.Order, merchantID string) {
	for _, item := range order.Items {
		remaining, clamped, err := o.store.DecreaseStock(merchantID, item.SKU, item.Presentation, item.Quantity)
		if err != nil {
			logrus.Errorf("❌ Stock decrement for %s/%s on order %s failed: %v",
				merchantID, item.SKU, order.OrderID, err)
			continue
		}
		if clamped {
			logrus.Warnf("⚠️ Stock integrity: order %s took %d of %s/%s but stock ran out, clamped to 0",
				order.OrderID, item.Quantity, item.SKU, item.Presentation)
		}
		logrus.Debugf("📉 Stock %s/%s now %d", merchantID, item.SKU, remaining)
	}
}

// notifyMerchant sends the order summary to the merchant's own WhatsApp.
// Failures are logged only; the customer already has their confirmation.
func (o *OrderService) notifyMerchant(order *models.Order, merchant *models.Merchant, channelID string) {
	if merchant.WhatsApp == "" {
		logrus.Warnf("⚠️ Merchant %s has no WhatsApp contact, skipping order notice", merchant.MerchantID)
		return
	}
	notice := MerchantOrderNotice(order)
	if err := o.messenger.SendText(channelID, merchant.WhatsApp, notice); err != nil {
		logrus.Errorf("❌ Order notice for %s to merchant %s failed: %v",
			order.OrderID, merchant.MerchantID, err)
	}
}
