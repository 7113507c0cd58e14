package services

import (
	"strings"

	"github.com/vendibot/vendibot-backend/internal/models"
)

// startCheckout begins order finalization from wherever the user typed the
// finalize command.
func (e *Engine) startCheckout(session *models.Session) error {
	if len(session.Cart) == 0 {
		e.send(session, EmptyCartCheckout())
		return nil
	}
	if !session.HasCompany() {
		return e.corrupted(session)
	}

	session.State = models.StateAwaitingCustomerData
	session.BindOptions(nil)
	e.send(session, CustomerDataPrompt())
	return nil
}

// parseCustomerBlock extracts labeled lines ("Nombre: X"). Bold markers are
// tolerated since users copy the prompt format back.
func parseCustomerBlock(text string) (name, address, phone string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.ReplaceAll(line, "*", "")
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		label := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		if value == "" {
			continue
		}
		switch label {
		case "nombre", "name":
			name = value
		case "dirección", "direccion", "address":
			address = value
		case "teléfono", "telefono", "tel", "phone":
			phone = value
		}
	}
	return name, address, phone
}

// handleCustomerData parses the delivery block, upserts the customer and
// runs the order sub-protocol.
func (e *Engine) handleCustomerData(session *models.Session, text string) error {
	if len(session.Cart) == 0 || !session.HasCompany() {
		return e.corrupted(session)
	}

	name, address, phone := parseCustomerBlock(text)
	if name == "" && address == "" {
		e.send(session, CustomerDataRetry())
		return nil
	}

	customer, err := e.store.FindOrCreateCustomer(session.UserAddress)
	if err != nil {
		return err
	}
	if name != "" {
		customer.Name = name
	}
	if address != "" {
		customer.DeliveryAddress = address
	}
	if phone != "" {
		customer.Phone = phone
	}

	saved, err := e.store.SaveCustomer(customer)
	if err != nil {
		return err
	}

	return e.completeOrder(session, saved)
}

// completeOrder persists the order, decrements stock, notifies the
// merchant, closes with the user and silently resets the session.
func (e *Engine) completeOrder(session *models.Session, customer *models.Customer) error {
	merchant, err := e.store.GetMerchant(session.Company.MerchantID)
	if err != nil {
		return err
	}

	// Order persistence failing leaves cart and session intact for retry
	order, err := e.orders.Place(session, merchant, customer)
	if err != nil {
		return err
	}

	e.send(session, OrderClosing(merchant, order))

	// Checkout is a natural session end: reset without re-prompting
	session.Reset()
	return nil
}
