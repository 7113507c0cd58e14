package services

import (
	"errors"
	"regexp"

	"github.com/sirupsen/logrus"

	"github.com/vendibot/vendibot-backend/internal/storage"
)

// relayRefPattern finds the customer reference embedded in merchant-bound
// messages (see RelayRef).
var relayRefPattern = regexp.MustCompile(`ref:\s*(\S+)`)

// extractRelayRef pulls the customer address out of a quoted message body
func extractRelayRef(quoted string) (string, bool) {
	match := relayRefPattern.FindStringSubmatch(quoted)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// RelayService routes merchant replies back to customers. A merchant
// answers an order notice or chat relay by quoting it; the quoted body
// carries the customer reference.
type RelayService struct {
	store     storage.Store
	messenger Messenger
}

// NewRelayService creates the relay service
func NewRelayService(store storage.Store, messenger Messenger) *RelayService {
	return &RelayService{store: store, messenger: messenger}
}

// TryHandle intercepts an inbound message when it is a merchant quote-reply.
// It returns true when the message was consumed (delivered or rejected);
// false hands the message to normal conversation processing. A merchant
// writing without quoting is treated as a regular user, so merchants can
// shop too.
func (r *RelayService) TryHandle(msg InboundMessage) bool {
	if msg.QuotedText == "" {
		return false
	}

	merchant, err := r.store.GetMerchantByWhatsApp(normalizeAddress(msg.From))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logrus.Errorf("❌ Relay merchant lookup failed: %v", err)
		}
		return false
	}

	customerAddress, ok := extractRelayRef(msg.QuotedText)
	if !ok {
		// Quoted something that is not one of ours. Consume the message so
		// it is never parsed as a customer command.
		logrus.Warnf("⚠️ Merchant %s replied to a message without a customer ref", merchant.MerchantID)
		if err := r.messenger.SendText(msg.ChannelID, merchant.WhatsApp,
			"🤔 No pude identificar al cliente de ese mensaje. Responde citando el pedido o el mensaje del cliente."); err != nil {
			logrus.Errorf("❌ Relay rejection notice to %s failed: %v", merchant.MerchantID, err)
		}
		return true
	}

	channelID := msg.ChannelID
	if session, err := r.store.GetSession(customerAddress); err == nil && session.ChannelID != "" {
		channelID = session.ChannelID
	}

	if err := r.messenger.SendText(channelID, customerAddress,
		ChatRelayToCustomer(merchant.Name, msg.Text)); err != nil {
		logrus.Errorf("❌ Relay from merchant %s to %s failed: %v",
			merchant.MerchantID, customerAddress, err)
		return true
	}

	logrus.Infof("💬 Relayed merchant %s reply to %s", merchant.MerchantID, customerAddress)
	return true
}
