package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendibot/vendibot-backend/internal/models"
	"github.com/vendibot/vendibot-backend/internal/storage"
)

func TestExtractRelayRef(t *testing.T) {
	tests := []struct {
		name   string
		quoted string
		want   string
		ok     bool
	}{
		{"plain ref line", "🔖 ref: +5215550001111", "+5215550001111", true},
		{"no space after marker", "ref:+5215550001111", "+5215550001111", true},
		{"ref inside a full notice", MerchantOrderNotice(&models.Order{OrderID: "ORD-X", ChatAddress: "+521555"}), "+521555", true},
		{"ref inside a chat relay", ChatRelayToMerchant("+521777", "hola"), "+521777", true},
		{"no marker", "gracias por su pedido", "", false},
		{"marker without value", "ref: ", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractRelayRef(tt.quoted)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func relayFixture(t *testing.T) (*storage.MemoryStore, *fakeMessenger, *RelayService, *models.Merchant) {
	t.Helper()
	store := storage.NewMemoryStore()
	msgr := &fakeMessenger{failTo: make(map[string]bool)}
	svc := NewRelayService(store, msgr)

	merchant, err := store.CreateMerchant(&models.MerchantRegistration{
		Code: "ACME", Name: "Acme", WhatsApp: "+5215550009999",
	})
	require.NoError(t, err)

	return store, msgr, svc, merchant
}

func TestRelayService_PassesThroughWithoutQuote(t *testing.T) {
	_, msgr, svc, merchant := relayFixture(t)

	consumed := svc.TryHandle(InboundMessage{From: merchant.WhatsApp, Text: "hola"})

	assert.False(t, consumed, "a merchant writing without quoting shops like anyone else")
	assert.Empty(t, msgr.all())
}

func TestRelayService_PassesThroughForNonMerchants(t *testing.T) {
	_, msgr, svc, _ := relayFixture(t)

	consumed := svc.TryHandle(InboundMessage{
		From:       testUser,
		Text:       "¿me lo mandas hoy?",
		QuotedText: "🔖 ref: +5215550002222",
	})

	assert.False(t, consumed)
	assert.Empty(t, msgr.all())
}

func TestRelayService_DeliversMerchantReply(t *testing.T) {
	_, msgr, svc, merchant := relayFixture(t)

	consumed := svc.TryHandle(InboundMessage{
		From:       "whatsapp:" + merchant.WhatsApp,
		Text:       "Sale hoy mismo",
		QuotedText: ChatRelayToMerchant(testUser, "¿cuándo llega?"),
	})

	assert.True(t, consumed)
	assert.Equal(t, "💬 *Acme:* Sale hoy mismo", msgr.lastTo(t, testUser))
}

func TestRelayService_RejectsQuoteWithoutRef(t *testing.T) {
	_, msgr, svc, merchant := relayFixture(t)

	consumed := svc.TryHandle(InboundMessage{
		From:       merchant.WhatsApp,
		Text:       "¿y esto?",
		QuotedText: "un mensaje cualquiera",
	})

	// consumed either way so merchant replies never run through the FSM
	assert.True(t, consumed)
	assert.Contains(t, msgr.lastTo(t, merchant.WhatsApp), "No pude identificar al cliente")
}

func TestRelayService_PrefersCustomerChannel(t *testing.T) {
	store, msgr, svc, merchant := relayFixture(t)

	session, err := store.FindOrCreateSession(testUser, "+14155238886")
	require.NoError(t, err)
	require.NoError(t, store.SaveSession(session))

	svc.TryHandle(InboundMessage{
		From:       merchant.WhatsApp,
		ChannelID:  "+10000000000",
		Text:       "listo",
		QuotedText: "ref: " + testUser,
	})

	sent := msgr.all()
	require.Len(t, sent, 1)
	assert.Equal(t, "+14155238886", sent[0].ChannelID, "the reply goes out on the customer's own channel")
	assert.Equal(t, testUser, sent[0].To)
}

func TestRelayService_DeliveryFailureStillConsumes(t *testing.T) {
	_, msgr, svc, merchant := relayFixture(t)
	msgr.failTo[testUser] = true

	consumed := svc.TryHandle(InboundMessage{
		From:       merchant.WhatsApp,
		Text:       "ok",
		QuotedText: "ref: " + testUser,
	})

	assert.True(t, consumed, "a failed delivery must not fall through to the FSM")
}
