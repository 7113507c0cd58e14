package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/vendibot/vendibot-backend/internal/services"
)

// QuotedFetcher recovers the body of a previously sent message so a
// quote-reply can be resolved to the message it answers.
type QuotedFetcher interface {
	FetchMessageBody(sid string) (string, error)
}

// WhatsAppHandler handles WhatsApp webhook requests
type WhatsAppHandler struct {
	engine  *services.Engine
	fetcher QuotedFetcher
}

// NewWhatsAppHandler creates a new WhatsApp handler. fetcher may be nil
// when quoted-message lookup is unavailable (tests, dev without Twilio).
func NewWhatsAppHandler(engine *services.Engine, fetcher QuotedFetcher) *WhatsAppHandler {
	return &WhatsAppHandler{
		engine:  engine,
		fetcher: fetcher,
	}
}

// TwilioWebhookPayload represents an incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid                string `form:"MessageSid"`
	AccountSid                string `form:"AccountSid"`
	From                      string `form:"From"` // "whatsapp:+5215550001111"
	To                        string `form:"To"`   // the bot number it hit
	Body                      string `form:"Body"`
	NumMedia                  string `form:"NumMedia"`
	OriginalRepliedMessageSid string `form:"OriginalRepliedMessageSid"`
}

// HandleWebhook processes incoming WhatsApp messages
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload

	if err := c.BodyParser(&payload); err != nil {
		logrus.Errorf("Error parsing webhook: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}

	logrus.Infof("📱 WhatsApp message from %s: %s", payload.From, payload.Body)

	// Status callbacks and media-only events have no body to process
	if payload.Body == "" || payload.From == "" {
		return c.SendStatus(fiber.StatusOK)
	}

	quoted := ""
	if payload.OriginalRepliedMessageSid != "" && h.fetcher != nil {
		body, err := h.fetcher.FetchMessageBody(payload.OriginalRepliedMessageSid)
		if err != nil {
			logrus.Warnf("⚠️ Could not fetch quoted message %s: %v",
				payload.OriginalRepliedMessageSid, err)
		} else {
			quoted = body
		}
	}

	// Ack immediately; the engine answers through the messenger
	h.engine.Dispatch(services.InboundMessage{
		From:       payload.From,
		ChannelID:  strings.TrimPrefix(payload.To, "whatsapp:"),
		Text:       payload.Body,
		QuotedText: quoted,
		MessageSID: payload.MessageSid,
	})

	return c.SendStatus(fiber.StatusOK)
}

// TestWebhookPayload drives conversations without Twilio (development)
type TestWebhookPayload struct {
	From    string `json:"from"`
	Message string `json:"message"`
	Quoted  string `json:"quoted,omitempty"`
}

// HandleTestWebhook processes test WhatsApp messages (for development).
// Unlike the real webhook, it runs the turn synchronously so the caller
// sees all effects once the request returns.
func (h *WhatsAppHandler) HandleTestWebhook(c *fiber.Ctx) error {
	var payload TestWebhookPayload

	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid test payload",
		})
	}
	if payload.From == "" || payload.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "from and message are required",
		})
	}

	logrus.Infof("🧪 Test webhook from %s: %s", payload.From, payload.Message)

	h.engine.HandleMessage(services.InboundMessage{
		From:       payload.From,
		Text:       payload.Message,
		QuotedText: payload.Quoted,
	})

	return c.JSON(fiber.Map{
		"success": true,
	})
}
