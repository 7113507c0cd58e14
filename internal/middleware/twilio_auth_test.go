package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vendibot/vendibot-backend/internal/config"
)

func webhookApp(cfg *config.Config) *fiber.App {
	app := fiber.New()
	app.Post("/webhook/whatsapp", ValidateTwilioSignature(cfg), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func postSigned(t *testing.T, app *fiber.App, form url.Values, signature string) int {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "http://example.com/webhook/whatsapp", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if signature != "" {
		req.Header.Set("X-Twilio-Signature", signature)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestValidateTwilioSignature_DevelopmentBypass(t *testing.T) {
	app := webhookApp(&config.Config{Environment: "development"})

	status := postSigned(t, app, url.Values{"Body": {"hola"}}, "")

	assert.Equal(t, http.StatusOK, status)
}

func TestValidateTwilioSignature_ExplicitBypass(t *testing.T) {
	app := webhookApp(&config.Config{
		Environment:              "production",
		DisableWebhookValidation: true,
	})

	status := postSigned(t, app, url.Values{"Body": {"hola"}}, "")

	assert.Equal(t, http.StatusOK, status)
}

func TestValidateTwilioSignature_MissingSignature(t *testing.T) {
	app := webhookApp(&config.Config{
		Environment:     "production",
		TwilioAuthToken: "token123",
	})

	status := postSigned(t, app, url.Values{"Body": {"hola"}}, "")

	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestValidateTwilioSignature_AcceptsValidSignature(t *testing.T) {
	const token = "token123"
	app := webhookApp(&config.Config{
		Environment:     "production",
		TwilioAuthToken: token,
	})

	form := url.Values{
		"From": {"whatsapp:+5215550001111"},
		"Body": {"hola"},
	}
	params := map[string]string{
		"From": "whatsapp:+5215550001111",
		"Body": "hola",
	}
	signature := calculateTwilioSignature(token, "http://example.com/webhook/whatsapp", params)

	status := postSigned(t, app, form, signature)

	assert.Equal(t, http.StatusOK, status)
}

func TestValidateTwilioSignature_RejectsTamperedBody(t *testing.T) {
	const token = "token123"
	app := webhookApp(&config.Config{
		Environment:     "production",
		TwilioAuthToken: token,
	})

	signature := calculateTwilioSignature(token, "http://example.com/webhook/whatsapp", map[string]string{
		"Body": "hola",
	})

	// Signature was computed over a different body
	status := postSigned(t, app, url.Values{"Body": {"2 tortillas"}}, signature)

	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestCalculateTwilioSignature_SortsParams(t *testing.T) {
	a := calculateTwilioSignature("token", "https://host/path", map[string]string{
		"B": "2", "A": "1",
	})
	b := calculateTwilioSignature("token", "https://host/path", map[string]string{
		"A": "1", "B": "2",
	})

	// Map iteration order must not leak into the signature
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, calculateTwilioSignature("token", "https://host/other", map[string]string{
		"A": "1", "B": "2",
	}))
}
