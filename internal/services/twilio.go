package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/vendibot/vendibot-backend/internal/config"
)

// TwilioMessenger sends WhatsApp messages through the Twilio API. All calls
// go through a circuit breaker so a Twilio outage degrades fast instead of
// stalling every conversation turn.
type TwilioMessenger struct {
	client            *twilio.RestClient
	from              string // default WhatsApp number, "whatsapp:+14155238886"
	buttonsContentSid string
	breaker           *gobreaker.CircuitBreaker
}

// NewTwilioMessenger creates a Twilio-backed messenger instance
func NewTwilioMessenger(cfg *config.Config) (*TwilioMessenger, error) {
	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioWhatsAppFrom == "" {
		return nil, fmt.Errorf("missing Twilio credentials in environment variables")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.TwilioAccountSID,
		Password: cfg.TwilioAuthToken,
	})

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "twilio",
		MaxRequests: 3,                // half-open: allow 3 requests
		Interval:    30 * time.Second, // closed: reset counters every 30s
		Timeout:     10 * time.Second, // open -> half-open after 10s
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})

	return &TwilioMessenger{
		client:            client,
		from:              cfg.TwilioWhatsAppFrom,
		buttonsContentSid: cfg.TwilioButtonsContentSid,
		breaker:           breaker,
	}, nil
}

// whatsappAddr normalizes an address into Twilio's "whatsapp:+<number>" form
func whatsappAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, "whatsapp:") {
		return addr
	}
	return fmt.Sprintf("whatsapp:%s", addr)
}

func (t *TwilioMessenger) fromAddr(channelID string) string {
	if channelID == "" {
		return whatsappAddr(t.from)
	}
	return whatsappAddr(channelID)
}

func (t *TwilioMessenger) createMessage(params *twilioApi.CreateMessageParams) error {
	_, err := t.breaker.Execute(func() (interface{}, error) {
		resp, err := t.client.Api.CreateMessage(params)
		if err != nil {
			return nil, err
		}
		if resp.ErrorCode != nil && *resp.ErrorCode != 0 {
			return nil, fmt.Errorf("twilio error %d: %s", *resp.ErrorCode, *resp.ErrorMessage)
		}
		return resp, nil
	})
	return err
}

// SendText sends a plain WhatsApp message
func (t *TwilioMessenger) SendText(channelID, to, text string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(t.fromAddr(channelID))
	params.SetTo(whatsappAddr(to))
	params.SetBody(text)

	if err := t.createMessage(params); err != nil {
		logrus.Errorf("❌ Failed to send WhatsApp message to %s: %v", to, err)
		return err
	}

	logrus.Debugf("✅ WhatsApp message sent to %s", to)
	return nil
}

// SendButtons sends a message with quick-reply buttons through a registered
// content template. When no template is configured, or the structured send
// fails, it degrades to a plain text message listing the options.
func (t *TwilioMessenger) SendButtons(channelID, to, text string, buttons []Button) error {
	if t.buttonsContentSid != "" {
		params := &twilioApi.CreateMessageParams{}
		params.SetFrom(t.fromAddr(channelID))
		params.SetTo(whatsappAddr(to))
		params.SetContentSid(t.buttonsContentSid)

		vars := map[string]string{"1": text}
		for i, b := range buttons {
			vars[fmt.Sprintf("%d", i+2)] = b.Title
		}
		variablesJSON, err := json.Marshal(vars)
		if err == nil {
			params.SetContentVariables(string(variablesJSON))
			if err := t.createMessage(params); err == nil {
				logrus.Debugf("✅ WhatsApp buttons sent to %s", to)
				return nil
			}
			logrus.Warnf("⚠️ Interactive send to %s failed, falling back to text", to)
		}
	}

	return t.SendText(channelID, to, buttonsAsText(text, buttons))
}

// FetchMessageBody loads the body of a previously sent message. The
// webhook uses it to recover the text a quote-reply refers to.
func (t *TwilioMessenger) FetchMessageBody(sid string) (string, error) {
	out, err := t.breaker.Execute(func() (interface{}, error) {
		return t.client.Api.FetchMessage(sid, &twilioApi.FetchMessageParams{})
	})
	if err != nil {
		return "", err
	}
	msg, ok := out.(*twilioApi.ApiV2010Message)
	if !ok || msg.Body == nil {
		return "", nil
	}
	return *msg.Body, nil
}

// buttonsAsText renders quick-reply options into the message body for
// transports or failures where interactive messages are unavailable.
func buttonsAsText(text string, buttons []Button) string {
	if len(buttons) == 0 {
		return text
	}
	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString("\n")
	for _, b := range buttons {
		sb.WriteString(fmt.Sprintf("\n▫️ %s", b.Title))
	}
	return sb.String()
}
