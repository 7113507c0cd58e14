package config

import (
	"time"

	"github.com/caarlos0/env"
)

// Config holds everything read from the environment at startup. Values come
// from the process environment; main loads a .env file first in local
// development.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	TwilioAccountSID        string `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken         string `env:"TWILIO_AUTH_TOKEN"`
	TwilioWhatsAppFrom      string `env:"TWILIO_WHATSAPP_FROM"`
	TwilioButtonsContentSid string `env:"TWILIO_BUTTONS_CONTENT_SID"`

	UseMemoryStore           bool   `env:"USE_MEMORY_STORE" envDefault:"false"`
	DisableWebhookValidation bool   `env:"DISABLE_WEBHOOK_VALIDATION" envDefault:"false"`
	AdminAPIKey              string `env:"ADMIN_API_KEY"`

	InactivityWarnMinutes int `env:"INACTIVITY_WARN_MINUTES" envDefault:"10"`
	InactivityKillMinutes int `env:"INACTIVITY_KILL_MINUTES" envDefault:"5"`
	OrderReminderMinutes  int `env:"ORDER_REMINDER_MINUTES" envDefault:"120"`
}

// New parses the environment into a Config
func New() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// WarnAfter is how long a session may sit idle before the warning message
func (c *Config) WarnAfter() time.Duration {
	return time.Duration(c.InactivityWarnMinutes) * time.Minute
}

// KillAfter is how long after the warning the session is terminated
func (c *Config) KillAfter() time.Duration {
	return time.Duration(c.InactivityKillMinutes) * time.Minute
}

// RemindAfter is how long an order may sit unconfirmed before its merchant
// gets a nudge
func (c *Config) RemindAfter() time.Duration {
	return time.Duration(c.OrderReminderMinutes) * time.Minute
}
