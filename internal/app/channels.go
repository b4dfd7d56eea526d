package app

import (
	"github.com/moniquedpoliveira/licito/internal/channels/email"
	"github.com/moniquedpoliveira/licito/internal/channels/whatsapp"
	"github.com/moniquedpoliveira/licito/internal/config"
	"github.com/moniquedpoliveira/licito/internal/dispatch"
	"github.com/moniquedpoliveira/licito/internal/telemetry"
)

// Secrets are provider credentials supplied through the environment.
type Secrets struct {
	EmailAPIKey    string
	WhatsAppAPIKey string
}

// NewDispatcher builds the contract dispatcher with HTTP channel clients
// configured from cfg. A channel without an endpoint is left unset and
// reports every destination as failed.
func NewDispatcher(cfg *config.Config, secrets Secrets, metrics *telemetry.Metrics) *dispatch.Dispatcher {
	ch := cfg.Channels
	var mail dispatch.EmailSender
	if ch.Email.Endpoint != "" {
		mail = email.New(email.Config{Endpoint: ch.Email.Endpoint, APIKey: secrets.EmailAPIKey, Timeout: ch.SendTimeout})
	}
	var msgs dispatch.MessageSender
	if ch.WhatsApp.Endpoint != "" {
		msgs = whatsapp.New(whatsapp.Config{
			Endpoint:      ch.WhatsApp.Endpoint,
			APIKey:        secrets.WhatsAppAPIKey,
			Timeout:       ch.SendTimeout,
			RatePerSecond: ch.WhatsApp.RatePerSecond,
			Burst:         ch.WhatsApp.Burst,
			TypingDelay:   ch.WhatsApp.TypingDelay,
		})
	}
	return dispatch.New(mail, msgs, dispatch.Config{
		EmailFrom:   ch.Email.From,
		AppURL:      cfg.App.URL,
		CountryCode: ch.WhatsApp.CountryCode,
		SendTimeout: ch.SendTimeout,
		MaxParallel: ch.WhatsApp.MaxParallel,
	}, metrics)
}
