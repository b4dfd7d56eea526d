// Package dispatch delivers contract updates to the responsible parties of
// a contract over email and WhatsApp.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/moniquedpoliveira/licito/internal/domain"
	"github.com/moniquedpoliveira/licito/internal/telemetry"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

func ParseChannel(s string) (Channel, error) {
	switch c := Channel(s); c {
	case ChannelEmail, ChannelWhatsApp:
		return c, nil
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

const (
	NoEmailContactsMessage = "Emails de responsáveis não encontrados."
	NoPhoneContactsMessage = "Números de telefone de responsáveis não encontrados."
)

// Email is one outbound message addressed to every recipient in To.
type Email struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// EmailSender delivers a single multi-recipient email.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

// MessageSender delivers a text message to one phone number.
type MessageSender interface {
	SendText(ctx context.Context, phone, body string) error
}

// Update describes a contract change to announce.
type Update struct {
	Type           string `json:"type,omitempty"`
	Description    string `json:"description"`
	ActionRequired string `json:"action_required,omitempty"`
}

// Attempt is the outcome for one destination.
type Attempt struct {
	Destination string  `json:"destination"`
	Channel     Channel `json:"channel"`
	Success     bool    `json:"success"`
	Message     string  `json:"message,omitempty"`
}

// Result aggregates a channel dispatch. NoContacts distinguishes "nothing
// to send" from attempted deliveries that failed.
type Result struct {
	Channel    Channel   `json:"channel"`
	Success    bool      `json:"success"`
	NoContacts bool      `json:"no_contacts"`
	Message    string    `json:"message"`
	Attempts   []Attempt `json:"attempts"`
}

// Failed returns the attempts that did not succeed.
func (r Result) Failed() []Attempt {
	var out []Attempt
	for _, a := range r.Attempts {
		if !a.Success {
			out = append(out, a)
		}
	}
	return out
}

type Config struct {
	EmailFrom   string
	AppURL      string
	CountryCode string
	// SendTimeout bounds each destination independently.
	SendTimeout time.Duration
	// MaxParallel caps concurrent WhatsApp sends; zero means one goroutine
	// per destination.
	MaxParallel int
}

type Dispatcher struct {
	Email    EmailSender
	Messages MessageSender
	Config   Config
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

func New(email EmailSender, messages MessageSender, cfg Config, metrics *telemetry.Metrics) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = DefaultCountryCode
	}
	return &Dispatcher{
		Email:    email,
		Messages: messages,
		Config:   cfg,
		Metrics:  metrics,
		Logger:   slog.Default().With("component", "dispatch"),
	}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// SendEmail sends one message addressed to every deduplicated contract
// email. Caller cancellation does not interrupt a started dispatch.
func (d *Dispatcher) SendEmail(ctx context.Context, c domain.Contrato, u Update) Result {
	ctx = context.WithoutCancel(ctx)
	res := Result{Channel: ChannelEmail}
	to := ResolveContacts(c).Emails()
	if len(to) == 0 {
		res.NoContacts = true
		res.Message = NoEmailContactsMessage
		d.logger().WarnContext(ctx, "no email contacts", "contrato", c.NumeroContrato)
		return res
	}
	if d.Email == nil {
		return failAll(res, ChannelEmail, to, "email sender not configured")
	}
	u = u.withDefaults()
	msg := Email{
		From:    d.Config.EmailFrom,
		To:      to,
		Subject: EmailSubject(c, u),
		Text:    PlainMessage(c, u, d.Config.AppURL),
		HTML:    EmailHTML(c, u, d.Config.AppURL),
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.Config.SendTimeout)
	err := d.Email.Send(sendCtx, msg)
	cancel()
	for _, addr := range to {
		a := Attempt{Destination: addr, Channel: ChannelEmail, Success: err == nil}
		if err != nil {
			a.Message = err.Error()
		}
		res.Attempts = append(res.Attempts, a)
		d.Metrics.DispatchAttempt(ctx, string(ChannelEmail), err == nil)
	}
	if err != nil {
		res.Message = "Erro ao enviar emails de notificação."
		d.logger().ErrorContext(ctx, "email dispatch failed", "contrato", c.NumeroContrato, "recipients", len(to), "error", err)
		return res
	}
	res.Success = true
	res.Message = "Emails de notificação enviados."
	d.logger().InfoContext(ctx, "email dispatched", "contrato", c.NumeroContrato, "recipients", len(to))
	return res
}

// SendWhatsApp sends one message per deduplicated phone. Sends run
// concurrently, each under its own timeout, and all outcomes are collected
// before aggregation.
func (d *Dispatcher) SendWhatsApp(ctx context.Context, c domain.Contrato, u Update) Result {
	ctx = context.WithoutCancel(ctx)
	res := Result{Channel: ChannelWhatsApp}
	phones := ResolveContacts(c).Phones(d.Config.CountryCode)
	if len(phones) == 0 {
		res.NoContacts = true
		res.Message = NoPhoneContactsMessage
		d.logger().WarnContext(ctx, "no whatsapp contacts", "contrato", c.NumeroContrato)
		return res
	}
	if d.Messages == nil {
		return failAll(res, ChannelWhatsApp, phones, "message sender not configured")
	}
	body := PlainMessage(c, u.withDefaults(), d.Config.AppURL)

	workers := d.Config.MaxParallel
	if workers <= 0 || workers > len(phones) {
		workers = len(phones)
	}
	mapper := iter.Mapper[string, Attempt]{MaxGoroutines: workers}
	res.Attempts = mapper.Map(phones, func(phone *string) Attempt {
		return d.sendOne(ctx, *phone, body)
	})

	failed := len(res.Failed())
	res.Success = failed == 0
	if res.Success {
		res.Message = "Mensagens de WhatsApp enviadas com sucesso."
	} else {
		res.Message = "Algumas mensagens de WhatsApp não puderam ser enviadas."
	}
	d.logger().InfoContext(ctx, "whatsapp dispatched", "contrato", c.NumeroContrato, "destinations", len(phones), "failed", failed)
	return res
}

func (d *Dispatcher) sendOne(ctx context.Context, phone, body string) (a Attempt) {
	a = Attempt{Destination: phone, Channel: ChannelWhatsApp}
	defer func() {
		if r := recover(); r != nil {
			a.Success = false
			a.Message = fmt.Sprintf("panic: %v", r)
		}
		d.Metrics.DispatchAttempt(ctx, string(ChannelWhatsApp), a.Success)
	}()
	sendCtx, cancel := context.WithTimeout(ctx, d.Config.SendTimeout)
	defer cancel()
	if err := d.Messages.SendText(sendCtx, phone, body); err != nil {
		a.Message = err.Error()
		d.logger().WarnContext(ctx, "whatsapp destination failed", "phone", phone, "error", err)
		return a
	}
	a.Success = true
	return a
}

// Send runs the requested channels independently and returns one result
// per channel in request order.
func (d *Dispatcher) Send(ctx context.Context, c domain.Contrato, u Update, channels ...Channel) []Result {
	if len(channels) == 0 {
		channels = []Channel{ChannelEmail, ChannelWhatsApp}
	}
	out := make([]Result, 0, len(channels))
	for _, ch := range channels {
		switch ch {
		case ChannelEmail:
			out = append(out, d.SendEmail(ctx, c, u))
		case ChannelWhatsApp:
			out = append(out, d.SendWhatsApp(ctx, c, u))
		}
	}
	return out
}

func failAll(res Result, ch Channel, dests []string, reason string) Result {
	for _, dst := range dests {
		res.Attempts = append(res.Attempts, Attempt{Destination: dst, Channel: ch, Message: reason})
	}
	res.Message = reason
	return res
}
