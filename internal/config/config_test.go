package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Catalog.Administrativa, 8)
	assert.Len(t, cfg.Catalog.Tecnica, 9)
	assert.Len(t, cfg.Users, 5)
	assert.Equal(t, 15*time.Second, cfg.Channels.SendTimeout)
	assert.Equal(t, "55", cfg.Channels.WhatsApp.CountryCode)
	assert.Equal(t, 30*time.Second, cfg.Outbox.Interval)
	for _, u := range cfg.Users {
		assert.True(t, u.IsActive(), u.Email)
	}
}

func TestValidateRejects(t *testing.T) {
	off := false
	cases := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"relative app url", func(c *Config) { c.App.URL = "licito.local" }, "app.url"},
		{"empty catalog entry", func(c *Config) { c.Catalog.Tecnica = append(c.Catalog.Tecnica, " ") }, "is empty"},
		{"duplicate catalog entry", func(c *Config) { c.Catalog.Tecnica = append(c.Catalog.Tecnica, c.Catalog.Tecnica[0]) }, "duplicate entry"},
		{"unknown role", func(c *Config) { c.Users[0].Role = "AUDITOR" }, "users[0]"},
		{"duplicate email", func(c *Config) {
			c.Users = append(c.Users, UserSeed{Name: "X", Email: c.Users[0].Email, Role: "GESTOR_CONTRATO", Active: &off})
		}, "duplicates email"},
		{"unknown fiscal", func(c *Config) {
			c.Contratos = []ContratoSeed{{Numero: "1/2025", Objeto: "o", FiscalTecnico: "ninguem@x"}}
		}, "unknown user"},
		{"bad vigencia", func(c *Config) {
			c.Contratos = []ContratoSeed{{Numero: "1/2025", Objeto: "o", VigenciaTermino: "31/12/2025"}}
		}, "vigencia_termino"},
		{"contrato without objeto", func(c *Config) { c.Contratos = []ContratoSeed{{Numero: "1/2025"}} }, "requires numero"},
		{"bad country code", func(c *Config) { c.Channels.WhatsApp.CountryCode = "+55" }, "country_code"},
		{"negative timeout", func(c *Config) { c.Channels.SendTimeout = -time.Second }, "send_timeout"},
		{"webhook without url", func(c *Config) { c.Webhooks = []WebhookConfig{{Events: []string{"*"}}} }, "webhooks[0]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestFiscalReferenceByIDOrEmail(t *testing.T) {
	cfg := Default()
	cfg.Users = append(cfg.Users, UserSeed{ID: "u-tec", Name: "Tec 2", Email: "tec2@licito.gov.br", Role: "FISCAL_TECNICO"})
	cfg.Contratos = []ContratoSeed{{
		Numero:               "7/2025",
		Objeto:               "Limpeza",
		FiscalAdministrativo: "fiscal.adm@licito.gov.br",
		FiscalTecnico:        "u-tec",
		VigenciaTermino:      "2025-12-31",
	}}
	assert.NoError(t, cfg.Validate())
}

func TestFromYAML(t *testing.T) {
	cfg, err := FromYAML([]byte(`
users:
  - name: Fiscal
    email: f@x.gov.br
    role: FISCAL_TECNICO
    active: false
channels:
  whatsapp:
    rate_per_second: 2
`))
	require.NoError(t, err)
	require.Len(t, cfg.Users, 1)
	assert.False(t, cfg.Users[0].IsActive())
	assert.Equal(t, 2.0, cfg.Channels.WhatsApp.RatePerSecond)

	_, err = FromYAML([]byte("users: ["))
	assert.ErrorContains(t, err, "invalid config yaml")
	_, err = FromYAML([]byte("users:\n  - name: x\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg, "missing file falls back to defaults")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "licito.yml"), []byte("app:\n  url: https://licito.example\n"), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://licito.example", cfg.App.URL)
	assert.Empty(t, cfg.Users)

	require.NoError(t, os.WriteFile(Path(dir), []byte(GenerateDefault()), 0o644))
	cfg, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
