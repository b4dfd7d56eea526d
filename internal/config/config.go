package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moniquedpoliveira/licito/internal/domain"
)

// Config models licito.yml. Secrets (provider API keys, JWT secret) are not
// read from the file; they come from the environment.
type Config struct {
	App struct {
		URL string `yaml:"url"`
	} `yaml:"app"`
	Catalog struct {
		Administrativa []string `yaml:"administrativa"`
		Tecnica        []string `yaml:"tecnica"`
	} `yaml:"catalog"`
	Users     []UserSeed     `yaml:"users"`
	Contratos []ContratoSeed `yaml:"contratos"`
	Channels  struct {
		SendTimeout time.Duration  `yaml:"send_timeout"`
		Email       EmailConfig    `yaml:"email"`
		WhatsApp    WhatsAppConfig `yaml:"whatsapp"`
	} `yaml:"channels"`
	Outbox struct {
		Interval time.Duration `yaml:"interval"`
	} `yaml:"outbox"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type UserSeed struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Whatsapp string `yaml:"whatsapp"`
	Role     string `yaml:"role"`
	Active   *bool  `yaml:"active"`
}

// IsActive defaults to true when unset.
func (u UserSeed) IsActive() bool {
	return u.Active == nil || *u.Active
}

type ContratoSeed struct {
	Numero               string  `yaml:"numero"`
	Objeto               string  `yaml:"objeto"`
	Contratada           string  `yaml:"contratada"`
	Gestor               string  `yaml:"gestor"`
	EmailGestor          string  `yaml:"email_gestor"`
	TelefoneGestor       string  `yaml:"telefone_gestor"`
	ValorTotal           float64 `yaml:"valor_total"`
	VigenciaTermino      string  `yaml:"vigencia_termino"`
	FiscalAdministrativo string  `yaml:"fiscal_administrativo"`
	FiscalTecnico        string  `yaml:"fiscal_tecnico"`
	EmailFiscalAdm       string  `yaml:"email_fiscal_adm"`
	TelefoneFiscalAdm    string  `yaml:"telefone_fiscal_adm"`
	EmailFiscalTec       string  `yaml:"email_fiscal_tec"`
	TelefoneFiscalTec    string  `yaml:"telefone_fiscal_tec"`
}

type EmailConfig struct {
	Endpoint string `yaml:"endpoint"`
	From     string `yaml:"from"`
}

type WhatsAppConfig struct {
	Endpoint      string        `yaml:"endpoint"`
	CountryCode   string        `yaml:"country_code"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
	TypingDelay   time.Duration `yaml:"typing_delay"`
	MaxParallel   int           `yaml:"max_parallel"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace, falling back to Default
// when the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.App.URL != "" {
		if u, err := url.Parse(c.App.URL); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config.app.url must be an absolute URL")
		}
	}
	for typ, texts := range map[domain.ChecklistType][]string{domain.Administrativa: c.Catalog.Administrativa, domain.Tecnica: c.Catalog.Tecnica} {
		seen := map[string]struct{}{}
		for i, t := range texts {
			if strings.TrimSpace(t) == "" {
				return fmt.Errorf("catalog %s entry %d is empty", typ, i)
			}
			if _, ok := seen[t]; ok {
				return fmt.Errorf("catalog %s has duplicate entry %q", typ, t)
			}
			seen[t] = struct{}{}
		}
	}
	emails := map[string]struct{}{}
	ids := map[string]struct{}{}
	for i, u := range c.Users {
		if u.Email == "" || u.Name == "" {
			return fmt.Errorf("users[%d] requires name and email", i)
		}
		if _, err := domain.ParseRole(u.Role); err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
		if _, ok := emails[u.Email]; ok {
			return fmt.Errorf("users[%d] duplicates email %s", i, u.Email)
		}
		emails[u.Email] = struct{}{}
		if u.ID != "" {
			ids[u.ID] = struct{}{}
		}
	}
	for i, ct := range c.Contratos {
		if ct.Numero == "" || ct.Objeto == "" {
			return fmt.Errorf("contratos[%d] requires numero and objeto", i)
		}
		for _, ref := range []string{ct.FiscalAdministrativo, ct.FiscalTecnico} {
			if ref == "" {
				continue
			}
			_, byID := ids[ref]
			_, byEmail := emails[ref]
			if !byID && !byEmail {
				return fmt.Errorf("contratos[%d] references unknown user %s", i, ref)
			}
		}
		if ct.VigenciaTermino != "" {
			if _, err := time.Parse("2006-01-02", ct.VigenciaTermino); err != nil {
				return fmt.Errorf("contratos[%d].vigencia_termino must be YYYY-MM-DD", i)
			}
		}
	}
	if c.Channels.SendTimeout < 0 {
		return fmt.Errorf("config.channels.send_timeout must not be negative")
	}
	if cc := c.Channels.WhatsApp.CountryCode; cc != "" && strings.Trim(cc, "0123456789") != "" {
		return fmt.Errorf("config.channels.whatsapp.country_code must be digits")
	}
	if c.Channels.WhatsApp.RatePerSecond < 0 {
		return fmt.Errorf("config.channels.whatsapp.rate_per_second must not be negative")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "licito.yml")
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `app:
  url: http://localhost:3000

catalog:
  administrativa:
    - Acompanhar o cumprimento dos prazos contratuais
    - Verificar a regularidade da documentação contratual
    - Controlar a conformidade dos pagamentos
    - Registrar e acompanhar a execução de termos aditivos
    - Analisar a regularidade das garantias contratuais
    - Controlar o cumprimento de obrigações trabalhistas e previdenciárias
    - Fiscalizar o cumprimento de normas de transparência
    - Verificar a adequação dos termos de encerramento contratual
  tecnica:
    - Realizar o recebimento provisório dos itens
    - Inspecionar fisicamente os bens
    - Verificar certificados e garantias
    - Realizar testes de funcionamento (quando aplicável)
    - Verificar o prazo de validade (para produtos perecíveis ou de consumo)
    - Acompanhar o transporte e as condições de armazenamento
    - Aceitar ou rejeitar os bens
    - Registrar os itens no controle de estoque (quando aplicável)
    - Monitorar o pós-entrega

users:
  - name: Administrador do Sistema
    email: admin@licito.gov.br
    role: ADMINISTRADOR
  - name: Gestor de Contratos
    email: gestor@licito.gov.br
    role: GESTOR_CONTRATO
  - name: Fiscal Administrativo
    email: fiscal.adm@licito.gov.br
    role: FISCAL_ADMINISTRATIVO
  - name: Fiscal Técnico
    email: fiscal.tec@licito.gov.br
    role: FISCAL_TECNICO
  - name: Ordenador de Despesas
    email: ordenador@licito.gov.br
    role: ORDENADOR_DESPESAS

channels:
  send_timeout: 15s
  email:
    endpoint: https://api.resend.com/emails
    from: "Lícito <no-reply@email.pxel.com.br>"
  whatsapp:
    endpoint: ""
    country_code: "55"
    rate_per_second: 5
    burst: 1
    typing_delay: 1200ms

outbox:
  interval: 30s
`
