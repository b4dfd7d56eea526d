package dispatch

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/moniquedpoliveira/licito/internal/domain"
)

const defaultUpdateType = "Notificação de Contrato"

func (u Update) withDefaults() Update {
	if strings.TrimSpace(u.Type) == "" {
		u.Type = defaultUpdateType
	}
	return u
}

// SystemLink points at the contract page, or "" without an app URL.
func SystemLink(c domain.Contrato, appURL string) string {
	if appURL == "" {
		return ""
	}
	return strings.TrimSuffix(appURL, "/") + "/contratos/" + c.ID
}

func EmailSubject(c domain.Contrato, u Update) string {
	return fmt.Sprintf("Lícito - %s: %s", u.withDefaults().Type, c.NumeroContrato)
}

// PlainMessage renders the text body shared by WhatsApp and the plain part
// of emails.
func PlainMessage(c domain.Contrato, u Update, appURL string) string {
	u = u.withDefaults()
	link := SystemLink(c, appURL)
	if link == "" {
		link = "Link para o sistema não disponível"
	}
	parts := []string{
		"*🔔 Notificação de Atualização Contratual*",
		fmt.Sprintf("O contrato *%s* (%s) teve uma atualização.", c.NumeroContrato, c.Objeto),
		"",
		"*Tipo de Atualização:*",
		u.Type,
		"",
		"*Descrição:*",
		u.Description,
		"",
		"*Ação Necessária:*",
		u.ActionRequired,
		"",
		"Para mais detalhes, acesse o sistema:",
		link,
		"",
		"---",
		"_Esta é uma mensagem automática, por favor não responda._",
	}
	return strings.Join(parts, "\n")
}

var emailTemplate = template.Must(template.New("contract-update").Parse(`<!doctype html>
<html lang="pt-BR"><body style="font-family:sans-serif">
<h2>Atualização no contrato {{.Numero}}</h2>
<p><strong>{{.Objeto}}</strong></p>
<table>
<tr><td>Contratada</td><td>{{.Contratada}}</td></tr>
<tr><td>Gestor</td><td>{{.Gestor}}</td></tr>
<tr><td>Fiscais</td><td>{{.Fiscais}}</td></tr>
<tr><td>Valor</td><td>{{.Valor}}</td></tr>
<tr><td>Situação</td><td>{{.Status}}</td></tr>
<tr><td>Data</td><td>{{.Data}}</td></tr>
</table>
<h3>{{.Tipo}}</h3>
<p>{{.Descricao}}</p>
{{if .Acao}}<p><strong>Ação necessária:</strong> {{.Acao}}</p>{{end}}
{{if .Link}}<p><a href="{{.Link}}">Acessar o sistema</a></p>{{end}}
<hr><small>Esta é uma mensagem automática, por favor não responda.</small>
</body></html>`))

// EmailHTML renders the HTML part of the contract update email.
func EmailHTML(c domain.Contrato, u Update, appURL string) string {
	return renderEmailHTML(c, u, appURL, time.Now())
}

func renderEmailHTML(c domain.Contrato, u Update, appURL string, now time.Time) string {
	u = u.withDefaults()
	var fiscais []string
	for _, f := range []*domain.User{c.FiscalAdministrativo, c.FiscalTecnico} {
		if f != nil && f.Name != "" {
			fiscais = append(fiscais, f.Name)
		}
	}
	inspectors := strings.Join(fiscais, ", ")
	if inspectors == "" {
		inspectors = "Não informado"
	}
	data := map[string]string{
		"Numero":     c.NumeroContrato,
		"Objeto":     c.Objeto,
		"Contratada": c.NomeContratada,
		"Gestor":     c.GestorContrato,
		"Fiscais":    inspectors,
		"Valor":      FormatBRL(c.ValorTotal),
		"Status":     c.Status(now),
		"Data":       now.Format("02/01/2006"),
		"Tipo":       u.Type,
		"Descricao":  u.Description,
		"Acao":       u.ActionRequired,
		"Link":       SystemLink(c, appURL),
	}
	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, data); err != nil {
		return PlainMessage(c, u, appURL)
	}
	return buf.String()
}

var ptBR = message.NewPrinter(language.BrazilianPortuguese)

// FormatBRL formats v as Brazilian currency, e.g. "R$ 1.234,56".
func FormatBRL(v float64) string {
	return ptBR.Sprint(currency.Symbol(currency.BRL.Amount(v)))
}
