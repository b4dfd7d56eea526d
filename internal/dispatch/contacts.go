package dispatch

import (
	"strings"

	"github.com/moniquedpoliveira/licito/internal/domain"
)

// DefaultCountryCode is prefixed to phone numbers that lack it.
const DefaultCountryCode = "55"

// Contact is the resolved reach of one responsible party.
type Contact struct {
	Role  string
	Email string
	Phone string
}

// Contacts are the responsible parties of a contract in fixed order:
// manager, administrative inspector, technical inspector.
type Contacts []Contact

// ResolveContacts computes one contact per responsible role. A linked user
// record wins over the legacy free-text fields, field by field.
func ResolveContacts(c domain.Contrato) Contacts {
	return Contacts{
		{Role: "gestor", Email: c.EmailGestor, Phone: c.TelefoneGestor},
		resolveFiscal("fiscal_administrativo", c.FiscalAdministrativo, c.EmailFiscalAdm, c.TelefoneFiscalAdm),
		resolveFiscal("fiscal_tecnico", c.FiscalTecnico, c.EmailFiscalTec, c.TelefoneFiscalTec),
	}
}

func resolveFiscal(role string, u *domain.User, legacyEmail, legacyPhone string) Contact {
	ct := Contact{Role: role, Email: legacyEmail, Phone: legacyPhone}
	if u == nil {
		return ct
	}
	if u.Email != "" {
		ct.Email = u.Email
	}
	if u.Whatsapp != "" {
		ct.Phone = u.Whatsapp
	}
	return ct
}

// Emails returns the non-empty addresses with exact duplicates removed,
// first occurrence order kept.
func (cs Contacts) Emails() []string {
	raw := make([]string, 0, len(cs))
	for _, c := range cs {
		raw = append(raw, c.Email)
	}
	return DedupEmails(raw)
}

// Phones returns normalized destinations with duplicates removed.
func (cs Contacts) Phones(countryCode string) []string {
	raw := make([]string, 0, len(cs))
	for _, c := range cs {
		raw = append(raw, c.Phone)
	}
	return DedupPhones(raw, countryCode)
}

func DedupEmails(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

// DedupPhones drops blank values, normalizes the rest and removes
// duplicates. Two spellings of one number collapse to a single entry.
func DedupPhones(in []string, countryCode string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, p := range in {
		n := NormalizePhone(p, countryCode)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// NormalizePhone keeps only digits and prefixes countryCode when absent.
// Blank or digitless input yields "".
func NormalizePhone(p, countryCode string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	var b strings.Builder
	for _, r := range p {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(digits, countryCode) {
		return digits
	}
	return countryCode + digits
}
