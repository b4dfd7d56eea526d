package dispatch

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"github.com/moniquedpoliveira/licito/internal/domain"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"(11) 98888-0001", "5511988880001"},
		{"+55 11 98888-0001", "5511988880001"},
		{"5511988880001", "5511988880001"},
		{"  ", ""},
		{"sem telefone", ""},
		{"", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizePhone(tc.in, ""), tc.in)
	}
	assert.Equal(t, "351912345678", NormalizePhone("912 345 678", "351"))
}

func TestResolveContactsPrefersLinkedUser(t *testing.T) {
	c := domain.Contrato{
		EmailGestor:       "gestor@orgao.gov.br",
		TelefoneGestor:    "11 90000-0001",
		EmailFiscalAdm:    "antigo.adm@orgao.gov.br",
		TelefoneFiscalAdm: "11 90000-0002",
		EmailFiscalTec:    "tec@orgao.gov.br",
		FiscalAdministrativo: &domain.User{
			Email:    "novo.adm@orgao.gov.br",
			Whatsapp: "",
		},
		FiscalTecnico: &domain.User{Whatsapp: "11 90000-0003"},
	}
	cs := ResolveContacts(c)
	assert.Equal(t, []string{"gestor@orgao.gov.br", "novo.adm@orgao.gov.br", "tec@orgao.gov.br"}, cs.Emails())
	assert.Equal(t, []string{"5511900000001", "5511900000002", "5511900000003"}, cs.Phones(DefaultCountryCode))
}

func TestResolveContactsCollapsesDuplicates(t *testing.T) {
	c := domain.Contrato{
		EmailGestor:       "mesmo@orgao.gov.br",
		EmailFiscalAdm:    "mesmo@orgao.gov.br",
		TelefoneGestor:    "(11) 98888-0001",
		TelefoneFiscalAdm: "5511988880001",
		TelefoneFiscalTec: "+55 11 98888 0001",
	}
	cs := ResolveContacts(c)
	assert.Equal(t, []string{"mesmo@orgao.gov.br"}, cs.Emails())
	assert.Equal(t, []string{"5511988880001"}, cs.Phones(DefaultCountryCode))
}

func phoneGen() gopter.Gen {
	return gen.SliceOf(gen.OneGenOf(
		gen.NumString(),
		gen.NumString().Map(func(s string) string { return "(" + s + ") " + s }),
		gen.NumString().Map(func(s string) string { return "+55 " + s }),
		gen.Const(""),
		gen.AlphaString(),
	))
}

func TestPhoneProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("normalization is idempotent", prop.ForAll(
		func(p string) bool {
			n := NormalizePhone(p, DefaultCountryCode)
			return NormalizePhone(n, DefaultCountryCode) == n
		},
		gen.AnyString(),
	))

	properties.Property("normalized numbers are digits with country code", prop.ForAll(
		func(p string) bool {
			n := NormalizePhone(p, DefaultCountryCode)
			if n == "" {
				return true
			}
			return strings.Trim(n, "0123456789") == "" && strings.HasPrefix(n, DefaultCountryCode)
		},
		gen.AnyString(),
	))

	properties.Property("dedup yields unique normalized values", prop.ForAll(
		func(in []string) bool {
			out := DedupPhones(in, DefaultCountryCode)
			seen := map[string]bool{}
			for _, p := range out {
				if p == "" || seen[p] || NormalizePhone(p, DefaultCountryCode) != p {
					return false
				}
				seen[p] = true
			}
			for _, p := range in {
				if n := NormalizePhone(p, DefaultCountryCode); n != "" && !seen[n] {
					return false
				}
			}
			return true
		},
		phoneGen(),
	))

	properties.Property("dedup is idempotent", prop.ForAll(
		func(in []string) bool {
			once := DedupPhones(in, DefaultCountryCode)
			return assert.ObjectsAreEqual(once, DedupPhones(once, DefaultCountryCode))
		},
		phoneGen(),
	))

	properties.TestingRun(t)
}

func TestEmailDedupProperties(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("keeps first occurrences of non-empty addresses in order", prop.ForAll(
		func(in []string) bool {
			out := DedupEmails(in)
			var want []string
			seen := map[string]bool{}
			for _, e := range in {
				if e != "" && !seen[e] {
					seen[e] = true
					want = append(want, e)
				}
			}
			if len(want) == 0 {
				return len(out) == 0
			}
			return assert.ObjectsAreEqual(want, out)
		},
		gen.SliceOf(gen.OneGenOf(gen.Const(""), gen.Const("a@x.gov.br"), gen.Const("b@x.gov.br"), gen.AlphaString())),
	))

	properties.TestingRun(t)
}
