package engine_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moniquedpoliveira/licito/internal/app"
	"github.com/moniquedpoliveira/licito/internal/config"
	"github.com/moniquedpoliveira/licito/internal/db"
	"github.com/moniquedpoliveira/licito/internal/dispatch"
	"github.com/moniquedpoliveira/licito/internal/domain"
	"github.com/moniquedpoliveira/licito/internal/engine"
	"github.com/moniquedpoliveira/licito/internal/events"
	"github.com/moniquedpoliveira/licito/internal/migrate"
	"github.com/moniquedpoliveira/licito/internal/repo"
)

const numero = "042/2025"

type testEnv struct {
	Engine     engine.Engine
	Ctx        context.Context
	Cfg        *config.Config
	Workspace  string
	ContratoID string
}

func (env testEnv) user(t *testing.T, email string) string {
	t.Helper()
	for _, u := range env.Cfg.Users {
		if u.Email == email {
			return app.UserID(u)
		}
	}
	t.Fatalf("no seeded user %s", email)
	return ""
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	cfg := config.Default()
	cfg.Users = append(cfg.Users,
		config.UserSeed{Name: "Fiscal Administrativo 2", Email: "fiscal.adm2@licito.gov.br", Role: string(domain.RoleFiscalAdministrativo)},
		config.UserSeed{Name: "Fiscal Inativo", Email: "inativo@licito.gov.br", Role: string(domain.RoleFiscalAdministrativo), Active: boolPtr(false)},
	)
	cfg.Contratos = []config.ContratoSeed{{
		Numero:               numero,
		Objeto:               "Serviços de limpeza",
		FiscalAdministrativo: "fiscal.adm@licito.gov.br",
		FiscalTecnico:        "fiscal.tec@licito.gov.br",
	}}
	require.NoError(t, cfg.Validate())

	eng := engine.New(conn, cfg).WithClock(func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) })
	ctx := context.Background()
	_, err = app.Seed(ctx, conn, cfg, eng.Catalog)
	require.NoError(t, err)
	return testEnv{Engine: eng, Ctx: ctx, Cfg: cfg, Workspace: dir, ContratoID: app.ContratoID(numero)}
}

func boolPtr(b bool) *bool { return &b }

func TestEnsureItemsProvisionsOncePerTemplate(t *testing.T) {
	env := newTestEnv(t)

	items, err := env.Engine.EnsureItems(env.Ctx, env.ContratoID, domain.Tecnica)
	require.NoError(t, err)
	require.Len(t, items, len(env.Cfg.Catalog.Tecnica))
	for i, it := range items {
		assert.Equal(t, domain.StatusPendente, it.Status)
		require.NotNil(t, it.Template)
		assert.Equal(t, env.Cfg.Catalog.Tecnica[i], it.Template.Text, "items follow catalog order")
	}

	again, err := env.Engine.EnsureItems(env.Ctx, env.ContratoID, domain.Tecnica)
	require.NoError(t, err)
	require.Len(t, again, len(items))
	assert.Equal(t, items[0].ID, again[0].ID)

	adm, err := env.Engine.EnsureItems(env.Ctx, env.ContratoID, domain.Administrativa)
	require.NoError(t, err)
	assert.Len(t, adm, len(env.Cfg.Catalog.Administrativa))
}

func TestEnsureItemsConcurrentCallsCreateNoDuplicates(t *testing.T) {
	env := newTestEnv(t)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.Engine.EnsureItems(env.Ctx, env.ContratoID, domain.Administrativa)
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	p, err := env.Engine.Progress(env.Ctx, env.ContratoID, domain.Administrativa)
	require.NoError(t, err)
	assert.Equal(t, len(env.Cfg.Catalog.Administrativa), p.Total)

	evts, err := env.Engine.Events.List(env.Ctx, env.ContratoID, 0, 500)
	require.NoError(t, err)
	provisioned := 0
	for _, e := range evts {
		if e.Type == events.ItemProvisioned {
			provisioned++
		}
	}
	assert.Equal(t, len(env.Cfg.Catalog.Administrativa), provisioned)
}

func TestEnsureItemsUnknownContract(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.EnsureItems(env.Ctx, "missing", domain.Tecnica)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.EnsureItems(env.Ctx, env.ContratoID, domain.ChecklistType("OUTRA"))
	var ve engine.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestTransitionRecordsHistory(t *testing.T) {
	env := newTestEnv(t)
	items, err := env.Engine.EnsureItems(env.Ctx, env.ContratoID, domain.Administrativa)
	require.NoError(t, err)
	item := items[0]
	actor := env.user(t, "gestor@licito.gov.br")

	steps := []struct {
		status domain.ItemStatus
		obs    string
	}{
		{domain.StatusEmAndamento, "Iniciado"},
		{domain.StatusNaoConforme, "Documento vencido"},
		{domain.StatusConcluido, "Regularizado"},
		{domain.StatusPendente, "Reaberto"},
	}
	for _, s := range steps {
		got, err := env.Engine.Transition(env.Ctx, engine.TransitionRequest{ItemID: item.ID, Status: s.status, Observation: s.obs, ActorID: actor})
		require.NoError(t, err)
		assert.Equal(t, s.status, got.Status)
		require.NotNil(t, got.CurrentObservation)
		assert.Equal(t, s.obs, *got.CurrentObservation)
	}

	hist, err := env.Engine.ItemHistory(env.Ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, hist, len(steps))
	for i, s := range steps {
		assert.Equal(t, s.status, hist[i].Status)
		assert.Equal(t, s.obs, hist[i].Observation)
		assert.Equal(t, actor, hist[i].UserID)
	}

	stored, err := env.Engine.Repo.GetItem(env.Ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendente, stored.Status)

	reloaded, err := env.Engine.EnsureItems(env.Ctx, env.ContratoID, domain.Administrativa)
	require.NoError(t, err)
	require.Len(t, reloaded[0].History, len(steps))
	assert.Equal(t, "Reaberto", reloaded[0].History[0].Observation, "item history is newest first")
}

func TestTransitionRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	items, err := env.Engine.EnsureItems(env.Ctx, env.ContratoID, domain.Administrativa)
	require.NoError(t, err)

	_, err = env.Engine.Transition(env.Ctx, engine.TransitionRequest{ItemID: items[0].ID, Status: "FEITO", ActorID: "u"})
	var ve engine.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "status", ve.Field)

	_, err = env.Engine.Transition(env.Ctx, engine.TransitionRequest{ItemID: "missing", Status: domain.StatusConcluido, ActorID: "u"})
	assert.ErrorIs(t, err, repo.ErrNotFound)

	hist, err := env.Engine.ItemHistory(env.Ctx, items[0].ID)
	require.NoError(t, err)
	assert.Empty(t, hist)

	_, err = env.Engine.ItemHistory(env.Ctx, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestAskNotifiesActiveMembersOfResponsibleRole(t *testing.T) {
	env := newTestEnv(t)
	items, err := env.Engine.EnsureItems(env.Ctx, env.ContratoID, domain.Administrativa)
	require.NoError(t, err)
	asker := env.user(t, "gestor@licito.gov.br")

	esc, err := env.Engine.Ask(env.Ctx, items[0].ID, "Qual o prazo de entrega?", asker)
	require.NoError(t, err)
	assert.False(t, esc.Answered())

	for _, email := range []string{"fiscal.adm@licito.gov.br", "fiscal.adm2@licito.gov.br"} {
		ns, err := env.Engine.Inbox.ListUnread(env.Ctx, env.user(t, email))
		require.NoError(t, err)
		require.Len(t, ns, 1, email)
		assert.Equal(t, domain.NotificationEsclarecimentoPedido, ns[0].Type)
		require.NotNil(t, ns[0].Esclarecimento)
		assert.Equal(t, esc.ID, ns[0].Esclarecimento.ID)
		require.NotNil(t, ns[0].Item)
		assert.Equal(t, items[0].ID, ns[0].Item.ID)
	}
	for _, email := range []string{"inativo@licito.gov.br", "fiscal.tec@licito.gov.br", "gestor@licito.gov.br"} {
		ns, err := env.Engine.Inbox.ListAll(env.Ctx, env.user(t, email))
		require.NoError(t, err)
		assert.Empty(t, ns, email)
	}

	pending, err := env.Engine.Repo.PendingFanouts(env.Ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAskOnTechnicalItemRoutesToTechnicalInspectors(t *testing.T) {
	env := newTestEnv(t)
	items, err := env.Engine.EnsureItems(env.Ctx, env.ContratoID, domain.Tecnica)
	require.NoError(t, err)

	_, err = env.Engine.Ask(env.Ctx, items[2].ID, "Há certificado?", env.user(t, "gestor@licito.gov.br"))
	require.NoError(t, err)

	ns, err := env.Engine.Inbox.ListUnread(env.Ctx, env.user(t, "fiscal.tec@licito.gov.br"))
	require.NoError(t, err)
	assert.Len(t, ns, 1)
	ns, err = env.Engine.Inbox.ListUnread(env.Ctx, env.user(t, "fiscal.adm@licito.gov.br"))
	require.NoError(t, err)
	assert.Empty(t, ns)
}

func TestAnswerNotifiesAskerOnce(t *testing.T) {
	env := newTestEnv(t)
	items, err := env.Engine.EnsureItems(env.Ctx, env.ContratoID, domain.Administrativa)
	require.NoError(t, err)
	asker := env.user(t, "gestor@licito.gov.br")
	fiscal := env.user(t, "fiscal.adm@licito.gov.br")

	esc, err := env.Engine.Ask(env.Ctx, items[0].ID, "Pergunta", asker)
	require.NoError(t, err)

	answered, err := env.Engine.Answer(env.Ctx, esc.ID, "Resposta", fiscal)
	require.NoError(t, err)
	require.True(t, answered.Answered())
	assert.Equal(t, "Resposta", *answered.Answer)
	assert.Equal(t, fiscal, *answered.AnsweredByID)

	ns, err := env.Engine.Inbox.ListUnread(env.Ctx, asker)
	require.NoError(t, err)
	require.Len(t, ns, 1)
	assert.Equal(t, domain.NotificationEsclarecimentoRespondido, ns[0].Type)

	later := env.Engine.WithClock(func() time.Time { return time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC) })
	_, err = later.Answer(env.Ctx, esc.ID, "Outra resposta", env.user(t, "fiscal.adm2@licito.gov.br"))
	assert.ErrorIs(t, err, engine.ErrInvalidState)

	stored, err := env.Engine.Repo.GetEsclarecimento(env.Ctx, esc.ID)
	require.NoError(t, err)
	require.True(t, stored.Answered())
	assert.Equal(t, "Resposta", *stored.Answer)
	require.NotNil(t, stored.AnsweredByID)
	assert.Equal(t, fiscal, *stored.AnsweredByID)
	require.NotNil(t, stored.AnsweredAt)
	assert.Equal(t, *answered.AnsweredAt, *stored.AnsweredAt)
	ns, err = env.Engine.Inbox.ListAll(env.Ctx, asker)
	require.NoError(t, err)
	assert.Len(t, ns, 1)

	list, err := env.Engine.ListEsclarecimentos(env.Ctx, items[0].ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Answered())
}

func TestAnswerUnknownEsclarecimento(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Answer(env.Ctx, "missing", "x", "u")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.Ask(env.Ctx, "missing", "x", "u")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.Answer(env.Ctx, "missing", "  ", "u")
	var ve engine.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestAskSurvivesFanoutFailure(t *testing.T) {
	env := newTestEnv(t)
	items, err := env.Engine.EnsureItems(env.Ctx, env.ContratoID, domain.Administrativa)
	require.NoError(t, err)

	broken, err := sql.Open("sqlite", db.DSN(env.Workspace+"/broken.db"))
	require.NoError(t, err)
	require.NoError(t, broken.Close())
	failing := env.Engine
	failing.Inbox.DB = broken

	esc, err := failing.Ask(env.Ctx, items[0].ID, "Pergunta", env.user(t, "gestor@licito.gov.br"))
	require.NoError(t, err, "question persists even when notifying fails")

	stored, err := env.Engine.Repo.GetEsclarecimento(env.Ctx, esc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pergunta", stored.Question)

	pending, err := env.Engine.Repo.PendingFanouts(env.Ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.NotEmpty(t, pending[0].LastError)

	evts, err := env.Engine.Events.List(env.Ctx, env.ContratoID, 0, 500)
	require.NoError(t, err)
	var sawFailure bool
	for _, e := range evts {
		sawFailure = sawFailure || e.Type == events.NotificationFanoutError
	}
	assert.True(t, sawFailure)

	n, err := env.Engine.Inbox.Drain(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	ns, err := env.Engine.Inbox.ListUnread(env.Ctx, env.user(t, "fiscal.adm@licito.gov.br"))
	require.NoError(t, err)
	assert.Len(t, ns, 1)

	// A second drain finds nothing and a replayed delivery adds nothing.
	n, err = env.Engine.Inbox.Drain(env.Ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, env.Engine.Inbox.Deliver(env.Ctx, pending[0]))
	ns, err = env.Engine.Inbox.ListAll(env.Ctx, env.user(t, "fiscal.adm@licito.gov.br"))
	require.NoError(t, err)
	assert.Len(t, ns, 1)
}

func TestFanoutRedeliveryKeepsRecipientsFromAskTime(t *testing.T) {
	env := newTestEnv(t)
	items, err := env.Engine.EnsureItems(env.Ctx, env.ContratoID, domain.Administrativa)
	require.NoError(t, err)

	broken, err := sql.Open("sqlite", db.DSN(env.Workspace+"/broken.db"))
	require.NoError(t, err)
	require.NoError(t, broken.Close())
	failing := env.Engine
	failing.Inbox.DB = broken
	_, err = failing.Ask(env.Ctx, items[0].ID, "Pergunta", env.user(t, "gestor@licito.gov.br"))
	require.NoError(t, err)

	pending, err := env.Engine.Repo.PendingFanouts(env.Ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.ElementsMatch(t, []string{
		env.user(t, "fiscal.adm@licito.gov.br"),
		env.user(t, "fiscal.adm2@licito.gov.br"),
	}, pending[0].Recipients)

	// Membership changes after the question must not reach the redelivery.
	require.NoError(t, env.Engine.Repo.SetUserActive(env.Ctx, env.user(t, "fiscal.adm2@licito.gov.br"), false))
	require.NoError(t, env.Engine.Repo.SetUserActive(env.Ctx, env.user(t, "inativo@licito.gov.br"), true))

	n, err := env.Engine.Inbox.Drain(env.Ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	want := map[string]int{
		"fiscal.adm@licito.gov.br":  1,
		"fiscal.adm2@licito.gov.br": 1,
		"inativo@licito.gov.br":     0,
	}
	for email, count := range want {
		ns, err := env.Engine.Inbox.ListAll(env.Ctx, env.user(t, email))
		require.NoError(t, err)
		assert.Len(t, ns, count, email)
	}
}

func TestProgressCountsByStatus(t *testing.T) {
	env := newTestEnv(t)
	items, err := env.Engine.EnsureItems(env.Ctx, env.ContratoID, domain.Tecnica)
	require.NoError(t, err)
	_, err = env.Engine.Transition(env.Ctx, engine.TransitionRequest{ItemID: items[0].ID, Status: domain.StatusConcluido, Observation: "ok", ActorID: "u"})
	require.NoError(t, err)
	_, err = env.Engine.Transition(env.Ctx, engine.TransitionRequest{ItemID: items[1].ID, Status: domain.StatusNaoConforme, Observation: "falha", ActorID: "u"})
	require.NoError(t, err)

	p, err := env.Engine.Progress(env.Ctx, env.ContratoID, domain.Tecnica)
	require.NoError(t, err)
	assert.Equal(t, len(items), p.Total)
	assert.Equal(t, 1, p.ByStatus[string(domain.StatusConcluido)])
	assert.Equal(t, 1, p.ByStatus[string(domain.StatusNaoConforme)])
	assert.Equal(t, len(items)-2, p.ByStatus[string(domain.StatusPendente)])
	assert.Zero(t, p.ByStatus[string(domain.StatusEmAndamento)])
}

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	fail  map[string]bool
	email []dispatch.Email
}

func (s *recordingSender) SendText(_ context.Context, phone, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, phone)
	if s.fail[phone] {
		return errors.New("provider rejected")
	}
	return nil
}

func (s *recordingSender) Send(_ context.Context, msg dispatch.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.email = append(s.email, msg)
	return nil
}

func TestNotifyContractUsesLinkedUsersAndRecordsEvent(t *testing.T) {
	env := newTestEnv(t)
	rec := &recordingSender{}
	e := env.Engine
	e.Dispatcher = dispatch.New(rec, rec, dispatch.Config{AppURL: "http://localhost:3000"}, nil)

	results, err := e.NotifyContract(env.Ctx, numero, dispatch.Update{Description: "Aditivo assinado"}, dispatch.ChannelEmail, dispatch.ChannelWhatsApp)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.True(t, results[0].Success)
	require.Len(t, rec.email, 1)
	assert.ElementsMatch(t, []string{"fiscal.adm@licito.gov.br", "fiscal.tec@licito.gov.br"}, rec.email[0].To)

	assert.False(t, results[1].Success)
	assert.True(t, results[1].NoContacts)
	assert.Equal(t, dispatch.NoPhoneContactsMessage, results[1].Message)
	assert.Empty(t, rec.sent)

	evts, err := e.Events.List(env.Ctx, env.ContratoID, 0, 500)
	require.NoError(t, err)
	require.NotEmpty(t, evts)
	assert.Equal(t, events.ContratoNotified, evts[len(evts)-1].Type)

	_, err = e.NotifyContract(env.Ctx, "000/0000", dispatch.Update{Description: "x"})
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
