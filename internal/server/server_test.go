package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/moniquedpoliveira/licito/internal/app"
	"github.com/moniquedpoliveira/licito/internal/config"
	"github.com/moniquedpoliveira/licito/internal/db"
	"github.com/moniquedpoliveira/licito/internal/domain"
	"github.com/moniquedpoliveira/licito/internal/engine"
	"github.com/moniquedpoliveira/licito/internal/migrate"
	"github.com/moniquedpoliveira/licito/internal/repo"
)

const (
	testSecret  = "test-secret"
	testNumero  = "001/2025"
	adminEmail  = "admin@licito.gov.br"
	fiscalEmail = "fiscal.adm@licito.gov.br"
)

type testServer struct {
	URL    string
	engine engine.Engine
	cfg    *config.Config
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func (s *testServer) userID(email string) string {
	for _, u := range s.cfg.Users {
		if u.Email == email {
			return app.UserID(u)
		}
	}
	return ""
}

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	cfg.Contratos = []config.ContratoSeed{{
		Numero:               testNumero,
		Objeto:               "Aquisição de computadores",
		FiscalAdministrativo: fiscalEmail,
	}}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := app.Seed(context.Background(), conn, cfg, e.Catalog); err != nil {
		t.Fatalf("seed: %v", err)
	}
	handler, err := New(Config{Engine: e, Auth: AuthConfig{
		JWTSecret:             testSecret,
		AllowLegacyUserHeader: true,
		EnableDevLogin:        true,
	}})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		engine: e,
		cfg:    cfg,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func as(userID string) map[string]string {
	return map[string]string{"X-User-Id": userID}
}

func TestChecklistAskAnswerFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	admin := srv.userID(adminEmail)
	fiscal := srv.userID(fiscalEmail)
	contratoID := app.ContratoID(testNumero)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/contratos/"+contratoID+"/checklist/administrativa", nil, as(admin))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("checklist status %d: %s", res.StatusCode, string(data))
	}
	var items ItemsResponse
	if err := json.Unmarshal(data, &items); err != nil {
		t.Fatalf("unmarshal items: %v", err)
	}
	if len(items.Items) != len(srv.cfg.Catalog.Administrativa) {
		t.Fatalf("expected %d items, got %d", len(srv.cfg.Catalog.Administrativa), len(items.Items))
	}
	itemID := items.Items[0].ID

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/checklist-items/"+itemID, map[string]any{
		"status":      "EM_ANDAMENTO",
		"observation": "Aguardando documentação",
	}, as(admin))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("transition status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/checklist-items/"+itemID+"/esclarecimentos", map[string]any{
		"question": "Qual o prazo?",
	}, as(admin))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("ask status %d: %s", res.StatusCode, string(data))
	}
	var esc domain.Esclarecimento
	if err := json.Unmarshal(data, &esc); err != nil {
		t.Fatalf("unmarshal esclarecimento: %v", err)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me/notifications?unread=true", nil, as(fiscal))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("notifications status %d: %s", res.StatusCode, string(data))
	}
	var inbox NotificationsResponse
	if err := json.Unmarshal(data, &inbox); err != nil {
		t.Fatalf("unmarshal notifications: %v", err)
	}
	if inbox.Unread != 1 || inbox.Notifications[0].Type != domain.NotificationEsclarecimentoPedido {
		t.Fatalf("expected one pedido notification, got %+v", inbox)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/esclarecimentos/"+esc.ID+"/answer", map[string]any{
		"answer": "30 dias",
	}, as(fiscal))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("answer status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/esclarecimentos/"+esc.ID+"/answer", map[string]any{
		"answer": "60 dias",
	}, as(fiscal))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second answer, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me/notifications", nil, as(admin))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin notifications status %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &inbox); err != nil {
		t.Fatalf("unmarshal notifications: %v", err)
	}
	if len(inbox.Notifications) != 1 || inbox.Notifications[0].Type != domain.NotificationEsclarecimentoRespondido {
		t.Fatalf("expected respondido notification for asker, got %+v", inbox)
	}
	notifID := inbox.Notifications[0].ID

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/notifications/"+notifID+"/read", nil, as(fiscal))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 marking another user's notification, got %d: %s", res.StatusCode, string(data))
	}
	for i := 0; i < 2; i++ {
		res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/notifications/"+notifID+"/read", nil, as(admin))
		if res.StatusCode != http.StatusNoContent {
			t.Fatalf("mark read status %d: %s", res.StatusCode, string(data))
		}
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/checklist-items/"+itemID+"/history", nil, as(admin))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var hist HistoryResponse
	if err := json.Unmarshal(data, &hist); err != nil {
		t.Fatalf("unmarshal history: %v", err)
	}
	if len(hist.Entries) != 1 || hist.Entries[0].Status != domain.StatusEmAndamento {
		t.Fatalf("unexpected history %+v", hist.Entries)
	}
}

func TestErrorMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	admin := srv.userID(adminEmail)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown contrato", http.MethodGet, "/v1/contratos/nope/checklist/TECNICA", nil, http.StatusNotFound, "not_found"},
		{"bad type", http.MethodGet, "/v1/contratos/x/checklist/OUTRA", nil, http.StatusBadRequest, "bad_request"},
		{"unknown item", http.MethodPatch, "/v1/checklist-items/nope", map[string]any{"status": "CONCLUIDO", "observation": "ok"}, http.StatusNotFound, "not_found"},
		{"unknown esclarecimento", http.MethodPost, "/v1/esclarecimentos/nope/answer", map[string]any{"answer": "x"}, http.StatusNotFound, "not_found"},
		{"unknown notification", http.MethodPost, "/v1/notifications/nope/read", nil, http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, data := doJSON(t, client, tc.method, srv.URL+tc.path, tc.body, as(admin))
			if res.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, res.StatusCode, string(data))
			}
			var env struct {
				Error apiErrorBody `json:"error"`
			}
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("unmarshal error: %v", err)
			}
			if env.Error.Code != tc.code {
				t.Fatalf("expected code %s, got %s", tc.code, env.Error.Code)
			}
		})
	}
}

func TestAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	admin := srv.userID(adminEmail)

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer garbage"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, as("ghost"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for unknown user, got %d", res.StatusCode)
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{"user_id": admin}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, string(data))
	}
	var tok TokenResponse
	if err := json.Unmarshal(data, &tok); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"Authorization": "Bearer " + tok.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with jwt status %d: %s", res.StatusCode, string(data))
	}
	var me domain.User
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}
	if me.ID != admin || me.Role != domain.RoleAdministrador {
		t.Fatalf("unexpected user %+v", me)
	}

	raw := "lk_test_key"
	if err := srv.engine.Repo.InsertAPIKey(context.Background(), repo.APIKey{
		ID:        "key-1",
		UserID:    admin,
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: domain.FormatTime(time.Now()),
	}); err != nil {
		t.Fatalf("insert api key: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": raw})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with api key status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-Api-Key": "wrong"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown api key, got %d", res.StatusCode)
	}
}

func TestNotifyContractWithoutDispatcher(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	admin := srv.userID(adminEmail)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/contratos/999-2099/notify", map[string]any{
		"description": "Aditivo assinado",
	}, as(admin))
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500 without dispatcher, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/contratos/x/notify", map[string]any{
		"description": "Aditivo assinado",
		"channels":    []string{"sms"},
	}, as(admin))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown channel, got %d: %s", res.StatusCode, string(data))
	}
}
