package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/moniquedpoliveira/licito/internal/catalog"
	"github.com/moniquedpoliveira/licito/internal/config"
	"github.com/moniquedpoliveira/licito/internal/domain"
	"github.com/moniquedpoliveira/licito/internal/repo"
)

// SeedReport summarizes what Seed wrote.
type SeedReport struct {
	Templates int `json:"templates"`
	Users     int `json:"users"`
	Contratos int `json:"contratos"`
}

// UserID returns the configured id or one derived from the email, stable
// across runs.
func UserID(u config.UserSeed) string {
	if u.ID != "" {
		return u.ID
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("user|"+u.Email)).String()
}

// ContratoID derives a stable id from the contract number.
func ContratoID(numero string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("contrato|"+numero)).String()
}

// Seed loads the configured catalog, users and contracts. Every step is
// idempotent, so it runs on each start.
func Seed(ctx context.Context, db *sql.DB, cfg *config.Config, cat *catalog.Catalog) (SeedReport, error) {
	var rep SeedReport
	if cfg == nil {
		cfg = config.Default()
	}
	for _, c := range []struct {
		typ   domain.ChecklistType
		texts []string
	}{
		{domain.Administrativa, cfg.Catalog.Administrativa},
		{domain.Tecnica, cfg.Catalog.Tecnica},
	} {
		n, err := cat.Seed(ctx, c.typ, c.texts)
		if err != nil {
			return rep, fmt.Errorf("seed %s catalog: %w", c.typ, err)
		}
		rep.Templates += n
	}

	r := repo.Repo{DB: db}
	now := domain.FormatTime(time.Now())
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return rep, err
	}
	defer tx.Rollback()

	byRef := map[string]string{}
	for _, u := range cfg.Users {
		id := UserID(u)
		user := domain.User{ID: id, Name: u.Name, Email: u.Email, Whatsapp: u.Whatsapp, Role: domain.Role(u.Role), IsActive: u.IsActive()}
		if err := r.UpsertUserTx(ctx, tx, user, now); err != nil {
			return rep, err
		}
		byRef[id] = id
		byRef[u.Email] = id
		rep.Users++
	}
	for _, ct := range cfg.Contratos {
		c := domain.Contrato{
			ID:                ContratoID(ct.Numero),
			NumeroContrato:    ct.Numero,
			Objeto:            ct.Objeto,
			NomeContratada:    ct.Contratada,
			GestorContrato:    ct.Gestor,
			ValorTotal:        ct.ValorTotal,
			VigenciaTermino:   ct.VigenciaTermino,
			EmailGestor:       ct.EmailGestor,
			TelefoneGestor:    ct.TelefoneGestor,
			EmailFiscalAdm:    ct.EmailFiscalAdm,
			TelefoneFiscalAdm: ct.TelefoneFiscalAdm,
			EmailFiscalTec:    ct.EmailFiscalTec,
			TelefoneFiscalTec: ct.TelefoneFiscalTec,
			CreatedAt:         now,
		}
		if id, ok := byRef[ct.FiscalAdministrativo]; ok {
			c.FiscalAdministrativoID = &id
		}
		if id, ok := byRef[ct.FiscalTecnico]; ok {
			c.FiscalTecnicoID = &id
		}
		if err := r.UpsertContratoTx(ctx, tx, c); err != nil {
			return rep, err
		}
		rep.Contratos++
	}
	if err := tx.Commit(); err != nil {
		return rep, err
	}
	slog.Default().InfoContext(ctx, "seed applied", "component", "app",
		"templates", rep.Templates, "users", rep.Users, "contratos", rep.Contratos)
	return rep, nil
}
