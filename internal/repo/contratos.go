package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/moniquedpoliveira/licito/internal/domain"
)

const contratoColumns = `c.id,c.numero_contrato,c.objeto,COALESCE(c.nome_contratada,''),COALESCE(c.gestor_contrato,''),c.valor_total,
COALESCE(c.vigencia_termino,''),COALESCE(c.email_gestor,''),COALESCE(c.telefone_gestor,''),c.fiscal_administrativo_id,c.fiscal_tecnico_id,
COALESCE(c.email_fiscal_adm,''),COALESCE(c.telefone_fiscal_adm,''),COALESCE(c.email_fiscal_tec,''),COALESCE(c.telefone_fiscal_tec,''),c.created_at,
fa.id,fa.name,fa.email,fa.whatsapp,fa.role,fa.is_active,
ft.id,ft.name,ft.email,ft.whatsapp,ft.role,ft.is_active`

const contratoFrom = ` FROM contratos c
LEFT JOIN users fa ON fa.id=c.fiscal_administrativo_id
LEFT JOIN users ft ON ft.id=c.fiscal_tecnico_id`

type joinedUser struct {
	id, name, email, whatsapp, role sql.NullString
	active                          sql.NullBool
}

func (j *joinedUser) user() *domain.User {
	if !j.id.Valid {
		return nil
	}
	return &domain.User{
		ID:       j.id.String,
		Name:     j.name.String,
		Email:    j.email.String,
		Whatsapp: j.whatsapp.String,
		Role:     domain.Role(j.role.String),
		IsActive: j.active.Bool,
	}
}

func scanContrato(scan func(dest ...any) error) (domain.Contrato, error) {
	var c domain.Contrato
	var fiscalAdm, fiscalTec sql.NullString
	fa, ft := &joinedUser{}, &joinedUser{}
	dest := []any{&c.ID, &c.NumeroContrato, &c.Objeto, &c.NomeContratada, &c.GestorContrato, &c.ValorTotal,
		&c.VigenciaTermino, &c.EmailGestor, &c.TelefoneGestor, &fiscalAdm, &fiscalTec,
		&c.EmailFiscalAdm, &c.TelefoneFiscalAdm, &c.EmailFiscalTec, &c.TelefoneFiscalTec, &c.CreatedAt,
		&fa.id, &fa.name, &fa.email, &fa.whatsapp, &fa.role, &fa.active,
		&ft.id, &ft.name, &ft.email, &ft.whatsapp, &ft.role, &ft.active}
	if err := scan(dest...); err != nil {
		return domain.Contrato{}, err
	}
	c.FiscalAdministrativoID = ptr(fiscalAdm)
	c.FiscalTecnicoID = ptr(fiscalTec)
	c.FiscalAdministrativo = fa.user()
	c.FiscalTecnico = ft.user()
	return c, nil
}

// UpsertContratoTx inserts a contract keyed by its number, refreshing the
// mutable fields of an existing one.
func (r Repo) UpsertContratoTx(ctx context.Context, tx *sql.Tx, c domain.Contrato) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO contratos(id,numero_contrato,objeto,nome_contratada,gestor_contrato,valor_total,vigencia_termino,
email_gestor,telefone_gestor,fiscal_administrativo_id,fiscal_tecnico_id,email_fiscal_adm,telefone_fiscal_adm,email_fiscal_tec,telefone_fiscal_tec,created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(numero_contrato) DO UPDATE SET objeto=excluded.objeto, nome_contratada=excluded.nome_contratada,
gestor_contrato=excluded.gestor_contrato, valor_total=excluded.valor_total, vigencia_termino=excluded.vigencia_termino,
email_gestor=excluded.email_gestor, telefone_gestor=excluded.telefone_gestor,
fiscal_administrativo_id=excluded.fiscal_administrativo_id, fiscal_tecnico_id=excluded.fiscal_tecnico_id,
email_fiscal_adm=excluded.email_fiscal_adm, telefone_fiscal_adm=excluded.telefone_fiscal_adm,
email_fiscal_tec=excluded.email_fiscal_tec, telefone_fiscal_tec=excluded.telefone_fiscal_tec`,
		c.ID, c.NumeroContrato, c.Objeto, nullable(c.NomeContratada), nullable(c.GestorContrato), c.ValorTotal, nullable(c.VigenciaTermino),
		nullable(c.EmailGestor), nullable(c.TelefoneGestor), nullablePtr(c.FiscalAdministrativoID), nullablePtr(c.FiscalTecnicoID),
		nullable(c.EmailFiscalAdm), nullable(c.TelefoneFiscalAdm), nullable(c.EmailFiscalTec), nullable(c.TelefoneFiscalTec), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert contrato %s: %w", c.NumeroContrato, err)
	}
	return nil
}

func (r Repo) GetContrato(ctx context.Context, id string) (domain.Contrato, error) {
	return r.GetContratoTx(ctx, nil, id)
}

func (r Repo) GetContratoTx(ctx context.Context, tx *sql.Tx, id string) (domain.Contrato, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+contratoColumns+contratoFrom+` WHERE c.id=?`, id)
	c, err := scanContrato(row.Scan)
	return c, notFound(err)
}

func (r Repo) GetContratoByNumero(ctx context.Context, numero string) (domain.Contrato, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+contratoColumns+contratoFrom+` WHERE c.numero_contrato=?`, numero)
	c, err := scanContrato(row.Scan)
	return c, notFound(err)
}

func (r Repo) ListContratos(ctx context.Context) ([]domain.Contrato, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+contratoColumns+contratoFrom+` ORDER BY c.created_at DESC, c.numero_contrato`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Contrato
	for rows.Next() {
		c, err := scanContrato(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
