package domain

import (
	"fmt"
	"time"
)

// TimeLayout is fixed width so stored timestamps sort lexicographically.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in UTC using TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

type ChecklistType string

const (
	Administrativa ChecklistType = "ADMINISTRATIVA"
	Tecnica        ChecklistType = "TECNICA"
)

func ParseChecklistType(s string) (ChecklistType, error) {
	switch ChecklistType(s) {
	case Administrativa, Tecnica:
		return ChecklistType(s), nil
	}
	return "", fmt.Errorf("unknown checklist type %q", s)
}

// ResponsibleRole returns the role that answers esclarecimentos raised on
// items of this checklist type.
func (t ChecklistType) ResponsibleRole() Role {
	switch t {
	case Administrativa:
		return RoleFiscalAdministrativo
	case Tecnica:
		return RoleFiscalTecnico
	default:
		panic(fmt.Sprintf("checklist type %q has no responsible role", string(t)))
	}
}

type Role string

const (
	RoleAdministrador        Role = "ADMINISTRADOR"
	RoleGestorContrato       Role = "GESTOR_CONTRATO"
	RoleFiscalAdministrativo Role = "FISCAL_ADMINISTRATIVO"
	RoleFiscalTecnico        Role = "FISCAL_TECNICO"
	RoleOrdenadorDespesas    Role = "ORDENADOR_DESPESAS"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdministrador, RoleGestorContrato, RoleFiscalAdministrativo, RoleFiscalTecnico, RoleOrdenadorDespesas:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

type ItemStatus string

const (
	StatusPendente    ItemStatus = "PENDENTE"
	StatusEmAndamento ItemStatus = "EM_ANDAMENTO"
	StatusConcluido   ItemStatus = "CONCLUIDO"
	StatusNaoConforme ItemStatus = "NAO_CONFORME"
)

// Statuses lists every item status in display order.
var Statuses = []ItemStatus{StatusPendente, StatusEmAndamento, StatusConcluido, StatusNaoConforme}

func ParseItemStatus(s string) (ItemStatus, error) {
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown item status %q", s)
}

type NotificationType string

const (
	NotificationEsclarecimentoPedido     NotificationType = "ESCLARECIMENTO_PEDIDO"
	NotificationEsclarecimentoRespondido NotificationType = "ESCLARECIMENTO_RESPONDIDO"
)

type ChecklistTemplate struct {
	ID        string        `json:"id"`
	Type      ChecklistType `json:"type" enum:"ADMINISTRATIVA,TECNICA"`
	Text      string        `json:"text"`
	CreatedAt string        `json:"created_at" format:"date-time"`
}

type ChecklistItem struct {
	ID                 string             `json:"id"`
	ContratoID         string             `json:"contrato_id"`
	ChecklistID        string             `json:"checklist_id"`
	Status             ItemStatus         `json:"status" enum:"PENDENTE,EM_ANDAMENTO,CONCLUIDO,NAO_CONFORME"`
	CurrentObservation *string            `json:"current_observation,omitempty"`
	UpdatedAt          string             `json:"updated_at" format:"date-time"`
	Template           *ChecklistTemplate `json:"template,omitempty"`
	History            []ObservationEntry `json:"history,omitempty"`
	Esclarecimentos    []Esclarecimento   `json:"esclarecimentos,omitempty"`
}

type ObservationEntry struct {
	ID              string     `json:"id"`
	ChecklistItemID string     `json:"checklist_item_id"`
	Status          ItemStatus `json:"status"`
	Observation     string     `json:"observation"`
	UserID          string     `json:"user_id"`
	CreatedAt       string     `json:"created_at" format:"date-time"`
}

type Esclarecimento struct {
	ID              string  `json:"id"`
	ChecklistItemID string  `json:"checklist_item_id"`
	Question        string  `json:"question"`
	AskedByID       string  `json:"asked_by_id"`
	AskedAt         string  `json:"asked_at" format:"date-time"`
	Answer          *string `json:"answer,omitempty"`
	AnsweredByID    *string `json:"answered_by_id,omitempty"`
	AnsweredAt      *string `json:"answered_at,omitempty" format:"date-time"`
}

func (e Esclarecimento) Answered() bool {
	return e.Answer != nil
}

type Notification struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	Type             NotificationType `json:"type" enum:"ESCLARECIMENTO_PEDIDO,ESCLARECIMENTO_RESPONDIDO"`
	EsclarecimentoID *string          `json:"esclarecimento_id,omitempty"`
	Read             bool             `json:"read"`
	CreatedAt        string           `json:"created_at" format:"date-time"`
	Esclarecimento   *Esclarecimento  `json:"esclarecimento,omitempty"`
	Item             *ChecklistItem   `json:"item,omitempty"`
}

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Whatsapp string `json:"whatsapp,omitempty"`
	Role     Role   `json:"role"`
	IsActive bool   `json:"is_active"`
}

// Contrato carries both the structured fiscal references and the legacy
// free-text contact fields kept for contracts registered before users existed.
type Contrato struct {
	ID                     string  `json:"id"`
	NumeroContrato         string  `json:"numero_contrato"`
	Objeto                 string  `json:"objeto"`
	NomeContratada         string  `json:"nome_contratada,omitempty"`
	GestorContrato         string  `json:"gestor_contrato,omitempty"`
	ValorTotal             float64 `json:"valor_total"`
	VigenciaTermino        string  `json:"vigencia_termino,omitempty"`
	EmailGestor            string  `json:"email_gestor,omitempty"`
	TelefoneGestor         string  `json:"telefone_gestor,omitempty"`
	FiscalAdministrativoID *string `json:"fiscal_administrativo_id,omitempty"`
	FiscalTecnicoID        *string `json:"fiscal_tecnico_id,omitempty"`
	EmailFiscalAdm         string  `json:"email_fiscal_adm,omitempty"`
	TelefoneFiscalAdm      string  `json:"telefone_fiscal_adm,omitempty"`
	EmailFiscalTec         string  `json:"email_fiscal_tec,omitempty"`
	TelefoneFiscalTec      string  `json:"telefone_fiscal_tec,omitempty"`
	CreatedAt              string  `json:"created_at" format:"date-time"`

	FiscalAdministrativo *User `json:"fiscal_administrativo,omitempty"`
	FiscalTecnico        *User `json:"fiscal_tecnico,omitempty"`
}

// Status reports whether the contract is still in force at now.
func (c Contrato) Status(now time.Time) string {
	if c.VigenciaTermino == "" {
		return "Vigente"
	}
	end, err := time.Parse("2006-01-02", c.VigenciaTermino)
	if err != nil {
		return "Vigente"
	}
	if now.After(end.Add(24 * time.Hour)) {
		return "Encerrado"
	}
	return "Vigente"
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	ContratoID  string `json:"contrato_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	PayloadJSON string `json:"payload_json"`
}

// Progress counts checklist items per status.
type Progress struct {
	ContratoID string         `json:"contrato_id"`
	Type       ChecklistType  `json:"type"`
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
}
