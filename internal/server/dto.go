package server

import (
	"github.com/moniquedpoliveira/licito/internal/dispatch"
	"github.com/moniquedpoliveira/licito/internal/domain"
)

// Request payloads

type TransitionItemRequest struct {
	Status      string `json:"status" enum:"PENDENTE,EM_ANDAMENTO,CONCLUIDO,NAO_CONFORME"`
	Observation string `json:"observation"`
}

type AskRequest struct {
	Question string `json:"question" minLength:"1"`
}

type AnswerRequest struct {
	Answer string `json:"answer" minLength:"1"`
}

type NotifyContractRequest struct {
	Channels       []string `json:"channels,omitempty" doc:"Defaults to email and whatsapp"`
	Type           string   `json:"type,omitempty"`
	Description    string   `json:"description" minLength:"1"`
	ActionRequired string   `json:"action_required,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

// Response payloads

type ItemsResponse struct {
	Items []domain.ChecklistItem `json:"items"`
}

type HistoryResponse struct {
	Entries []domain.ObservationEntry `json:"entries"`
}

type EsclarecimentosResponse struct {
	Esclarecimentos []domain.Esclarecimento `json:"esclarecimentos"`
}

type NotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Unread        int                   `json:"unread"`
}

type NotifyContractResponse struct {
	Results []dispatch.Result `json:"results"`
}

type EventsResponse struct {
	Events []domain.Event `json:"events"`
	NextID int64          `json:"next_id"`
}

type ContratoView struct {
	domain.Contrato
	Status string `json:"status" enum:"Vigente,Encerrado"`
}

type ContratosResponse struct {
	Contratos []ContratoView `json:"contratos"`
}

type TokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
}
