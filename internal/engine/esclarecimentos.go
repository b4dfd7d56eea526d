package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/moniquedpoliveira/licito/internal/domain"
	"github.com/moniquedpoliveira/licito/internal/events"
	"github.com/moniquedpoliveira/licito/internal/repo"
)

// Ask records a question on a checklist item and notifies every active
// member of the role responsible for the item's checklist type, as
// resolved inside the same transaction. The question is committed before
// notifying; a notification failure is logged
// and retried from the outbox, never returned.
func (e Engine) Ask(ctx context.Context, itemID, question, askedByID string) (domain.Esclarecimento, error) {
	if strings.TrimSpace(question) == "" {
		return domain.Esclarecimento{}, invalid("question", "required")
	}
	if strings.TrimSpace(askedByID) == "" {
		return domain.Esclarecimento{}, invalid("asked_by_id", "required")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Esclarecimento{}, err
	}
	defer tx.Rollback()

	item, err := e.Repo.GetItemTx(ctx, tx, itemID)
	if err != nil {
		return domain.Esclarecimento{}, err
	}
	now := domain.FormatTime(e.now())
	esc := domain.Esclarecimento{
		ID:              uuid.NewString(),
		ChecklistItemID: item.ID,
		Question:        question,
		AskedByID:       askedByID,
		AskedAt:         now,
	}
	if err := e.Repo.InsertEsclarecimentoTx(ctx, tx, esc); err != nil {
		return domain.Esclarecimento{}, err
	}
	role := item.Template.Type.ResponsibleRole()
	members, err := e.Inbox.Directory.ActiveUsersWithRole(ctx, tx, role)
	if err != nil {
		return domain.Esclarecimento{}, err
	}
	recipients := make([]string, len(members))
	for i, u := range members {
		recipients[i] = u.ID
	}
	fanout := repo.OutboxEntry{
		ID:               esc.ID + "|" + string(domain.NotificationEsclarecimentoPedido),
		TargetKind:       repo.TargetRole,
		Target:           string(role),
		Type:             domain.NotificationEsclarecimentoPedido,
		EsclarecimentoID: esc.ID,
		ScheduledAt:      now,
		Recipients:       recipients,
	}
	if err := e.Repo.ScheduleFanoutTx(ctx, tx, fanout); err != nil {
		return domain.Esclarecimento{}, err
	}
	if err := e.Events.Append(ctx, tx, events.EsclarecimentoAsked, item.ContratoID, "esclarecimento", esc.ID, askedByID, events.EventPayload{
		"checklist_item_id": item.ID,
		"role":              string(role),
		"recipients":        len(recipients),
	}); err != nil {
		return domain.Esclarecimento{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Esclarecimento{}, err
	}

	e.deliver(ctx, item.ContratoID, fanout)
	return esc, nil
}

// Answer records the single answer of an esclarecimento and notifies the
// asker. Answering twice fails with ErrInvalidState and leaves the stored
// answer untouched.
func (e Engine) Answer(ctx context.Context, esclarecimentoID, answer, answeredByID string) (domain.Esclarecimento, error) {
	if strings.TrimSpace(answer) == "" {
		return domain.Esclarecimento{}, invalid("answer", "required")
	}
	if strings.TrimSpace(answeredByID) == "" {
		return domain.Esclarecimento{}, invalid("answered_by_id", "required")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Esclarecimento{}, err
	}
	defer tx.Rollback()

	esc, err := e.Repo.GetEsclarecimentoTx(ctx, tx, esclarecimentoID)
	if err != nil {
		return domain.Esclarecimento{}, err
	}
	if esc.Answered() {
		return domain.Esclarecimento{}, ErrInvalidState
	}
	now := domain.FormatTime(e.now())
	ok, err := e.Repo.AnswerEsclarecimentoTx(ctx, tx, esc.ID, answer, answeredByID, now)
	if err != nil {
		return domain.Esclarecimento{}, err
	}
	if !ok {
		return domain.Esclarecimento{}, ErrInvalidState
	}
	item, err := e.Repo.GetItemTx(ctx, tx, esc.ChecklistItemID)
	if err != nil {
		return domain.Esclarecimento{}, err
	}
	fanout := repo.OutboxEntry{
		ID:               esc.ID + "|" + string(domain.NotificationEsclarecimentoRespondido),
		TargetKind:       repo.TargetUser,
		Target:           esc.AskedByID,
		Type:             domain.NotificationEsclarecimentoRespondido,
		EsclarecimentoID: esc.ID,
		ScheduledAt:      now,
	}
	if err := e.Repo.ScheduleFanoutTx(ctx, tx, fanout); err != nil {
		return domain.Esclarecimento{}, err
	}
	if err := e.Events.Append(ctx, tx, events.EsclarecimentoAnswered, item.ContratoID, "esclarecimento", esc.ID, answeredByID, events.EventPayload{
		"checklist_item_id": item.ID,
		"asked_by_id":       esc.AskedByID,
	}); err != nil {
		return domain.Esclarecimento{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Esclarecimento{}, err
	}

	esc.Answer = &answer
	esc.AnsweredByID = &answeredByID
	esc.AnsweredAt = &now
	e.deliver(ctx, item.ContratoID, fanout)
	return esc, nil
}

// ListEsclarecimentos returns the esclarecimentos of an item, newest first.
func (e Engine) ListEsclarecimentos(ctx context.Context, itemID string) ([]domain.Esclarecimento, error) {
	if _, err := e.Repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return e.Repo.ListEsclarecimentosTx(ctx, nil, itemID)
}

// deliver runs a committed fan-out. Failures stay in the outbox for the
// relay and are recorded as events.
func (e Engine) deliver(ctx context.Context, contratoID string, fanout repo.OutboxEntry) {
	ctx = context.WithoutCancel(ctx)
	err := e.Inbox.Deliver(ctx, fanout)
	if err == nil {
		return
	}
	e.logger().ErrorContext(ctx, "notification fanout failed", "esclarecimento", fanout.EsclarecimentoID,
		"target", fanout.Target, "type", fanout.Type, "error", err)
	if evErr := e.Events.AppendDirect(ctx, events.NotificationFanoutError, contratoID, "esclarecimento", fanout.EsclarecimentoID, "system",
		events.EventPayload{"target": fanout.Target, "type": string(fanout.Type), "error": err.Error()}); evErr != nil {
		e.logger().WarnContext(ctx, "record fanout failure event", "error", evErr)
	}
}
