package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/moniquedpoliveira/licito/internal/domain"
	"github.com/moniquedpoliveira/licito/internal/events"
)

// EnsureItems guarantees one item per template of typ for the contract and
// returns them in template order with history and esclarecimentos
// attached, newest first. Safe to call concurrently for the same contract.
func (e Engine) EnsureItems(ctx context.Context, contratoID string, typ domain.ChecklistType) ([]domain.ChecklistItem, error) {
	if _, err := domain.ParseChecklistType(string(typ)); err != nil {
		return nil, invalid("type", err.Error())
	}
	if _, err := e.Repo.GetContrato(ctx, contratoID); err != nil {
		return nil, err
	}
	templates, err := e.catalog().ListTemplates(ctx, typ)
	if err != nil {
		return nil, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	existing, err := e.Repo.ListItemsTx(ctx, tx, contratoID, typ)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(existing))
	for _, it := range existing {
		have[it.ChecklistID] = struct{}{}
	}
	now := domain.FormatTime(e.now())
	created := 0
	for _, tpl := range templates {
		if _, ok := have[tpl.ID]; ok {
			continue
		}
		item := domain.ChecklistItem{
			ID:          uuid.NewString(),
			ContratoID:  contratoID,
			ChecklistID: tpl.ID,
			Status:      domain.StatusPendente,
			UpdatedAt:   now,
		}
		inserted, err := e.Repo.InsertItemTx(ctx, tx, item)
		if err != nil {
			return nil, err
		}
		if !inserted {
			e.logger().DebugContext(ctx, "item already provisioned", "contrato", contratoID, "checklist", tpl.ID)
			continue
		}
		if err := e.Events.Append(ctx, tx, events.ItemProvisioned, contratoID, "checklist_item", item.ID, "system",
			events.EventPayload{"checklist_id": tpl.ID, "type": string(typ)}); err != nil {
			return nil, err
		}
		created++
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	if created > 0 {
		e.logger().InfoContext(ctx, "checklist provisioned", "contrato", contratoID, "type", typ, "created", created)
	}
	return e.loadItems(ctx, contratoID, typ)
}

func (e Engine) loadItems(ctx context.Context, contratoID string, typ domain.ChecklistType) ([]domain.ChecklistItem, error) {
	items, err := e.Repo.ListItemsTx(ctx, nil, contratoID, typ)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].History, err = e.Repo.ListHistoryTx(ctx, nil, items[i].ID, true); err != nil {
			return nil, err
		}
		if items[i].Esclarecimentos, err = e.Repo.ListEsclarecimentosTx(ctx, nil, items[i].ID); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// TransitionRequest moves an item to Status and records Observation.
type TransitionRequest struct {
	ItemID      string
	Status      domain.ItemStatus
	Observation string
	ActorID     string
}

// Transition applies a status change and its audit entry atomically. Any
// status may follow any other; concurrent transitions resolve last writer
// wins with every entry kept.
func (e Engine) Transition(ctx context.Context, req TransitionRequest) (domain.ChecklistItem, error) {
	if _, err := domain.ParseItemStatus(string(req.Status)); err != nil {
		return domain.ChecklistItem{}, invalid("status", err.Error())
	}
	if strings.TrimSpace(req.ActorID) == "" {
		return domain.ChecklistItem{}, invalid("actor_id", "required")
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	defer tx.Rollback()

	item, err := e.Repo.GetItemTx(ctx, tx, req.ItemID)
	if err != nil {
		return domain.ChecklistItem{}, err
	}
	now := domain.FormatTime(e.now())
	entry := domain.ObservationEntry{
		ID:              uuid.NewString(),
		ChecklistItemID: item.ID,
		Status:          req.Status,
		Observation:     req.Observation,
		UserID:          req.ActorID,
		CreatedAt:       now,
	}
	if err := e.Repo.UpdateItemTx(ctx, tx, item.ID, req.Status, req.Observation, now); err != nil {
		return domain.ChecklistItem{}, err
	}
	if err := e.Repo.InsertHistoryTx(ctx, tx, entry); err != nil {
		return domain.ChecklistItem{}, err
	}
	if err := e.Events.Append(ctx, tx, events.ItemTransitioned, item.ContratoID, "checklist_item", item.ID, req.ActorID, events.EventPayload{
		"from": string(item.Status),
		"to":   string(req.Status),
	}); err != nil {
		return domain.ChecklistItem{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ChecklistItem{}, err
	}
	e.Metrics.Transition(ctx, string(req.Status))

	item.Status = req.Status
	obs := req.Observation
	item.CurrentObservation = &obs
	item.UpdatedAt = now
	return item, nil
}

// ItemHistory returns the audit trail of an item, oldest first.
func (e Engine) ItemHistory(ctx context.Context, itemID string) ([]domain.ObservationEntry, error) {
	if _, err := e.Repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return e.Repo.ListHistoryTx(ctx, nil, itemID, false)
}

// Progress counts a contract's items of typ per status.
func (e Engine) Progress(ctx context.Context, contratoID string, typ domain.ChecklistType) (domain.Progress, error) {
	if _, err := domain.ParseChecklistType(string(typ)); err != nil {
		return domain.Progress{}, invalid("type", err.Error())
	}
	counts, err := e.Repo.CountItemsByStatus(ctx, contratoID, typ)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("progress: %w", err)
	}
	p := domain.Progress{ContratoID: contratoID, Type: typ, ByStatus: map[string]int{}}
	for _, st := range domain.Statuses {
		p.ByStatus[string(st)] = counts[string(st)]
		p.Total += counts[string(st)]
	}
	return p, nil
}
