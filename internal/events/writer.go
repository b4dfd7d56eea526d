package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/moniquedpoliveira/licito/internal/domain"
)

const (
	ItemProvisioned         = "checklist_item.provisioned"
	ItemTransitioned        = "checklist_item.transitioned"
	EsclarecimentoAsked     = "esclarecimento.asked"
	EsclarecimentoAnswered  = "esclarecimento.answered"
	NotificationFanoutError = "notification.fanout_failed"
	ContratoNotified        = "contrato.notified"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside the caller's transaction.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, contratoID, entityKind, entityID, actorID string, payload EventPayload) error {
	return w.append(ctx, tx, evtType, contratoID, entityKind, entityID, actorID, payload)
}

// AppendDirect records an event outside any transaction. Used for
// after-commit side effects whose outcome must not affect the operation.
func (w Writer) AppendDirect(ctx context.Context, evtType, contratoID, entityKind, entityID, actorID string, payload EventPayload) error {
	return w.append(ctx, w.DB, evtType, contratoID, entityKind, entityID, actorID, payload)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (w Writer) append(ctx context.Context, ex execer, evtType, contratoID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = ex.ExecContext(ctx, `INSERT INTO events(ts,type,contrato_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		domain.FormatTime(w.Now()), evtType, nullable(contratoID), entityKind, nullable(entityID), actorID, string(data))
	if err != nil {
		return fmt.Errorf("append event %s: %w", evtType, err)
	}
	return nil
}

// List returns events for a contract after the given id, oldest first.
func (w Writer) List(ctx context.Context, contratoID string, afterID int64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := w.DB.QueryContext(ctx, `SELECT id,ts,type,COALESCE(contrato_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json
FROM events WHERE (?='' OR contrato_id=?) AND id>? ORDER BY id ASC LIMIT ?`, contratoID, contratoID, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ContratoID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.PayloadJSON); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// LatestID returns the id of the newest event, or 0 when there is none.
func (w Writer) LatestID(ctx context.Context) (int64, error) {
	var id int64
	err := w.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}
