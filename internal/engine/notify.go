package engine

import (
	"context"
	"errors"

	"github.com/moniquedpoliveira/licito/internal/dispatch"
	"github.com/moniquedpoliveira/licito/internal/events"
)

var errNoDispatcher = errors.New("dispatcher not configured")

// NotifyContract announces an update to the responsible parties of the
// contract numbered numero over each requested channel. Channel failures
// are reported in the results, not as an error.
func (e Engine) NotifyContract(ctx context.Context, numero string, u dispatch.Update, channels ...dispatch.Channel) ([]dispatch.Result, error) {
	if e.Dispatcher == nil {
		return nil, errNoDispatcher
	}
	c, err := e.Repo.GetContratoByNumero(ctx, numero)
	if err != nil {
		return nil, err
	}
	results := e.Dispatcher.Send(ctx, c, u, channels...)

	summary := make(map[string]any, len(results))
	for _, r := range results {
		summary[string(r.Channel)] = map[string]any{"success": r.Success, "no_contacts": r.NoContacts, "attempts": len(r.Attempts)}
	}
	if err := e.Events.AppendDirect(context.WithoutCancel(ctx), events.ContratoNotified, c.ID, "contrato", c.ID, "system",
		events.EventPayload{"update_type": u.Type, "channels": summary}); err != nil {
		e.logger().WarnContext(ctx, "record contract notification event", "contrato", numero, "error", err)
	}
	return results, nil
}
