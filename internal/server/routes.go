package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/moniquedpoliveira/licito/internal/dispatch"
	"github.com/moniquedpoliveira/licito/internal/domain"
	"github.com/moniquedpoliveira/licito/internal/engine"
	"github.com/moniquedpoliveira/licito/internal/repo"
)

func parseType(raw string) (domain.ChecklistType, huma.StatusError) {
	typ, err := domain.ParseChecklistType(strings.ToUpper(strings.TrimSpace(raw)))
	if err != nil {
		return "", newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "type"})
	}
	return typ, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		u, err := e.Repo.GetUser(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})
}

func registerDevAuth(api huma.API, e engine.Engine, cfg AuthConfig) {
	if !cfg.EnableDevLogin {
		return
	}
	huma.Register(api, huma.Operation{
		OperationID: "devLogin",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "Mint a development token",
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		u, err := e.Repo.GetUser(ctx, input.Body.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		if !u.IsActive {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "user inactive", nil)
		}
		token, err := SignToken(cfg.JWTSecret, u.ID, 12*time.Hour)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: token, TokenType: "Bearer"}}, nil
	})
}

func registerChecklist(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "getChecklist",
		Method:      http.MethodGet,
		Path:        "/contratos/{id}/checklist/{type}",
		Summary:     "Provision and list a contract checklist",
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Type string `path:"type"`
	}) (*struct {
		Body ItemsResponse `json:"body"`
	}, error) {
		typ, herr := parseType(input.Type)
		if herr != nil {
			return nil, herr
		}
		items, err := e.EnsureItems(ctx, input.ID, typ)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ItemsResponse `json:"body"`
		}{Body: ItemsResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "getProgress",
		Method:      http.MethodGet,
		Path:        "/contratos/{id}/progress/{type}",
		Summary:     "Count checklist items per status",
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Type string `path:"type"`
	}) (*struct {
		Body domain.Progress `json:"body"`
	}, error) {
		typ, herr := parseType(input.Type)
		if herr != nil {
			return nil, herr
		}
		if _, err := e.Repo.GetContrato(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		p, err := e.Progress(ctx, input.ID, typ)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Progress `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "transitionItem",
		Method:      http.MethodPatch,
		Path:        "/checklist-items/{id}",
		Summary:     "Change an item status",
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body TransitionItemRequest `json:"body"`
	}) (*struct {
		Body domain.ChecklistItem `json:"body"`
	}, error) {
		actor, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		item, err := e.Transition(ctx, engine.TransitionRequest{
			ItemID:      input.ID,
			Status:      domain.ItemStatus(input.Body.Status),
			Observation: input.Body.Observation,
			ActorID:     actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ChecklistItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "itemHistory",
		Method:      http.MethodGet,
		Path:        "/checklist-items/{id}/history",
		Summary:     "Audit trail of an item",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body HistoryResponse `json:"body"`
	}, error) {
		entries, err := e.ItemHistory(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body HistoryResponse `json:"body"`
		}{Body: HistoryResponse{Entries: entries}}, nil
	})
}

func registerEsclarecimentos(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "askEsclarecimento",
		Method:        http.MethodPost,
		Path:          "/checklist-items/{id}/esclarecimentos",
		Summary:       "Ask a question on an item",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		ID   string     `path:"id"`
		Body AskRequest `json:"body"`
	}) (*struct {
		Body domain.Esclarecimento `json:"body"`
	}, error) {
		actor, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		esc, err := e.Ask(ctx, input.ID, input.Body.Question, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Esclarecimento `json:"body"`
		}{Body: esc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "listEsclarecimentos",
		Method:      http.MethodGet,
		Path:        "/checklist-items/{id}/esclarecimentos",
		Summary:     "List an item's esclarecimentos",
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body EsclarecimentosResponse `json:"body"`
	}, error) {
		list, err := e.ListEsclarecimentos(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EsclarecimentosResponse `json:"body"`
		}{Body: EsclarecimentosResponse{Esclarecimentos: list}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "answerEsclarecimento",
		Method:      http.MethodPost,
		Path:        "/esclarecimentos/{id}/answer",
		Summary:     "Answer an esclarecimento",
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AnswerRequest `json:"body"`
	}) (*struct {
		Body domain.Esclarecimento `json:"body"`
	}, error) {
		actor, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		esc, err := e.Answer(ctx, input.ID, input.Body.Answer, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Esclarecimento `json:"body"`
		}{Body: esc}, nil
	})
}

func registerNotifications(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "listMyNotifications",
		Method:      http.MethodGet,
		Path:        "/me/notifications",
		Summary:     "List the caller's notifications",
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
	}) (*struct {
		Body NotificationsResponse `json:"body"`
	}, error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		var (
			ns  []domain.Notification
			err error
		)
		if input.Unread {
			ns, err = e.Inbox.ListUnread(ctx, userID)
		} else {
			ns, err = e.Inbox.ListAll(ctx, userID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		unread := 0
		for _, n := range ns {
			if !n.Read {
				unread++
			}
		}
		return &struct {
			Body NotificationsResponse `json:"body"`
		}{Body: NotificationsResponse{Notifications: ns, Unread: unread}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "markNotificationRead",
		Method:        http.MethodPost,
		Path:          "/notifications/{id}/read",
		Summary:       "Mark a notification read",
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		userID, herr := userIDFromContext(ctx)
		if herr != nil {
			return nil, herr
		}
		n, err := e.Repo.GetNotification(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		// Other users' notifications are reported as missing.
		if n.UserID != userID {
			return nil, handleError(repo.ErrNotFound)
		}
		if err := e.Inbox.MarkRead(ctx, n.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerContratos(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "listContratos",
		Method:      http.MethodGet,
		Path:        "/contratos",
		Summary:     "List contracts",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ContratosResponse `json:"body"`
	}, error) {
		list, err := e.Repo.ListContratos(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		now := time.Now()
		if e.Now != nil {
			now = e.Now()
		}
		views := make([]ContratoView, 0, len(list))
		for _, c := range list {
			views = append(views, ContratoView{Contrato: c, Status: c.Status(now)})
		}
		return &struct {
			Body ContratosResponse `json:"body"`
		}{Body: ContratosResponse{Contratos: views}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "contratoEvents",
		Method:      http.MethodGet,
		Path:        "/contratos/{id}/events",
		Summary:     "List contract events",
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		After int64  `query:"after"`
		Limit int    `query:"limit"`
	}) (*struct {
		Body EventsResponse `json:"body"`
	}, error) {
		if _, err := e.Repo.GetContrato(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		evts, err := e.Events.List(ctx, input.ID, input.After, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		next := input.After
		if len(evts) > 0 {
			next = evts[len(evts)-1].ID
		}
		return &struct {
			Body EventsResponse `json:"body"`
		}{Body: EventsResponse{Events: evts, NextID: next}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "notifyContrato",
		Method:      http.MethodPost,
		Path:        "/contratos/{numero}/notify",
		Summary:     "Send a contract update by email and WhatsApp",
	}, func(ctx context.Context, input *struct {
		Numero string                `path:"numero"`
		Body   NotifyContractRequest `json:"body"`
	}) (*struct {
		Body NotifyContractResponse `json:"body"`
	}, error) {
		channels := make([]dispatch.Channel, 0, len(input.Body.Channels))
		for _, raw := range input.Body.Channels {
			ch, err := dispatch.ParseChannel(strings.ToLower(strings.TrimSpace(raw)))
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), map[string]any{"field": "channels"})
			}
			channels = append(channels, ch)
		}
		if len(channels) == 0 {
			channels = []dispatch.Channel{dispatch.ChannelEmail, dispatch.ChannelWhatsApp}
		}
		results, err := e.NotifyContract(ctx, input.Numero, dispatch.Update{
			Type:           input.Body.Type,
			Description:    input.Body.Description,
			ActionRequired: input.Body.ActionRequired,
		}, channels...)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, newAPIError(http.StatusNotFound, "not_found", "contrato not found", map[string]any{"numero": input.Numero})
			}
			return nil, handleError(err)
		}
		return &struct {
			Body NotifyContractResponse `json:"body"`
		}{Body: NotifyContractResponse{Results: results}}, nil
	})
}
