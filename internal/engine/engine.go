package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/moniquedpoliveira/licito/internal/catalog"
	"github.com/moniquedpoliveira/licito/internal/config"
	"github.com/moniquedpoliveira/licito/internal/dispatch"
	"github.com/moniquedpoliveira/licito/internal/events"
	"github.com/moniquedpoliveira/licito/internal/inbox"
	"github.com/moniquedpoliveira/licito/internal/repo"
	"github.com/moniquedpoliveira/licito/internal/telemetry"
)

// ErrInvalidState rejects an operation the entity's current state does not
// allow, such as answering an esclarecimento twice.
var ErrInvalidState = errors.New("invalid state")

// ValidationError reports malformed input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return ValidationError{Field: field, Reason: reason}
}

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Catalog    *catalog.Catalog
	Inbox      inbox.Service
	Dispatcher *dispatch.Dispatcher
	Metrics    *telemetry.Metrics
	Config     *config.Config
	Now        func() time.Time
	Logger     *slog.Logger
}

// New wires an engine on db. The dispatcher is left nil; callers that
// notify contracts set it.
func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:      db,
		Repo:    repo.Repo{DB: db},
		Events:  events.Writer{DB: db},
		Catalog: catalog.New(db),
		Inbox:   inbox.New(db, nil),
		Config:  cfg,
		Now:     time.Now,
		Logger:  slog.Default().With("component", "engine"),
	}
}

// WithMetrics attaches metrics to the engine and its inbox.
func (e Engine) WithMetrics(m *telemetry.Metrics) Engine {
	e.Metrics = m
	e.Inbox.Metrics = m
	return e
}

// WithClock pins the clock of the engine and everything it writes through.
func (e Engine) WithClock(now func() time.Time) Engine {
	e.Now = now
	e.Events.Now = now
	e.Inbox.Now = now
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Engine) catalog() *catalog.Catalog {
	if e.Catalog != nil {
		return e.Catalog
	}
	return catalog.New(e.DB)
}
