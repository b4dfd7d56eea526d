package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/moniquedpoliveira/licito/internal/domain"
	"github.com/moniquedpoliveira/licito/internal/repo"
)

// Catalog serves checklist templates per type. The first non-empty load
// of a type is kept for the life of the process; failed or empty loads
// are retried on the next call.
type Catalog struct {
	db     *sql.DB
	repo   repo.Repo
	logger *slog.Logger
	now    func() time.Time

	mu     sync.Mutex
	cached map[domain.ChecklistType][]domain.ChecklistTemplate
}

func New(db *sql.DB) *Catalog {
	return &Catalog{
		db:     db,
		repo:   repo.Repo{DB: db},
		logger: slog.Default().With("component", "catalog"),
		now:    time.Now,
		cached: map[domain.ChecklistType][]domain.ChecklistTemplate{},
	}
}

// ListTemplates returns the templates of typ in creation order.
func (c *Catalog) ListTemplates(ctx context.Context, typ domain.ChecklistType) ([]domain.ChecklistTemplate, error) {
	if _, err := domain.ParseChecklistType(string(typ)); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if tpls, ok := c.cached[typ]; ok {
		return clone(tpls), nil
	}
	tpls, err := c.repo.ListTemplates(ctx, typ)
	if err != nil {
		return nil, fmt.Errorf("load %s templates: %w", typ, err)
	}
	if len(tpls) == 0 {
		return nil, nil
	}
	c.cached[typ] = tpls
	c.logger.DebugContext(ctx, "templates loaded", "type", typ, "count", len(tpls))
	return clone(tpls), nil
}

// Seed inserts the given texts as templates of typ, in order, skipping
// texts already present. It does not touch the in-process cache.
func (c *Catalog) Seed(ctx context.Context, typ domain.ChecklistType, texts []string) (int, error) {
	if _, err := domain.ParseChecklistType(string(typ)); err != nil {
		return 0, err
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	base := c.now().UTC()
	inserted := 0
	for i, text := range texts {
		// Offsets keep creation order equal to list order within one seed.
		t := domain.ChecklistTemplate{
			ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(string(typ)+"|"+text)).String(),
			Type:      typ,
			Text:      text,
			CreatedAt: domain.FormatTime(base.Add(time.Duration(i) * time.Microsecond)),
		}
		ok, err := c.repo.InsertTemplateTx(ctx, tx, t)
		if err != nil {
			return 0, err
		}
		if ok {
			inserted++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	if inserted > 0 {
		c.logger.InfoContext(ctx, "templates seeded", "type", typ, "inserted", inserted)
	}
	return inserted, nil
}

func clone(in []domain.ChecklistTemplate) []domain.ChecklistTemplate {
	out := make([]domain.ChecklistTemplate, len(in))
	copy(out, in)
	return out
}
